// Package catalog implements book management: CRUD, covers, filtered and
// paged listings, and per-user collections.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-bexpr"
	"go.uber.org/zap"

	"github.com/miguel-loureiro/BookCatalog/internal/db/models"
	"github.com/miguel-loureiro/BookCatalog/internal/errs"
	"github.com/miguel-loureiro/BookCatalog/internal/repository"
	"github.com/miguel-loureiro/BookCatalog/internal/storage"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	dateLayout = "2006-01-02"

	msgBookNotFound  = "Book not found"
	msgCoverNotFound = "Cover not found"
	msgUserNotFound  = "User not found"
	msgNoUserBooks   = "No books found for user"
)

// BookInput is the client-supplied part of a book.
type BookInput struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	ISBN        string  `json:"isbn,omitempty"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	PublishDate string  `json:"publishDate,omitempty"`
}

// Cover is an uploaded cover image.
type Cover struct {
	Filename string
	Data     []byte
}

// Page is one page of a listing.
type Page[T any] struct {
	Content       []T `json:"content"`
	Page          int `json:"page"`
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
}

// CoverStore persists cover files.
type CoverStore interface {
	Save(data []byte) (storage.Stored, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
}

// Dependencies groups the collaborators of the Service.
type Dependencies struct {
	Books  repository.BookRepository
	Users  repository.UserRepository
	Covers CoverStore
	Logger *zap.Logger
}

// Service implements the book operations. Every error it returns is an
// *errs.Error.
type Service struct {
	books        repository.BookRepository
	users        repository.UserRepository
	covers       CoverStore
	maxCoverSize int64
	logger       *zap.Logger
}

// NewService builds the service. maxCoverSize <= 0 disables the size check.
func NewService(deps Dependencies, maxCoverSize int64) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		books:        deps.Books,
		users:        deps.Users,
		covers:       deps.Covers,
		maxCoverSize: maxCoverSize,
		logger:       logger,
	}
}

// MaxCoverSize is the largest accepted cover in bytes.
func (s *Service) MaxCoverSize() int64 { return s.maxCoverSize }

// CoverTooLarge is the error for an oversized cover.
func (s *Service) CoverTooLarge() error {
	return errs.BadRequest(fmt.Sprintf("File size exceeds %s size limit", humanSize(s.maxCoverSize)), nil)
}

func humanSize(n int64) string {
	const mb = 1 << 20
	const kb = 1 << 10
	switch {
	case n >= mb && n%mb == 0:
		return fmt.Sprintf("%dMB", n/mb)
	case n >= kb && n%kb == 0:
		return fmt.Sprintf("%dKB", n/kb)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func (s *Service) Create(ctx context.Context, in BookInput, cover *Cover) (*models.Book, error) {
	book := &models.Book{}
	if err := applyInput(book, in); err != nil {
		return nil, err
	}

	stored, err := s.saveCover(cover)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		book.CoverImage = &stored.Name
		book.CoverContentType = &stored.ContentType
	}

	if err := s.books.Create(ctx, book); err != nil {
		s.discardCover(stored)
		return nil, errs.Internal("create book", err)
	}
	return book, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Book, error) {
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.NotFound(msgBookNotFound, err)
		}
		return nil, errs.Internal("load book", err)
	}
	return book, nil
}

// List returns every book, narrowed by an optional filter expression such
// as `author == "Frank Herbert" and title matches "^Dune"`.
func (s *Service) List(ctx context.Context, filter string) ([]models.Book, error) {
	var eval *bexpr.Evaluator
	if strings.TrimSpace(filter) != "" {
		var err error
		eval, err = bexpr.CreateEvaluator(filter)
		if err != nil {
			return nil, errs.BadRequest(fmt.Sprintf("Invalid filter: %v", err), err)
		}
	}

	books, err := s.books.List(ctx)
	if err != nil {
		return nil, errs.Internal("list books", err)
	}
	if eval == nil {
		return books, nil
	}

	out := make([]models.Book, 0, len(books))
	for _, b := range books {
		ok, err := eval.Evaluate(filterFields(&b))
		if err != nil {
			return nil, errs.BadRequest(fmt.Sprintf("Invalid filter: %v", err), err)
		}
		if ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func filterFields(b *models.Book) map[string]any {
	publishDate := ""
	if b.PublishDate != nil {
		publishDate = b.PublishDate.Format(dateLayout)
	}
	return map[string]any{
		"id":          b.ID,
		"title":       b.Title,
		"author":      b.Author,
		"isbn":        b.ISBN,
		"description": b.Description,
		"price":       b.Price,
		"publishDate": publishDate,
	}
}

func (s *Service) ListShort(ctx context.Context) ([]models.BookShort, error) {
	books, err := s.books.List(ctx)
	if err != nil {
		return nil, errs.Internal("list books", err)
	}
	return shorten(books), nil
}

// Page returns one page of short books. A negative page becomes 0, a
// non-positive size becomes DefaultPageSize, and size is capped at
// MaxPageSize.
func (s *Service) Page(ctx context.Context, page, size int) (Page[models.BookShort], error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	// Offsets are capped at MaxInt32 so page*size cannot wrap on any platform.
	if page > math.MaxInt32/size {
		return Page[models.BookShort]{}, errs.BadRequest(fmt.Sprintf("Invalid page: %d", page), nil)
	}

	books, total, err := s.books.ListPage(ctx, page*size, size)
	if err != nil {
		return Page[models.BookShort]{}, errs.Internal("list books page", err)
	}
	return Page[models.BookShort]{
		Content:       shorten(books),
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    (total + size - 1) / size,
	}, nil
}

func shorten(books []models.Book) []models.BookShort {
	out := make([]models.BookShort, 0, len(books))
	for i := range books {
		out = append(out, books[i].Short())
	}
	return out
}

// ByUserID returns the user's collection. An empty collection is a 404.
func (s *Service) ByUserID(ctx context.Context, userID int64) ([]models.Book, error) {
	books, err := s.books.ListByUserID(ctx, userID)
	if err != nil {
		return nil, errs.Internal("list user books", err)
	}
	if len(books) == 0 {
		return nil, errs.NotFound(msgNoUserBooks, nil)
	}
	return books, nil
}

// ByUserIdentifier resolves identifier as a username, then an email.
func (s *Service) ByUserIdentifier(ctx context.Context, identifier string) ([]models.Book, error) {
	user, err := s.users.GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.NotFound(msgUserNotFound, err)
		}
		return nil, errs.Internal("load user", err)
	}
	return s.ByUserID(ctx, user.ID)
}

// Update replaces the book's fields. A new cover replaces the old file; no
// cover keeps the current one.
func (s *Service) Update(ctx context.Context, id int64, in BookInput, cover *Cover) (*models.Book, error) {
	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyInput(book, in); err != nil {
		return nil, err
	}

	stored, err := s.saveCover(cover)
	if err != nil {
		return nil, err
	}
	var previous *string
	if stored != nil {
		previous = book.CoverImage
		book.CoverImage = &stored.Name
		book.CoverContentType = &stored.ContentType
	}

	if err := s.books.Update(ctx, book); err != nil {
		s.discardCover(stored)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.NotFound(msgBookNotFound, err)
		}
		return nil, errs.Internal("update book", err)
	}
	if previous != nil {
		s.deleteCoverFile(*previous)
	}
	return book, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	book, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.books.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errs.NotFound(msgBookNotFound, err)
		}
		return errs.Internal("delete book", err)
	}
	if book.CoverImage != nil {
		s.deleteCoverFile(*book.CoverImage)
	}
	return nil
}

// AddToCollection adds an existing book to the user's collection.
func (s *Service) AddToCollection(ctx context.Context, userID, bookID int64) error {
	if _, err := s.Get(ctx, bookID); err != nil {
		return err
	}
	if err := s.books.AddToCollection(ctx, userID, bookID); err != nil {
		return errs.Internal("add to collection", err)
	}
	return nil
}

// OpenCover returns the cover file of a book and its content type. The
// caller closes the file.
func (s *Service) OpenCover(ctx context.Context, id int64) (*os.File, string, error) {
	book, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if book.CoverImage == nil || s.covers == nil {
		return nil, "", errs.NotFound(msgCoverNotFound, nil)
	}
	f, err := s.covers.Open(*book.CoverImage)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", errs.NotFound(msgCoverNotFound, err)
		}
		return nil, "", errs.Internal("open cover", err)
	}
	contentType := "application/octet-stream"
	if book.CoverContentType != nil {
		contentType = *book.CoverContentType
	}
	return f, contentType, nil
}

// saveCover enforces the size limit and stores the file. A nil or empty
// cover means no file and yields nil.
func (s *Service) saveCover(cover *Cover) (*storage.Stored, error) {
	if cover == nil || len(cover.Data) == 0 {
		return nil, nil
	}
	if s.maxCoverSize > 0 && int64(len(cover.Data)) > s.maxCoverSize {
		return nil, s.CoverTooLarge()
	}
	if s.covers == nil {
		return nil, errs.Internal("cover storage is not configured", nil)
	}
	stored, err := s.covers.Save(cover.Data)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			return nil, errs.BadRequest("Cover must be an image", err)
		}
		return nil, errs.Internal("store cover", err)
	}
	return &stored, nil
}

func (s *Service) discardCover(stored *storage.Stored) {
	if stored != nil {
		s.deleteCoverFile(stored.Name)
	}
}

func (s *Service) deleteCoverFile(name string) {
	if s.covers == nil {
		return
	}
	if err := s.covers.Delete(name); err != nil {
		s.logger.Warn("delete cover file", zap.String("name", name), zap.Error(err))
	}
}

func applyInput(book *models.Book, in BookInput) error {
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	if title == "" || author == "" {
		return errs.BadRequest("Title and author are required", nil)
	}
	if in.Price < 0 {
		return errs.BadRequest("Price must not be negative", nil)
	}

	var publishDate *time.Time
	if in.PublishDate != "" {
		d, err := time.Parse(dateLayout, in.PublishDate)
		if err != nil {
			return errs.BadRequest(fmt.Sprintf("Invalid publishDate: %s", in.PublishDate), err)
		}
		publishDate = &d
	}

	book.Title = title
	book.Author = author
	book.ISBN = strings.TrimSpace(in.ISBN)
	book.Description = in.Description
	book.Price = in.Price
	book.PublishDate = publishDate
	return nil
}
