package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/miguel-loureiro/BookCatalog/internal/db/models"
	"github.com/uptrace/bun"
)

// BunBookRepository implements BookRepository using Bun ORM
type BunBookRepository struct {
	db *bun.DB
}

// NewBunBookRepository creates a new Bun-based book repository
func NewBunBookRepository(db *bun.DB) *BunBookRepository {
	return &BunBookRepository{db: db}
}

// Create inserts a new book and fills in its generated id
func (r *BunBookRepository) Create(ctx context.Context, book *models.Book) error {
	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now

	if _, err := r.db.NewInsert().Model(book).Exec(ctx); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// GetByID retrieves a book by its ID
func (r *BunBookRepository) GetByID(ctx context.Context, id int64) (*models.Book, error) {
	book := new(models.Book)
	err := r.db.NewSelect().
		Model(book).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get book by ID: %w", err)
	}
	return book, nil
}

// List returns every book ordered by id
func (r *BunBookRepository) List(ctx context.Context) ([]models.Book, error) {
	var books []models.Book
	if err := r.db.NewSelect().Model(&books).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// ListPage returns a page of books and the total count
func (r *BunBookRepository) ListPage(ctx context.Context, offset, limit int) ([]models.Book, int, error) {
	var books []models.Book
	total, err := r.db.NewSelect().
		Model(&books).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list books page: %w", err)
	}
	return books, total, nil
}

// ListByUserID returns the books in a user's collection
func (r *BunBookRepository) ListByUserID(ctx context.Context, userID int64) ([]models.Book, error) {
	var books []models.Book
	err := r.db.NewSelect().
		Model(&books).
		Join("JOIN user_books AS ub ON ub.book_id = b.id").
		Where("ub.user_id = ?", userID).
		Order("b.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books for user %d: %w", userID, err)
	}
	return books, nil
}

// Update replaces the mutable columns of a book
func (r *BunBookRepository) Update(ctx context.Context, book *models.Book) error {
	book.UpdatedAt = time.Now().UTC()
	result, err := r.db.NewUpdate().
		Model(book).
		Column("title", "author", "isbn", "description", "price", "publish_date",
			"cover_image", "cover_content_type", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("book %d", book.ID))
}

// Delete removes a book; collection rows cascade
func (r *BunBookRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.NewDelete().
		Model((*models.Book)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("book %d", id))
}

// AddToCollection links a book to a user. Adding twice is a no-op.
func (r *BunBookRepository) AddToCollection(ctx context.Context, userID, bookID int64) error {
	link := &models.UserBook{UserID: userID, BookID: bookID, AddedAt: time.Now().UTC()}
	_, err := r.db.NewInsert().
		Model(link).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("add book %d to user %d collection: %w", bookID, userID, err)
	}
	return nil
}
