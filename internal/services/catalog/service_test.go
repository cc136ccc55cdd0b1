package catalog

import (
	"context"
	"io"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/miguel-loureiro/BookCatalog/internal/db/bunx"
	"github.com/miguel-loureiro/BookCatalog/internal/db/models"
	"github.com/miguel-loureiro/BookCatalog/internal/errs"
	"github.com/miguel-loureiro/BookCatalog/internal/migrations"
	"github.com/miguel-loureiro/BookCatalog/internal/repository"
	"github.com/miguel-loureiro/BookCatalog/internal/storage"
)

const testMaxCover = 2 << 20

type fixture struct {
	svc    *Service
	db     *bun.DB
	users  *repository.BunUserRepository
	covers *storage.LocalStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })
	_, err = migrations.Apply(context.Background(), db)
	require.NoError(t, err)

	covers, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	users := repository.NewBunUserRepository(db)
	svc := NewService(Dependencies{
		Books:  repository.NewBunBookRepository(db),
		Users:  users,
		Covers: covers,
	}, testMaxCover)
	return &fixture{svc: svc, db: db, users: users, covers: covers}
}

// png returns an image of exactly n bytes.
func png(n int) []byte {
	header := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	data := make([]byte, n)
	copy(data, header)
	return data
}

func coverFiles(t *testing.T, s *storage.LocalStore) int {
	t.Helper()
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	return len(entries)
}

func dune() BookInput {
	return BookInput{Title: "Dune", Author: "Frank Herbert", ISBN: "978-0441013593", Price: 9.99, PublishDate: "1965-08-01"}
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	book, err := f.svc.Create(ctx, dune(), nil)
	require.NoError(t, err)
	require.NotZero(t, book.ID)
	assert.Nil(t, book.CoverImage)

	got, err := f.svc.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	require.NotNil(t, got.PublishDate)
	assert.Equal(t, "1965-08-01", got.PublishDate.Format("2006-01-02"))

	_, err = f.svc.Get(ctx, book.ID+100)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreate_InvalidInput(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   BookInput
	}{
		{name: "missing title", in: BookInput{Author: "x"}},
		{name: "missing author", in: BookInput{Title: "x"}},
		{name: "negative price", in: BookInput{Title: "x", Author: "y", Price: -1}},
		{name: "bad date", in: BookInput{Title: "x", Author: "y", PublishDate: "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.in, nil)
			assert.ErrorIs(t, err, errs.ErrBadRequest)
		})
	}
}

func TestCoverSizeBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	atLimit, err := f.svc.Create(ctx, dune(), &Cover{Filename: "cover.png", Data: png(testMaxCover)})
	require.NoError(t, err, "a cover of exactly the limit is accepted")
	require.NotNil(t, atLimit.CoverImage)
	assert.Equal(t, "image/png", *atLimit.CoverContentType)

	_, err = f.svc.Create(ctx, dune(), &Cover{Filename: "big.png", Data: png(testMaxCover + 1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrBadRequest)
	assert.Equal(t, "File size exceeds 2MB size limit", errs.From(err).Message)

	_, err = f.svc.Update(ctx, atLimit.ID, dune(), &Cover{Filename: "big.png", Data: png(testMaxCover + 1)})
	require.Error(t, err)
	assert.Equal(t, "File size exceeds 2MB size limit", errs.From(err).Message)

	_, err = f.svc.Update(ctx, atLimit.ID, dune(), &Cover{Filename: "ok.png", Data: png(testMaxCover)})
	assert.NoError(t, err)

	assert.Equal(t, 1, coverFiles(t, f.covers), "the replaced cover is removed")
}

func TestCover_EmptyFileIsNoFile(t *testing.T) {
	f := newFixture(t)
	book, err := f.svc.Create(context.Background(), dune(), &Cover{Filename: "empty.png"})
	require.NoError(t, err)
	assert.Nil(t, book.CoverImage)
	assert.Zero(t, coverFiles(t, f.covers))
}

func TestCover_RejectsNonImage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), dune(), &Cover{Filename: "a.txt", Data: []byte("hello")})
	assert.ErrorIs(t, err, errs.ErrBadRequest)
}

func TestOpenCover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	data := png(128)
	withCover, err := f.svc.Create(ctx, dune(), &Cover{Data: data})
	require.NoError(t, err)

	file, contentType, err := f.svc.OpenCover(ctx, withCover.ID)
	require.NoError(t, err)
	got, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	assert.Equal(t, data, got)
	assert.Equal(t, "image/png", contentType)

	plain, err := f.svc.Create(ctx, dune(), nil)
	require.NoError(t, err)
	_, _, err = f.svc.OpenCover(ctx, plain.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUpdate_KeepsCoverWithoutNewFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	book, err := f.svc.Create(ctx, dune(), &Cover{Data: png(64)})
	require.NoError(t, err)

	in := dune()
	in.Title = "Dune Messiah"
	updated, err := f.svc.Update(ctx, book.ID, in, nil)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.Equal(t, book.CoverImage, updated.CoverImage)

	_, err = f.svc.Update(ctx, 999, in, nil)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	book, err := f.svc.Create(ctx, dune(), &Cover{Data: png(64)})
	require.NoError(t, err)
	require.Equal(t, 1, coverFiles(t, f.covers))

	require.NoError(t, f.svc.Delete(ctx, book.ID))
	assert.Zero(t, coverFiles(t, f.covers))

	assert.ErrorIs(t, f.svc.Delete(ctx, book.ID), errs.ErrNotFound)
}

func TestList_Filter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, in := range []BookInput{
		dune(),
		{Title: "Dune Messiah", Author: "Frank Herbert", Price: 7},
		{Title: "Neuromancer", Author: "William Gibson", Price: 12},
	} {
		_, err := f.svc.Create(ctx, in, nil)
		require.NoError(t, err)
	}

	tests := []struct {
		filter string
		want   []string
	}{
		{filter: "", want: []string{"Dune", "Dune Messiah", "Neuromancer"}},
		{filter: `author == "Frank Herbert"`, want: []string{"Dune", "Dune Messiah"}},
		{filter: `title matches "^Neuro"`, want: []string{"Neuromancer"}},
		{filter: `author == "Frank Herbert" and title != "Dune"`, want: []string{"Dune Messiah"}},
		{filter: `author == "Nobody"`, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			books, err := f.svc.List(ctx, tt.filter)
			require.NoError(t, err)
			titles := make([]string, 0, len(books))
			for _, b := range books {
				titles = append(titles, b.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}

	_, err := f.svc.List(ctx, `author ==`)
	assert.ErrorIs(t, err, errs.ErrBadRequest)
}

func TestListShortAndPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := f.svc.Create(ctx, BookInput{Title: "Book", Author: "Author"}, nil)
		require.NoError(t, err)
	}

	short, err := f.svc.ListShort(ctx)
	require.NoError(t, err)
	assert.Len(t, short, 12)

	page, err := f.svc.Page(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, DefaultPageSize, page.Size)
	assert.Len(t, page.Content, 10)
	assert.Equal(t, 12, page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)

	page, err = f.svc.Page(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Content, 2)

	page, err = f.svc.Page(ctx, -3, 1000)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, MaxPageSize, page.Size)
	assert.Len(t, page.Content, 12)
	assert.Equal(t, 1, page.TotalPages)

	_, err = f.svc.Page(ctx, math.MaxInt32/10, 10)
	require.NoError(t, err)
	_, err = f.svc.Page(ctx, math.MaxInt32/10+1, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrBadRequest)
	assert.Equal(t, "Invalid page: 214748365", errs.From(err).Message)
}

func TestCollections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", Role: "READER"}
	require.NoError(t, f.users.Create(ctx, alice))

	_, err := f.svc.ByUserID(ctx, alice.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound, "empty collection is a 404")
	_, err = f.svc.ByUserIdentifier(ctx, "alice")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	book, err := f.svc.Create(ctx, dune(), nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.AddToCollection(ctx, alice.ID, book.ID))
	require.NoError(t, f.svc.AddToCollection(ctx, alice.ID, book.ID), "adding twice is a no-op")

	assert.ErrorIs(t, f.svc.AddToCollection(ctx, alice.ID, 999), errs.ErrNotFound)

	books, err := f.svc.ByUserID(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)

	books, err = f.svc.ByUserIdentifier(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, books, 1)

	_, err = f.svc.ByUserIdentifier(ctx, "nobody")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "2MB", humanSize(2<<20))
	assert.Equal(t, "512KB", humanSize(512<<10))
	assert.Equal(t, "1000 bytes", humanSize(1000))
}
