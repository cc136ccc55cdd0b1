package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miguel-loureiro/BookCatalog/internal/db/models"
)

func TestBunBookRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewBunBookRepository(setupTestDB(t))

	cover := "3f0c.png"
	book := &models.Book{Title: "Dune", Author: "Frank Herbert", Price: 9.99, CoverImage: &cover}
	require.NoError(t, repo.Create(ctx, book))
	require.NotZero(t, book.ID)

	got, err := repo.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	require.NotNil(t, got.CoverImage)
	assert.Equal(t, cover, *got.CoverImage)

	got.Title = "Dune Messiah"
	got.CoverImage = nil
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Title)
	assert.Nil(t, got.CoverImage)

	require.NoError(t, repo.Delete(ctx, book.ID))
	_, err = repo.GetByID(ctx, book.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, book.ID), ErrNotFound)
}

func TestBunBookRepository_ListPage(t *testing.T) {
	ctx := context.Background()
	repo := NewBunBookRepository(setupTestDB(t))

	for i := 1; i <= 12; i++ {
		require.NoError(t, repo.Create(ctx, &models.Book{Title: fmt.Sprintf("Book %02d", i), Author: "A"}))
	}

	tests := []struct {
		name      string
		offset    int
		limit     int
		wantLen   int
		wantFirst string
	}{
		{name: "first page", offset: 0, limit: 10, wantLen: 10, wantFirst: "Book 01"},
		{name: "second page", offset: 10, limit: 10, wantLen: 2, wantFirst: "Book 11"},
		{name: "past the end", offset: 20, limit: 10, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, total, err := repo.ListPage(ctx, tt.offset, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, 12, total)
			require.Len(t, books, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, books[0].Title)
			}
		})
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 12)
}

func TestBunBookRepository_Collection(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	users := NewBunUserRepository(db)
	books := NewBunBookRepository(db)

	alice := newUser("alice", "alice@example.com", "READER")
	require.NoError(t, users.Create(ctx, alice))

	dune := &models.Book{Title: "Dune", Author: "Frank Herbert"}
	emma := &models.Book{Title: "Emma", Author: "Jane Austen"}
	require.NoError(t, books.Create(ctx, dune))
	require.NoError(t, books.Create(ctx, emma))

	empty, err := books.ListByUserID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, books.AddToCollection(ctx, alice.ID, emma.ID))
	require.NoError(t, books.AddToCollection(ctx, alice.ID, emma.ID), "adding twice is a no-op")

	owned, err := books.ListByUserID(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "Emma", owned[0].Title)

	// Deleting the book removes it from collections.
	require.NoError(t, books.Delete(ctx, emma.ID))
	owned, err = books.ListByUserID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, owned)
}
