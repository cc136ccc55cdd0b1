package repository

import (
	"context"
	"errors"
	"time"

	"github.com/miguel-loureiro/BookCatalog/internal/db/models"
)

// ErrNotFound is wrapped by every lookup that matches no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is wrapped when a write would violate a uniqueness rule.
var ErrConflict = errors.New("conflict")

// UserRepository defines persistence operations for users
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByUsernameOrEmail tries username first, then email.
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id int64) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	// ExistsByUsernameOrEmail reports whether another user (other than
	// excludeID, when non-zero) already holds username or email.
	ExistsByUsernameOrEmail(ctx context.Context, username, email string, excludeID int64) (bool, error)
}

// BookRepository defines persistence operations for books and user collections
type BookRepository interface {
	Create(ctx context.Context, book *models.Book) error
	GetByID(ctx context.Context, id int64) (*models.Book, error)
	List(ctx context.Context) ([]models.Book, error)
	// ListPage returns one page ordered by id and the total row count.
	ListPage(ctx context.Context, offset, limit int) ([]models.Book, int, error)
	ListByUserID(ctx context.Context, userID int64) ([]models.Book, error)
	Update(ctx context.Context, book *models.Book) error
	Delete(ctx context.Context, id int64) error
	AddToCollection(ctx context.Context, userID, bookID int64) error
}
