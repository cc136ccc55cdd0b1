package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miguel-loureiro/BookCatalog/internal/db/models"
	"github.com/uptrace/bun"
)

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db *bun.DB
}

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user into the database
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(user).
		Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create user %s: %w", user.Username, ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their ID
func (r *BunUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, "id = ?", id, fmt.Sprintf("id %d", id))
}

// GetByUsername retrieves a user by their username
func (r *BunUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "username = ?", username, "username "+username)
}

// GetByEmail retrieves a user by their email
func (r *BunUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "email = ?", email, "email "+email)
}

// GetByUsernameOrEmail retrieves a user whose username or email equals
// identifier. A username match wins over an email match.
func (r *BunUserRepository) GetByUsernameOrEmail(ctx context.Context, identifier string) (*models.User, error) {
	user, err := r.GetByUsername(ctx, identifier)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return user, err
	}
	return r.GetByEmail(ctx, identifier)
}

func (r *BunUserRepository) getOne(ctx context.Context, where string, arg interface{}, desc string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where(where, arg).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with %s: %w", desc, ErrNotFound)
		}
		return nil, fmt.Errorf("get user by %s: %w", desc, err)
	}
	return user, nil
}

// List returns every user ordered by id
func (r *BunUserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.NewSelect().Model(&users).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Update updates an existing user
func (r *BunUserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	result, err := r.db.NewUpdate().
		Model(user).
		Column("username", "email", "password_hash", "role", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("update user %d: %w", user.ID, ErrConflict)
		}
		return fmt.Errorf("update user: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("user %d", user.ID))
}

// Delete removes a user; their collection rows cascade.
func (r *BunUserRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.NewDelete().
		Model((*models.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("user %d", id))
}

// UpdateLastLogin stamps the last successful login time
func (r *BunUserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("last_login_at = ?", at.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("user %d", id))
}

// ExistsByUsernameOrEmail reports whether username or email is taken
func (r *BunUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string, excludeID int64) (bool, error) {
	q := r.db.NewSelect().
		Model((*models.User)(nil)).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("username = ?", username).WhereOr("email = ?", email)
		})
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check user uniqueness: %w", err)
	}
	return exists, nil
}

func requireAffected(result sql.Result, desc string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", desc, ErrNotFound)
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "23505")
}
