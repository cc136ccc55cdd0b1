package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a catalog account. Role holds one of SUPER, ADMIN, READER or GUEST
// and is the sole authorization input.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64      `bun:"id,pk,autoincrement" json:"id"`
	Username     string     `bun:"username,notnull,unique" json:"username"`
	Email        string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash string     `bun:"password_hash,notnull" json:"-"` // bcrypt hash
	Role         string     `bun:"role,notnull" json:"role"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
	LastLoginAt  *time.Time `bun:"last_login_at" json:"lastLoginAt,omitempty"`
}

// UserBook links a user to a book in the user's collection.
type UserBook struct {
	bun.BaseModel `bun:"table:user_books,alias:ub"`

	UserID  int64     `bun:"user_id,pk"`
	BookID  int64     `bun:"book_id,pk"`
	AddedAt time.Time `bun:"added_at,nullzero,notnull,default:current_timestamp"`
}
