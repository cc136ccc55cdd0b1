package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/db/models"
	"github.com/miguel-loureiro/BookCatalog/internal/repository"
)

// ErrPrincipalNotFound means no user matches the subject. Callers treat it
// as an authentication failure, never as a fatal error.
var ErrPrincipalNotFound = errors.New("principal not found")

// PrincipalResolver maps token subjects to principals.
type PrincipalResolver struct {
	users repository.UserRepository
}

func NewPrincipalResolver(users repository.UserRepository) *PrincipalResolver {
	return &PrincipalResolver{users: users}
}

// ResolveBySubject looks the subject up by username, then by email. The
// reserved guest subject resolves to the synthetic guest without a lookup.
func (r *PrincipalResolver) ResolveBySubject(ctx context.Context, subject string) (auth.Principal, error) {
	if strings.TrimSpace(subject) == "" {
		return auth.Principal{}, ErrPrincipalNotFound
	}
	if subject == auth.GuestSubject {
		return auth.GuestPrincipal(), nil
	}

	user, err := r.users.GetByUsernameOrEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return auth.Principal{}, ErrPrincipalNotFound
		}
		return auth.Principal{}, fmt.Errorf("resolve subject: %w", err)
	}
	return PrincipalFromUser(user)
}

// PrincipalFromUser derives a principal from a stored user. A stored role
// outside the declared set is an error.
func PrincipalFromUser(user *models.User) (auth.Principal, error) {
	role, err := auth.ParseRole(user.Role)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("user %d: %w", user.ID, err)
	}
	return auth.NewPrincipal(user.ID, user.Username, user.Email, role), nil
}
