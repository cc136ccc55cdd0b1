package iam

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/db/models"
	"github.com/miguel-loureiro/BookCatalog/internal/repository"
)

// fakeUserRepository is an in-memory UserRepository. Set failWith to make
// every call return that error.
type fakeUserRepository struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*models.User
	failWith error
	calls    int

	// lastLoginErr fails only UpdateLastLogin.
	lastLoginErr error
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{users: map[int64]*models.User{}}
}

func (f *fakeUserRepository) enter() error {
	f.calls++
	return f.failWith
}

func (f *fakeUserRepository) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return err
	}
	for _, u := range f.users {
		if u.Username == user.Username || u.Email == user.Email {
			return fmt.Errorf("create user: %w", repository.ErrConflict)
		}
	}
	f.nextID++
	user.ID = f.nextID
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepository) find(match func(*models.User) bool) (*models.User, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user: %w", repository.ErrNotFound)
}

func (f *fakeUserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(u *models.User) bool { return u.ID == id })
}

func (f *fakeUserRepository) GetByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(u *models.User) bool { return u.Username == username })
}

func (f *fakeUserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUserRepository) GetByUsernameOrEmail(_ context.Context, identifier string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.find(func(u *models.User) bool { return u.Username == identifier })
	if err == nil || !errors.Is(err, repository.ErrNotFound) {
		return u, err
	}
	return f.find(func(u *models.User) bool { return u.Email == identifier })
}

func (f *fakeUserRepository) List(_ context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUserRepository) Update(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return err
	}
	if _, ok := f.users[user.ID]; !ok {
		return fmt.Errorf("user %d: %w", user.ID, repository.ErrNotFound)
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepository) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return err
	}
	if _, ok := f.users[id]; !ok {
		return fmt.Errorf("user %d: %w", id, repository.ErrNotFound)
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepository) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return err
	}
	if f.lastLoginErr != nil {
		return f.lastLoginErr
	}
	u, ok := f.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, repository.ErrNotFound)
	}
	u.LastLoginAt = &at
	return nil
}

func (f *fakeUserRepository) ExistsByUsernameOrEmail(_ context.Context, username, email string, excludeID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(); err != nil {
		return false, err
	}
	for _, u := range f.users {
		if u.ID == excludeID {
			continue
		}
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

// stubIssuer lets a test control token issuance.
type stubIssuer struct {
	issueFunc func(auth.Principal) (auth.Token, error)
	window    time.Duration
}

func (s *stubIssuer) Issue(p auth.Principal) (auth.Token, error) {
	return s.issueFunc(p)
}

func (s *stubIssuer) ExpirationWindow() time.Duration { return s.window }

// stubAttemptStore fails every call with err.
type stubAttemptStore struct{ err error }

func (s stubAttemptStore) IncrFailures(context.Context, string, time.Duration) (int, error) {
	return 0, s.err
}
func (s stubAttemptStore) Lock(context.Context, string, time.Duration) error { return s.err }
func (s stubAttemptStore) LockedFor(context.Context, string) (time.Duration, error) {
	return 0, s.err
}
func (s stubAttemptStore) Reset(context.Context, string) error { return s.err }
