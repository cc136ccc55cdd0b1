package iam

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/db/models"
	"github.com/miguel-loureiro/BookCatalog/internal/errs"
	"github.com/miguel-loureiro/BookCatalog/internal/repository"
	"github.com/miguel-loureiro/BookCatalog/internal/telemetry"
)

// Service provides login, registration and user administration.
type Service interface {
	// Login checks credentials and issues a token. Unknown users and wrong
	// passwords are indistinguishable to the caller.
	Login(ctx context.Context, req LoginRequest) (TokenResponse, error)
	// GuestLogin issues a token for the synthetic guest principal.
	GuestLogin(ctx context.Context) (TokenResponse, error)
	// Register creates a READER account.
	Register(ctx context.Context, req SignupRequest) (*models.User, error)
	// CreateUser creates an account with an explicit role.
	CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, by LookupType, identifier string) (*models.User, error)
	UpdateUser(ctx context.Context, by LookupType, identifier string, req UpdateUserRequest) (*models.User, error)
	DeleteUser(ctx context.Context, by LookupType, identifier string) error
}

// TokenIssuer is the part of auth.TokenService the service needs.
type TokenIssuer interface {
	Issue(principal auth.Principal) (auth.Token, error)
	ExpirationWindow() time.Duration
}

// LoginRequest carries credentials. ClientKey identifies the caller for
// throttling and is never read from the body.
type LoginRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	ClientKey string `json:"-"`
}

// TokenResponse is returned by both login flows. ExpiresIn is in
// milliseconds.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UpdateUserRequest changes only the fields that are set.
type UpdateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// LookupType selects how a user path identifier is interpreted.
type LookupType string

const (
	LookupByID       LookupType = "id"
	LookupByUsername LookupType = "username"
	LookupByEmail    LookupType = "email"
)

// ParseLookupType rejects anything but id, username and email.
func ParseLookupType(s string) (LookupType, error) {
	switch t := LookupType(strings.ToLower(s)); t {
	case LookupByID, LookupByUsername, LookupByEmail:
		return t, nil
	}
	return "", errs.BadRequest(fmt.Sprintf("Invalid identifier type: %s", s), nil)
}

const (
	msgMissingIdentifier = "Either username or email must be provided"
	msgInvalidCredential = "Invalid credentials"
	msgUserExists        = "Username or email already in use"
	msgReservedUsername  = "Username is reserved"
	msgUserNotFound      = "User not found"
)

// Dependencies groups the collaborators of the service.
type Dependencies struct {
	Users     repository.UserRepository
	Tokens    TokenIssuer
	Throttler *LoginThrottler
	Metrics   *telemetry.Metrics
	Logger    *zap.Logger
}

// Config tunes password hashing. A zero HashCost means bcrypt.DefaultCost.
type Config struct {
	HashCost int
	Now      func() time.Time
}

type iamService struct {
	users     repository.UserRepository
	tokens    TokenIssuer
	throttler *LoginThrottler
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	hashCost  int
	now       func() time.Time
}

func NewService(deps Dependencies, cfg Config) Service {
	cost := cfg.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &iamService{
		users:     deps.Users,
		tokens:    deps.Tokens,
		throttler: deps.Throttler,
		metrics:   deps.Metrics,
		logger:    logger,
		hashCost:  cost,
		now:       now,
	}
}

func (s *iamService) Login(ctx context.Context, req LoginRequest) (TokenResponse, error) {
	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" {
		s.metrics.LoginAttempt("user", "bad_request")
		return TokenResponse{}, errs.BadRequest(msgMissingIdentifier, nil)
	}

	if err := s.throttler.Check(ctx, req.ClientKey); err != nil {
		s.metrics.LoginAttempt("user", "throttled")
		return TokenResponse{}, err
	}

	user, err := s.authenticate(ctx, identifier, req.Password)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthenticated) {
			s.metrics.LoginAttempt("user", "invalid")
			if lockErr := s.throttler.Failure(ctx, req.ClientKey); lockErr != nil {
				return TokenResponse{}, lockErr
			}
		}
		return TokenResponse{}, err
	}

	principal, err := PrincipalFromUser(user)
	if err != nil {
		return TokenResponse{}, errs.Internal("resolve principal", err)
	}
	resp, err := s.issue(principal)
	if err != nil {
		s.metrics.LoginAttempt("user", "error")
		return TokenResponse{}, err
	}

	s.throttler.Success(ctx, req.ClientKey)
	// The token is already issued; a stale last-login time is not worth
	// failing the login over.
	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		s.logger.Warn("record last login failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	s.metrics.LoginAttempt("user", "success")
	return resp, nil
}

func (s *iamService) authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	if identifier == auth.GuestSubject {
		return nil, errs.Unauthenticated(msgInvalidCredential, nil)
	}
	user, err := s.users.GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.Unauthenticated(msgInvalidCredential, err)
		}
		return nil, errs.Internal("load user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errs.Unauthenticated(msgInvalidCredential, err)
	}
	return user, nil
}

func (s *iamService) GuestLogin(ctx context.Context) (TokenResponse, error) {
	resp, err := s.issue(auth.GuestPrincipal())
	if err != nil {
		s.metrics.LoginAttempt("guest", "error")
		return TokenResponse{}, err
	}
	s.metrics.LoginAttempt("guest", "success")
	return resp, nil
}

func (s *iamService) issue(principal auth.Principal) (TokenResponse, error) {
	tok, err := s.tokens.Issue(principal)
	if err != nil {
		return TokenResponse{}, errs.Internal("issue token", err)
	}
	return TokenResponse{
		Token:     tok.Value,
		ExpiresIn: s.tokens.ExpirationWindow().Milliseconds(),
	}, nil
}

func (s *iamService) Register(ctx context.Context, req SignupRequest) (*models.User, error) {
	return s.createUser(ctx, req.Username, req.Email, req.Password, auth.RoleReader)
}

func (s *iamService) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return nil, errs.BadRequest(fmt.Sprintf("Invalid role: %s", req.Role), err)
	}
	if role == auth.RoleGuest {
		return nil, errs.BadRequest("Guest accounts cannot be created", nil)
	}
	return s.createUser(ctx, req.Username, req.Email, req.Password, role)
}

func (s *iamService) createUser(ctx context.Context, username, email, password string, role auth.Role) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, errs.BadRequest("Username, email and password are required", nil)
	}
	if strings.EqualFold(username, auth.GuestSubject) {
		return nil, errs.BadRequest(msgReservedUsername, nil)
	}

	taken, err := s.users.ExistsByUsernameOrEmail(ctx, username, email, 0)
	if err != nil {
		return nil, errs.Internal("check user uniqueness", err)
	}
	if taken {
		return nil, errs.BadRequest(msgUserExists, nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, errs.Internal("hash password", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         string(role),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, errs.BadRequest(msgUserExists, err)
		}
		return nil, errs.Internal("create user", err)
	}
	return user, nil
}

func (s *iamService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, errs.Internal("list users", err)
	}
	return users, nil
}

func (s *iamService) GetUser(ctx context.Context, by LookupType, identifier string) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	switch by {
	case LookupByID:
		id, perr := strconv.ParseInt(identifier, 10, 64)
		if perr != nil {
			return nil, errs.BadRequest(fmt.Sprintf("Invalid user id: %s", identifier), perr)
		}
		user, err = s.users.GetByID(ctx, id)
	case LookupByUsername:
		user, err = s.users.GetByUsername(ctx, identifier)
	case LookupByEmail:
		user, err = s.users.GetByEmail(ctx, identifier)
	default:
		return nil, errs.BadRequest(fmt.Sprintf("Invalid identifier type: %s", by), nil)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.NotFound(msgUserNotFound, err)
		}
		return nil, errs.Internal("load user", err)
	}
	return user, nil
}

func (s *iamService) UpdateUser(ctx context.Context, by LookupType, identifier string, req UpdateUserRequest) (*models.User, error) {
	user, err := s.GetUser(ctx, by, identifier)
	if err != nil {
		return nil, err
	}

	username, email := user.Username, user.Email
	if req.Username != nil {
		username = strings.TrimSpace(*req.Username)
		if username == "" {
			return nil, errs.BadRequest("Username must not be empty", nil)
		}
		if strings.EqualFold(username, auth.GuestSubject) {
			return nil, errs.BadRequest(msgReservedUsername, nil)
		}
	}
	if req.Email != nil {
		email = strings.TrimSpace(*req.Email)
		if email == "" {
			return nil, errs.BadRequest("Email must not be empty", nil)
		}
	}
	if username != user.Username || email != user.Email {
		taken, err := s.users.ExistsByUsernameOrEmail(ctx, username, email, user.ID)
		if err != nil {
			return nil, errs.Internal("check user uniqueness", err)
		}
		if taken {
			return nil, errs.BadRequest(msgUserExists, nil)
		}
	}
	user.Username, user.Email = username, email

	if req.Role != nil {
		role, err := auth.ParseRole(*req.Role)
		if err != nil || role == auth.RoleGuest {
			return nil, errs.BadRequest(fmt.Sprintf("Invalid role: %s", *req.Role), err)
		}
		user.Role = string(role)
	}
	if req.Password != nil {
		if *req.Password == "" {
			return nil, errs.BadRequest("Password must not be empty", nil)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.hashCost)
		if err != nil {
			return nil, errs.Internal("hash password", err)
		}
		user.PasswordHash = string(hash)
	}

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, errs.NotFound(msgUserNotFound, err)
		case errors.Is(err, repository.ErrConflict):
			return nil, errs.BadRequest(msgUserExists, err)
		}
		return nil, errs.Internal("update user", err)
	}
	return user, nil
}

func (s *iamService) DeleteUser(ctx context.Context, by LookupType, identifier string) error {
	user, err := s.GetUser(ctx, by, identifier)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errs.NotFound(msgUserNotFound, err)
		}
		return errs.Internal("delete user", err)
	}
	return nil
}
