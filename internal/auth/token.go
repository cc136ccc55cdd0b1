package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// MinSecretLength is the minimum HS256 key size in bytes.
const MinSecretLength = 32

// ErrSigningKey is returned by Issue when the signing key is unusable.
var ErrSigningKey = errors.New("token signing key is not configured")

// Token is a signed credential and its expiry instant.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenService issues and validates HS256 tokens bound to a principal's
// subject. It holds no per-token state.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService builds a service. Key problems surface from Issue so that
// callers can map them to a server error.
func NewTokenService(secret, issuer string, ttl time.Duration, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for principal with subject, iat, exp, iss and jti claims.
func (s *TokenService) Issue(principal Principal) (Token, error) {
	if len(s.secret) < MinSecretLength {
		return Token{}, fmt.Errorf("%w: need at least %d bytes, have %d", ErrSigningKey, MinSecretLength, len(s.secret))
	}
	if principal.Subject() == "" {
		return Token{}, errors.New("cannot issue token for principal without subject")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   principal.Subject(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// Validate reports whether token has a valid HS256 signature, is unexpired,
// was issued by this service, and names expected as its subject. It never
// panics on malformed input.
func (s *TokenService) Validate(token string, expected Principal) bool {
	if token == "" || expected.Subject() == "" || len(s.secret) == 0 {
		return false
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return false
	}
	return claims.Subject == expected.Subject()
}

// subjectClaims is the part of the payload ExtractSubject reads.
type subjectClaims struct {
	Subject string `mapstructure:"sub"`
}

// ExtractSubject decodes the subject claim without verifying the token.
// A malformed token, or one without a string subject, yields "" and a nil
// error. The error return is reserved for failures that are not about the
// token's shape.
func (s *TokenService) ExtractSubject(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	raw := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, raw); err != nil {
		return "", nil
	}

	var claims subjectClaims
	if err := mapstructure.Decode(map[string]interface{}(raw), &claims); err != nil {
		return "", nil
	}
	return claims.Subject, nil
}

// ExpirationWindow returns the configured token lifetime. It is for client
// display only and plays no part in validation.
func (s *TokenService) ExpirationWindow() time.Duration {
	return s.ttl
}
