package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/errs"
	"github.com/miguel-loureiro/BookCatalog/internal/services/iam"
	"github.com/miguel-loureiro/BookCatalog/internal/telemetry"
)

const bearerPrefix = "Bearer "

// TokenService is the token half of authentication.
type TokenService interface {
	// ExtractSubject decodes the subject without verifying. Malformed tokens
	// yield "" and a nil error.
	ExtractSubject(token string) (string, error)
	Validate(token string, expected auth.Principal) bool
}

// PrincipalResolver maps a subject to a principal. A miss is
// iam.ErrPrincipalNotFound.
type PrincipalResolver interface {
	ResolveBySubject(ctx context.Context, subject string) (auth.Principal, error)
}

// ErrorResolver renders a terminal authentication error.
type ErrorResolver interface {
	Resolve(w http.ResponseWriter, r *http.Request, err error)
}

// ErrorResolverFunc adapts a function to ErrorResolver.
type ErrorResolverFunc func(w http.ResponseWriter, r *http.Request, err error)

func (f ErrorResolverFunc) Resolve(w http.ResponseWriter, r *http.Request, err error) { f(w, r, err) }

// ProblemResolver writes errors as problem+json.
type ProblemResolver struct {
	Logger *zap.Logger
}

func (p ProblemResolver) Resolve(w http.ResponseWriter, r *http.Request, err error) {
	errs.Write(w, r, p.Logger, err)
}

// Outcome is the result of one authentication decision: either continue
// with a (possibly enriched) context, or terminate with an error.
type Outcome struct {
	ctx context.Context
	err error
}

// Continue forwards the request with ctx.
func Continue(ctx context.Context) Outcome { return Outcome{ctx: ctx} }

// Terminate stops the chain with err. A nil err is a programming error and
// is replaced with an internal error.
func Terminate(err error) Outcome {
	if err == nil {
		err = errs.Internal("terminated without cause", nil)
	}
	return Outcome{err: err}
}

func (o Outcome) Terminated() bool         { return o.err != nil }
func (o Outcome) Err() error               { return o.err }
func (o Outcome) Context() context.Context { return o.ctx }

// Authentication outcome labels.
const (
	OutcomeAnonymous     = "anonymous"
	OutcomeAlreadyBound  = "already_bound"
	OutcomeNotFound      = "not_found"
	OutcomeInvalid       = "invalid"
	OutcomeAuthenticated = "authenticated"
	OutcomeError         = "error"
	OutcomePanic         = "panic"
)

// AuthnDependencies bundles the collaborators of the Authenticator.
type AuthnDependencies struct {
	Tokens        TokenService
	Principals    PrincipalResolver
	ErrorResolver ErrorResolver
	Metrics       *telemetry.Metrics
	Logger        *zap.Logger
}

// Authenticator binds a principal to the request context when the request
// carries a valid Bearer token. It never writes a status itself: failures
// to authenticate leave the request anonymous, and unexpected errors go to
// the ErrorResolver.
type Authenticator struct {
	tokens     TokenService
	principals PrincipalResolver
	resolver   ErrorResolver
	metrics    *telemetry.Metrics
	logger     *zap.Logger
}

func NewAuthenticator(deps AuthnDependencies) *Authenticator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := deps.ErrorResolver
	if resolver == nil {
		resolver = ProblemResolver{Logger: logger}
	}
	return &Authenticator{
		tokens:     deps.Tokens,
		principals: deps.Principals,
		resolver:   resolver,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Decide runs the authentication state machine for r.
func (a *Authenticator) Decide(r *http.Request) (out Outcome) {
	ctx := r.Context()
	defer func() {
		if rec := recover(); rec != nil {
			a.record(OutcomePanic)
			out = Terminate(errs.Internal("authentication failed", fmt.Errorf("panic: %v", rec)))
		}
	}()

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		a.record(OutcomeAnonymous)
		return Continue(ctx)
	}
	token := strings.TrimPrefix(header, bearerPrefix)

	subject, err := a.tokens.ExtractSubject(token)
	if err != nil {
		return a.fail(err)
	}
	if subject == "" {
		a.record(OutcomeAnonymous)
		return Continue(ctx)
	}

	if _, bound := auth.PrincipalFromContext(ctx); bound {
		a.record(OutcomeAlreadyBound)
		return Continue(ctx)
	}

	principal, err := a.principals.ResolveBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, iam.ErrPrincipalNotFound) {
			a.record(OutcomeNotFound)
			return Continue(ctx)
		}
		return a.fail(err)
	}

	if !a.tokens.Validate(token, principal) {
		a.record(OutcomeInvalid)
		return Continue(ctx)
	}

	a.record(OutcomeAuthenticated)
	return Continue(auth.WithPrincipal(ctx, principal))
}

func (a *Authenticator) fail(err error) Outcome {
	a.record(OutcomeError)
	a.logger.Warn("authentication error", zap.Error(err))
	return Terminate(errs.Unauthenticated("Authentication failed", err))
}

func (a *Authenticator) record(outcome string) {
	a.metrics.AuthnOutcome(outcome)
}

// Middleware forwards exactly once on Continue and resolves the error
// exactly once on Terminate.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := a.Decide(r)
		if out.Terminated() {
			a.resolver.Resolve(w, r, out.Err())
			return
		}
		next.ServeHTTP(w, r.WithContext(out.Context()))
	})
}
