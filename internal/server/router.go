package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/logging"
	bcmiddleware "github.com/miguel-loureiro/BookCatalog/internal/middleware"
	"github.com/miguel-loureiro/BookCatalog/internal/services/catalog"
	"github.com/miguel-loureiro/BookCatalog/internal/services/iam"
	"github.com/miguel-loureiro/BookCatalog/internal/services/validation"
	"github.com/miguel-loureiro/BookCatalog/internal/telemetry"
)

// RouterOptions controls the construction of the HTTP router. IAM, Catalog,
// Validator, Authenticator and Authorizer are required; the rest have
// defaults.
type RouterOptions struct {
	IAM           iam.Service
	Catalog       *catalog.Service
	Validator     *validation.SchemaValidator
	Authenticator *bcmiddleware.Authenticator
	Authorizer    *bcmiddleware.Authorizer
	// LoginLimiter throttles the login endpoints per client IP. Nil disables it.
	LoginLimiter  *bcmiddleware.RateLimiter
	Metrics       *telemetry.Metrics
	Logger        *zap.Logger
	CORSOptions   *cors.Options
	// TrustProxy mounts chi's RealIP so client addresses come from
	// X-Forwarded-For and X-Real-IP. Leave it off unless a proxy sets them.
	TrustProxy    bool
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions returns the development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles the chi router: shared middleware, authentication on
// every request, and each route gated by its declared policy.
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &api{
		iam:       opts.IAM,
		catalog:   opts.Catalog,
		validator: opts.Validator,
		logger:    logger,
	}
	authz := opts.Authorizer

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(opts.Metrics.Middleware)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(opts.Authenticator.Middleware)

		r.Post("/auth/signup", a.handleSignup)
		r.Group(func(r chi.Router) {
			r.Use(opts.LoginLimiter.Middleware)
			r.Post("/auth/login", a.handleLogin)
			r.Post("/guest/login", a.handleGuestLogin)
		})
		r.With(authz.Require(auth.PolicyGuestBooks)).Get("/guest/books", a.handleGuestBooks)

		r.Route("/user", func(r chi.Router) {
			r.With(authz.Require(auth.PolicyUserSelf)).Get("/me", a.handleMe)

			r.Group(func(r chi.Router) {
				r.Use(authz.Require(auth.PolicyUserAdmin))
				r.Get("/all", a.handleListUsers)
				r.Post("/create", a.handleCreateUser)
				r.Get("/{type}/{identifier}", a.handleGetUser)
				r.Put("/{type}/{identifier}", a.handleUpdateUser)
				r.Delete("/{type}/{identifier}", a.handleDeleteUser)
			})
		})

		r.Route("/book", func(r chi.Router) {
			r.With(authz.Require(auth.PolicyBookCreate)).Post("/create", a.handleCreateBook)
			r.With(authz.Require(auth.PolicyBookListAll)).Get("/all", a.handleListBooks)
			r.With(authz.Require(auth.PolicyBookListAll)).Get("/all/short", a.handleListBooksShort)

			r.With(authz.Require(auth.PolicyBookRead)).Get("/user/{id}", a.handleBooksByUserID)
			r.With(authz.Require(auth.PolicyBookRead)).Get("/user/identifier/{identifier}", a.handleBooksByUserIdentifier)

			r.With(authz.Require(auth.PolicyBookRead)).Get("/{id}", a.handleGetBook)
			r.With(authz.Require(auth.PolicyBookCover)).Get("/{id}/cover", a.handleGetCover)
			r.With(authz.Require(auth.PolicyBookCollect)).Post("/{id}/collection", a.handleAddToCollection)
			r.With(authz.Require(auth.PolicyBookUpdate)).Put("/{id}", a.handleUpdateBook)
			r.With(authz.Require(auth.PolicyBookDelete)).Delete("/{id}", a.handleDeleteBook)
		})
	})

	return r
}

// NewH2CHandler wraps the router to serve HTTP/2 over cleartext as well as HTTP/1.1.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
