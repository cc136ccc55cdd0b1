package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miguel-loureiro/BookCatalog/internal/auth"
	"github.com/miguel-loureiro/BookCatalog/internal/db/bunx"
	"github.com/miguel-loureiro/BookCatalog/internal/logging"
	bcmiddleware "github.com/miguel-loureiro/BookCatalog/internal/middleware"
	"github.com/miguel-loureiro/BookCatalog/internal/migrations"
	"github.com/miguel-loureiro/BookCatalog/internal/repository"
	"github.com/miguel-loureiro/BookCatalog/internal/server"
	"github.com/miguel-loureiro/BookCatalog/internal/services/catalog"
	"github.com/miguel-loureiro/BookCatalog/internal/services/iam"
	"github.com/miguel-loureiro/BookCatalog/internal/services/validation"
	"github.com/miguel-loureiro/BookCatalog/internal/storage"
	"github.com/miguel-loureiro/BookCatalog/internal/telemetry"
)

// memoryAttemptKeys bounds the in-process login failure store.
const memoryAttemptKeys = 10000

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the book catalog API server",
	Long:  `Starts the HTTP server with the auth, guest, user and book endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateForServe(); err != nil {
			return err
		}

		logger, err := logging.New(cfg.Debug)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer func() { _ = logging.Sync(logger) }()

		// Connect to database
		db, err := bunx.NewDB(cfg.DatabaseURL, bunx.WithMaxOpenConns(cfg.MaxDBConnections))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		logger.Info("connected to database", zap.String("dialect", string(bunx.DetectDatabaseType(cfg.DatabaseURL))))

		if migrateOnStart {
			group, err := migrations.Apply(cmd.Context(), db)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", zap.Int64("group", group.ID))
		}

		enforcer, err := auth.InitEnforcer(db)
		if err != nil {
			return fmt.Errorf("configure casbin enforcer: %w", err)
		}
		changed, err := enforcer.Sync(auth.Policies())
		if err != nil {
			return fmt.Errorf("sync endpoint policies: %w", err)
		}
		logger.Info("endpoint policies loaded", zap.Bool("changed", changed), zap.Int("rules", len(enforcer.Rules())))

		// Initialize repositories
		userRepo := repository.NewBunUserRepository(db)
		bookRepo := repository.NewBunBookRepository(db)

		metrics := telemetry.NewMetrics()
		tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)

		attempts, closeAttempts, err := newAttemptStore()
		if err != nil {
			return err
		}
		defer closeAttempts()

		throttler := iam.NewLoginThrottler(attempts, iam.ThrottleConfig{
			MaxFailures: cfg.Login.MaxFailures,
			Window:      cfg.Login.FailureWindow,
			Lockout:     cfg.Login.Lockout,
		}, logger.Named("throttle"))

		iamService := iam.NewService(iam.Dependencies{
			Users:     userRepo,
			Tokens:    tokens,
			Throttler: throttler,
			Metrics:   metrics,
			Logger:    logger.Named("iam"),
		}, iam.Config{})

		covers, err := storage.NewLocalStore(cfg.Upload.Dir)
		if err != nil {
			return fmt.Errorf("configure cover storage: %w", err)
		}
		catalogService := catalog.NewService(catalog.Dependencies{
			Books:  bookRepo,
			Users:  userRepo,
			Covers: covers,
			Logger: logger.Named("catalog"),
		}, cfg.Upload.MaxSize)

		validator, err := validation.NewSchemaValidator()
		if err != nil {
			return fmt.Errorf("compile request schemas: %w", err)
		}

		authenticator := bcmiddleware.NewAuthenticator(bcmiddleware.AuthnDependencies{
			Tokens:     tokens,
			Principals: iam.NewPrincipalResolver(userRepo),
			Metrics:    metrics,
			Logger:     logger.Named("authn"),
		})
		authorizer := bcmiddleware.NewAuthorizer(enforcer, metrics, logger.Named("authz"))

		corsOpts := server.DefaultCORSOptions()
		if len(cfg.CORS.AllowedOrigins) > 0 {
			corsOpts.AllowedOrigins = cfg.CORS.AllowedOrigins
		}

		routerOpts := server.RouterOptions{
			IAM:           iamService,
			Catalog:       catalogService,
			Validator:     validator,
			Authenticator: authenticator,
			Authorizer:    authorizer,
			LoginLimiter:  bcmiddleware.NewRateLimiter(cfg.Login.Rate, cfg.Login.Burst, logger.Named("ratelimit")),
			Metrics:       metrics,
			Logger:        logger,
			CORSOptions:   &corsOpts,
			TrustProxy:    cfg.TrustProxy,
		}

		// Create HTTP server
		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      server.NewH2CHandler(routerOpts),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", zap.String("addr", cfg.ServerAddr))
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down gracefully", zap.String("signal", sig.String()))

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			logger.Info("server stopped")
			return nil
		}
	},
}

// newAttemptStore returns the Redis store when login.redis_url is set and
// the in-process store otherwise.
func newAttemptStore() (iam.AttemptStore, func(), error) {
	if cfg.Login.RedisURL != "" {
		store, err := iam.NewRedisAttemptStore(cfg.Login.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("configure login attempt store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}

	ttl := cfg.Login.FailureWindow
	if cfg.Login.Lockout > ttl {
		ttl = cfg.Login.Lockout
	}
	return iam.NewMemoryAttemptStore(memoryAttemptKeys, ttl), func() {}, nil
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "Apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}
