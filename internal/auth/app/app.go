package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpapi "github.com/htvo/oauth2d/internal/auth/http"
	"github.com/htvo/oauth2d/internal/auth/kv"
	"github.com/htvo/oauth2d/internal/auth/service"
	"github.com/htvo/oauth2d/internal/auth/store"
	"github.com/htvo/oauth2d/internal/auth/store/drivers/sqlite"
	"github.com/htvo/oauth2d/pkg/jwtx"
	"github.com/htvo/oauth2d/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the store, the services and the HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	kv     kv.Store
	signer jwtx.Signer
	redis  *redis.Client

	tokenService        *service.TokenService
	codeService         *service.CodeService
	mfaService          *service.MFAService
	authService         *service.AuthService
	limiter             *service.RateLimiter
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "oauth2d",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	signer, err := jwtx.NewSigner(cfg.Algorithm, cfg.Issuer)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize token signer: %w", err)
	}
	app.signer = signer

	app.initEphemeral()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("oauth2d starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the server, the housekeeping loop and the
// backing stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down oauth2d...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.kv.Close(); err != nil {
		app.logger.Error("error closing kv store", "error", err)
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("oauth2d stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initEphemeral picks the backing stores for MFA challenges and rate
// buckets. Redis when configured, otherwise in-process equivalents.
func (app *Application) initEphemeral() {
	if app.cfg.RedisAddr == "" {
		app.kv = kv.NewMemory()
		app.limiter = service.NewRateLimiter(service.NewMemoryBucketStore(), service.DefaultRatePolicies())
		app.logger.Info("using in-memory kv and rate bucket stores")
		return
	}

	app.redis = redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
	app.kv = kv.NewRedis(app.redis, "oauth2d")
	app.limiter = service.NewRateLimiter(service.NewRedisBucketStore(app.redis), service.DefaultRatePolicies())
	app.logger.Info("using redis kv and rate bucket stores", "addr", app.cfg.RedisAddr)
}

func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Store:      app.db,
		Signer:     app.signer,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
	}

	app.codeService = &service.CodeService{
		Store:       app.db,
		CodeTTL:     app.cfg.AuthCodeTTL,
		RequirePKCE: app.cfg.RequirePKCE,
	}

	app.mfaService = &service.MFAService{
		Store:        app.db,
		KV:           app.kv,
		Issuer:       app.cfg.Issuer,
		ChallengeTTL: app.cfg.MFAChallengeTTL,
	}

	app.authService = &service.AuthService{
		Store:            app.db,
		Tokens:           app.tokenService,
		Codes:            app.codeService,
		MFA:              app.mfaService,
		Limiter:          app.limiter,
		MaxLoginFailures: app.cfg.MaxLoginFailures,
		LockoutDuration:  app.cfg.LockoutDuration,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.codeService,
		app.tokenService,
		app.logger,
		app.cfg.TokenSweepInterval,
		app.cfg.CodeSweepInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.signer, BuildVersion, app.db, app.kv, app.logger)

	router.AuthService = app.authService
	router.TokenService = app.tokenService
	router.CodeService = app.codeService
	router.MFAService = app.mfaService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
