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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/prometheus/client_golang/prometheus"

	httpapi "github.com/csis-platform/iam/internal/iam/http"
	"github.com/csis-platform/iam/internal/iam/keycloak"
	"github.com/csis-platform/iam/internal/iam/mail"
	"github.com/csis-platform/iam/internal/iam/obs"
	"github.com/csis-platform/iam/internal/iam/service"
	"github.com/csis-platform/iam/internal/iam/store"
	"github.com/csis-platform/iam/internal/iam/store/drivers/sqlite"
	"github.com/csis-platform/iam/pkg/cryptox"
	"github.com/csis-platform/iam/pkg/jwtx"
	"github.com/csis-platform/iam/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the identity service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	keyManager *jwtx.KeyManager
	registry   *prometheus.Registry
	metrics    *obs.Metrics
	mailer     mail.Sender
	keycloak   *keycloak.Client

	// Services
	tokenService        *service.TokenService
	authService         *service.AuthService
	rbacService         *service.RBACService
	userService         *service.UserService
	auditService        *service.AuditService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "iam",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := InitKeys(app.cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	app.registry = prometheus.NewRegistry()
	app.metrics = obs.NewMetrics(app.registry)

	if err := app.initMailer(); err != nil {
		return nil, err
	}
	app.initKeycloak()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("iam service starting", "port", app.cfg.Port, "version", BuildVersion)

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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down iam service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("iam service stopped")
	return nil
}

// initDatabase opens the sqlite store and applies migrations. Connection
// pragmas (WAL, foreign keys, busy timeout) are handled by the driver.
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
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

// initMailer selects the outbound mail backend.
func (app *Application) initMailer() error {
	switch app.cfg.MailProvider {
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return fmt.Errorf("failed to load AWS config for SES: %w", err)
		}
		app.mailer = mail.NewSESSender(ses.NewFromConfig(awsCfg), app.cfg.MailFrom)
		app.logger.Info("mail sender initialized", "provider", "ses", "from", app.cfg.MailFrom)
	default:
		app.mailer = &mail.ConsoleSender{Logger: app.logger}
		app.logger.Info("mail sender initialized", "provider", "console")
	}
	return nil
}

// initKeycloak builds the mirror client when configured; nil otherwise.
func (app *Application) initKeycloak() {
	if !app.cfg.Keycloak.Enabled() {
		app.logger.Info("keycloak mirroring disabled")
		return
	}
	app.keycloak = keycloak.NewClient(app.cfg.Keycloak)
	app.logger.Info("keycloak mirroring enabled",
		"base_url", app.cfg.Keycloak.BaseURL,
		"realm", app.cfg.Keycloak.Realm,
	)
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		KeyManager: app.keyManager,
		Store:      app.db,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
	}

	app.auditService = &service.AuditService{Store: app.db}

	app.authService = &service.AuthService{
		Store:           app.db,
		Tokens:          app.tokenService,
		Lockout:         service.NewLockoutGuard(app.db, app.cfg.LockoutThreshold, app.cfg.LockoutWindow),
		Mailer:          app.mailer,
		Audit:           app.auditService,
		Keycloak:        app.keycloak,
		Metrics:         app.metrics,
		FrontendBaseURL: app.cfg.FrontendBaseURL,
		ResetTTL:        app.cfg.ResetTokenTTL,
		VerifyTTL:       app.cfg.VerifyTokenTTL,
	}

	app.rbacService = &service.RBACService{
		Store:    app.db,
		Audit:    app.auditService,
		Keycloak: app.keycloak,
	}
	app.userService = &service.UserService{
		Store:    app.db,
		Audit:    app.auditService,
		Keycloak: app.keycloak,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		app.keyManager.Verifier,
		app.cfg.Issuer,
		BuildVersion,
		app.db,
		app.logger,
		app.metrics,
		app.registry,
	)

	router.AuthService = app.authService
	router.TokenService = app.tokenService
	router.RBACService = app.rbacService
	router.UserService = app.userService
	router.AuditService = app.auditService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
