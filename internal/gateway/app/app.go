package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tabwave/stepgate/internal/gateway/audit"
	httpapi "github.com/tabwave/stepgate/internal/gateway/http"
	"github.com/tabwave/stepgate/internal/gateway/service"
	"github.com/tabwave/stepgate/internal/gateway/store"
	"github.com/tabwave/stepgate/pkg/jwtx"
	"github.com/tabwave/stepgate/pkg/slogx"
	"github.com/tabwave/stepgate/pkg/ticket"
)

const BuildVersion = "v0.1.0"

// Mode selects which server an Application runs.
type Mode string

const (
	ModeAuthenticator Mode = "authenticator"
	ModeValidator     Mode = "validator"
)

// Application wires the gateway together for one of the two binaries.
type Application struct {
	cfg    Config
	mode   Mode
	logger *slog.Logger

	ledger       store.Ledger
	auditOut     *os.File
	audit        *audit.Dispatcher
	housekeeping *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New builds an Application. Any configuration fault is returned here
// and must abort startup; nothing is retried lazily at request time.
func New(cfg Config, mode Mode) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg:  cfg,
		mode: mode,
		logger: slogx.New(slogx.Config{
			Service: "stepgate-" + string(mode),
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initAudit(); err != nil {
		return nil, err
	}
	if err := app.initLedger(); err != nil {
		return nil, err
	}

	registry, err := app.buildRegistry()
	if err != nil {
		return nil, err
	}

	finder, err := registry.Finder(cfg.FinderName)
	if err != nil {
		return nil, err
	}
	template, err := registry.Template(cfg.TemplateName)
	if err != nil {
		return nil, err
	}

	router := httpapi.NewRouter(app.logger, BuildVersion)
	router.Registry = registry
	router.Ledger = app.ledger
	router.Template = template
	router.DefaultMethod = cfg.DefaultMethod
	router.Cookie = httpapi.TokenCookie{
		Name:     cfg.CookieName,
		MaxAge:   cfg.CookieAge,
		Secure:   cfg.CookieSecure,
		HTTPOnly: cfg.CookieHTTPOnly,
	}

	if cfg.TktSecret != "" {
		policy, err := ticket.NewCookiePolicy(cfg.TktSecret, cfg.TktCookieName,
			ticket.WithSecure(cfg.CookieSecure),
			ticket.WithIncludeIP(cfg.TktIncludeIP),
			ticket.WithTimeout(cfg.TktTimeout, cfg.TktReissue),
			ticket.WithCookieDomain(cfg.TktDomain),
		)
		if err != nil {
			return nil, err
		}
		router.Tickets = policy
	}

	switch mode {
	case ModeAuthenticator:
		signer, err := jwtx.NewHMACSigner(cfg.JWTAlgorithm, cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		router.Orchestrator = &service.Orchestrator{
			Log:        app.logger,
			Registry:   registry,
			Finder:     finder,
			Registrar:  registry.Registrar(cfg.RegistrarName),
			Signer:     signer,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			SessionTTL: cfg.SessionTTL,
			Audit:      app.audit,
		}
		router.ApplyAuthenticatorRoutes()

		app.housekeeping = service.NewHousekeepingService(
			app.ledger, app.logger, cfg.HousekeepingInterval, cfg.LedgerRetention)

	case ModeValidator:
		verifier, err := jwtx.NewHMACVerifier(cfg.JWTAlgorithm, cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
		if err != nil {
			return nil, err
		}
		router.Validator = &service.Validator{
			Log:      app.logger,
			Verifier: verifier,
			Finder:   finder,
			Audit:    app.audit,
		}
		router.ApplyValidatorRoutes()

	default:
		return nil, fmt.Errorf("app: unknown mode %q", mode)
	}

	app.router = router
	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return app, nil
}

func (app *Application) initAudit() error {
	var sink audit.Sink = audit.SlogSink{Log: app.logger}

	if app.cfg.AuditFile != "" {
		f, err := os.OpenFile(app.cfg.AuditFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("app: opening audit file: %w", err)
		}
		app.auditOut = f
		sink = audit.NewJSONWriterSink(f)
	}

	app.audit = audit.NewDispatcher(sink, 256, true)
	return nil
}

// Run starts the server and blocks until shutdown is requested.
func (app *Application) Run() error {
	if app.housekeeping != nil {
		app.housekeeping.Start()
	}

	app.logger.Info("stepgate starting",
		"mode", app.mode, "port", app.cfg.Port, "version", BuildVersion)

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

// Shutdown drains outstanding requests, stops housekeeping, flushes
// the audit pipeline and closes the ledger.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down", "mode", app.mode)

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.housekeeping != nil {
		app.housekeeping.Stop()
	}

	app.audit.Close()
	if app.auditOut != nil {
		if err := app.auditOut.Close(); err != nil {
			app.logger.Error("error closing audit file", "error", err)
		}
	}

	if err := app.ledger.Close(); err != nil {
		app.logger.Error("error closing ledger", "error", err)
	}

	app.logger.Info("shutdown complete")
	return nil
}
