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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/NevessSt/Trading-bots-sub000/internal/config"
	"github.com/NevessSt/Trading-bots-sub000/internal/infrastructure"
	"github.com/NevessSt/Trading-bots-sub000/internal/issuer"
	"github.com/NevessSt/Trading-bots-sub000/internal/license"
	customMiddleware "github.com/NevessSt/Trading-bots-sub000/internal/middleware"
	"github.com/NevessSt/Trading-bots-sub000/internal/store"
	handlers "github.com/NevessSt/Trading-bots-sub000/internal/transport/http"
)

// Application is the issuer service container: configuration, logger,
// store, service, and the HTTP server, wired once at startup.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Router        *chi.Mux
	Server        *http.Server
	Store         store.Store
	Issuer        *issuer.Service
	OTelProviders *infrastructure.OTelProviders
}

// NewApplication creates the issuer application with all dependencies
// injected; nothing here is package-level mutable state.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig is NewApplication with an explicit
// configuration, used by tests.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("license issuer starting",
		slog.String("version", cfg.Issuer.Version),
		slog.Int("port", cfg.Server.Port))

	if cfg.Issuer.SharedSecret == "" {
		return nil, fmt.Errorf("issuer shared secret is required (TBOT_ISSUER_SHARED_SECRET)")
	}
	if cfg.Issuer.APIKey == "" {
		return nil, fmt.Errorf("issuer API key is required (TBOT_ISSUER_API_KEY)")
	}

	otelProviders, err := infrastructure.InitializeOTel(
		infrastructure.DefaultOTelConfig(cfg.Issuer.Version), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	signer, err := license.NewSigner(cfg.Issuer.SharedSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := store.OpenSQLite(ctx, cfg.Issuer.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open license store: %w", err)
	}

	metrics, err := infrastructure.CreateLicenseMetrics(otelProviders.Meter)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create license metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		Store:         st,
		Issuer:        issuer.NewService(st, signer, logger, metrics),
		OTelProviders: otelProviders,
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(customMiddleware.TraceID)
	r.Use(customMiddleware.RequestLogger(a.Logger))
	r.Use(chimiddleware.Recoverer)

	licenseHandler := handlers.NewLicenseHandler(a.Issuer, a.Logger)
	healthHandler := handlers.NewHealthHandler(a.Config.Issuer.Version)

	r.Get("/health", healthHandler.Health)
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Method(http.MethodGet, "/metrics", a.OTelProviders.PrometheusHTTP)
	}

	// Public endpoints, rate limited.
	r.Group(func(r chi.Router) {
		if a.Config.Server.RateLimit.Enabled {
			limiter := customMiddleware.NewRateLimiter(
				a.Config.Server.RateLimit.RPS,
				a.Config.Server.RateLimit.Burst,
				a.Logger)
			r.Use(limiter.Handler)
		}
		r.Post("/validate", licenseHandler.Validate)
		r.Get("/revocation-list", licenseHandler.RevocationList)
	})

	// Admin endpoints behind the API key.
	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.APIKeyAuth(a.Config.Issuer.APIKey, a.Logger))
		r.Post("/generate", licenseHandler.Generate)
		r.Post("/revoke", licenseHandler.Revoke)
		r.Get("/stats", licenseHandler.Stats)
	})

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then
// shuts down gracefully within the configured timeout.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()

	a.cleanup()
	return err
}

func (a *Application) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			a.Logger.Warn("otel shutdown failed", slog.String("error", err.Error()))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("store close failed", slog.String("error", err.Error()))
		}
	}
	infrastructure.CloseLogFile()
}
