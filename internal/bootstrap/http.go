package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcbase/marcbase/config"
	httpx "github.com/marcbase/marcbase/internal/http"
	"github.com/marcbase/marcbase/internal/service"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Records:         cfg.Services.Records,
		Jobs:            cfg.Services.Jobs,
		FailedPublishes: cfg.Services.FailedPublishes,
		Logger:          logger,
	})

	return startServer(logger, handler, appCfg.HTTP)
}

func startServer(logger *slog.Logger, handler http.Handler, cfg config.HTTPConfig) *http.Server {
	addr := cfg.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	// No WriteTimeout: streaming responses run as long as the result set
	// takes. Slow-client exposure is bounded by the sink watermarks instead.
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context   context.Context
	Server    *http.Server
	Registry  *service.Registry
	JobsGrace time.Duration
	Logger    *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server and drains the
// bulk job registry. Jobs that do not reach a checkpoint within the grace
// period are left in progress for the reaper.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(cfg.Context, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Registry != nil {
		grace := cfg.JobsGrace
		if grace <= 0 {
			grace = 30 * time.Second
		}
		drainCtx, drainCancel := context.WithTimeout(context.Background(), grace)
		defer drainCancel()

		if err := cfg.Registry.Shutdown(drainCtx); err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Warn("bulk jobs did not drain before deadline", "error", err)
			}
		}
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
