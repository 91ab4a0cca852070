package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcbase/marcbase/config"
	"github.com/marcbase/marcbase/internal/bus"
	"github.com/marcbase/marcbase/internal/data"
	"github.com/marcbase/marcbase/internal/observability/notify"
	"github.com/marcbase/marcbase/internal/observability/notify/pagerduty"
	"github.com/marcbase/marcbase/internal/observability/notify/slack"
	"github.com/marcbase/marcbase/internal/observability/statsd"
	"github.com/marcbase/marcbase/internal/service"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Records         *service.RecordService
	Jobs            *service.BulkJobService
	FailedPublishes *service.FailedPublishService
	Reaper          *service.ReaperService
	Registry        *service.Registry
	Metrics         *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB              *sql.DB
	Redis           redis.UniversalClient
	RecordRepo      *data.RecordRepo
	BulkJobRepo     *data.BulkJobRepo
	FailedPublishes *data.FailedPublishRepo
	ReaperRepo      *data.ReaperRepo
	Rows            *data.RowSource
}

// buildMetricsSink configures the StatsD client, or returns nil when metrics
// are disabled.
func buildMetricsSink(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) *statsd.Client {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	if !cfg.IsEnabled() {
		return nil
	}

	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  "marcbase",
		Logger:  obsLogger,
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// buildNotifySink assembles the failure notification fan-out from whichever
// destinations are configured, or returns nil when none are.
func buildNotifySink(logger *slog.Logger, cfg config.ObservabilityNotifyConfig) notify.Sink {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var sinks []notify.Sink

	if cfg.PagerDutyEnabled() {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDutyRoutingKey,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			obsLogger.Error("failed to initialise pagerduty sink", "error", err)
		} else {
			sinks = append(sinks, client)
		}
	}

	if cfg.SlackEnabled() {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.SlackWebhookURL,
			Channel:      cfg.SlackChannel,
			JobURLPrefix: cfg.JobURLPrefix,
			RetryLimit:   cfg.RetryLimit,
		})
		if err != nil {
			obsLogger.Error("failed to initialise slack sink", "error", err)
		} else {
			sinks = append(sinks, client)
		}
	}

	return notify.Fanout(sinks...)
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, redisClient redis.UniversalClient, logger *slog.Logger) *serviceRepositories {
	cfg := data.RepoConfig{Logger: logger}
	return &serviceRepositories{
		DB:              db,
		Redis:           redisClient,
		RecordRepo:      data.NewRecordRepo(db, cfg),
		BulkJobRepo:     data.NewBulkJobRepo(db, cfg),
		FailedPublishes: data.NewFailedPublishRepo(db, cfg),
		ReaperRepo:      data.NewReaperRepo(db, cfg),
		Rows:            data.NewRowSource(db, cfg),
	}
}

func newSinkFactory(
	repos *serviceRepositories,
	cfg config.JobsConfig,
	logger *slog.Logger,
) *bus.SinkFactory {
	return bus.NewSinkFactory(bus.SinkFactoryOptions{
		Client:      repos.Redis,
		DeadLetters: repos.FailedPublishes,
		HighWater:   cfg.SinkHighWater,
		LowWater:    cfg.SinkLowWater,
		MaxRetries:  cfg.PublishMaxRetries,
		MaxInterval: cfg.PublishMaxInterval,
		Logger:      logger,
	})
}

// NewServices wires repositories, the job engine, and domain services.
func NewServices(deps *ServiceDeps) ServiceContainer {
	if deps == nil {
		return ServiceContainer{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := deps.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	metrics := buildMetricsSink(logger, appCfg.Observability.Metrics)
	notifier := buildNotifySink(logger, appCfg.Observability.Notify)
	repos := buildRepositories(deps.DB, deps.RedisClient, logger)
	registry := service.NewRegistry()

	runner := service.MustNewJobRunner(service.JobRunnerOptions{
		Jobs:     repos.BulkJobRepo,
		Rows:     repos.Rows,
		Sinks:    newSinkFactory(repos, appCfg.Jobs, logger),
		Registry: registry,
		Config:   appCfg.Jobs,
		Logger:   logger,
		Metrics:  metrics,
		Notifier: notifier,
	})

	recordService := service.MustNewRecordService(service.RecordServiceOptions{
		Repo:   repos.RecordRepo,
		Rows:   repos.Rows,
		Logger: logger,
	})

	jobService := service.MustNewBulkJobService(service.BulkJobServiceOptions{
		Repo:   repos.BulkJobRepo,
		Runner: runner,
		Logger: logger,
	})

	failedPublishService := service.MustNewFailedPublishService(service.FailedPublishServiceOptions{
		Repo:   repos.FailedPublishes,
		Logger: logger,
	})

	var reaperService *service.ReaperService
	if appCfg.IsReaperEnabled() {
		svc, err := service.NewReaperService(service.ReaperServiceOptions{
			Repo:    repos.ReaperRepo,
			Config:  appCfg.Reaper,
			Logger:  logger,
			Metrics: metrics,
		})
		if err != nil {
			logger.Error("failed to initialise reaper service", "error", err)
		} else {
			reaperService = svc
		}
	}

	return ServiceContainer{
		Records:         recordService,
		Jobs:            jobService,
		FailedPublishes: failedPublishService,
		Reaper:          reaperService,
		Registry:        registry,
		Metrics:         metrics,
	}
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] || descriptor.start == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(
						ctx,
						"dropping background service error",
						"service",
						descriptor.name,
						"error",
						errMsg,
					)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	svc := backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
	}
	if deps == nil || deps.cfg == nil || deps.cfg.Services.Reaper == nil {
		return svc
	}
	reaper := deps.cfg.Services.Reaper
	svc.start = func(ctx context.Context) error {
		return reaper.Run(ctx)
	}
	return svc
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		registry:    cfg.Services.Registry,
		jobsGrace:   cfg.Config.Jobs.ShutdownGrace,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeReaper,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	registry    *service.Registry
	jobsGrace   time.Duration
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context:   shutdownCtx,
			Server:    cfg.httpServer,
			Registry:  cfg.registry,
			JobsGrace: cfg.jobsGrace,
			Logger:    cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
