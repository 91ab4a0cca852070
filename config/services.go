package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server and the bulk job engine.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeReaper runs the stale job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// JobsConfig contains bulk job engine configuration.
type JobsConfig struct {
	// ProgressInterval is how many processed rows pass between progress
	// flushes. Each flush is also a cancellation check point.
	ProgressInterval int64 `env:"JOBS_PROGRESS_INTERVAL" envDefault:"1000"`

	// SinkHighWater is the event sink queue depth at which the row source
	// is paused.
	SinkHighWater int `env:"JOBS_SINK_HIGH_WATER" envDefault:"256"`

	// SinkLowWater is the queue depth at which a paused source is resumed.
	// Zero means resume only when the queue fully drains.
	SinkLowWater int `env:"JOBS_SINK_LOW_WATER" envDefault:"64"`

	// PublishMaxRetries is the number of publish attempts per event before
	// the event is written to the dead-letter table.
	PublishMaxRetries int `env:"JOBS_PUBLISH_MAX_RETRIES" envDefault:"5"`

	// PublishMaxInterval caps the exponential backoff between publish retries.
	PublishMaxInterval time.Duration `env:"JOBS_PUBLISH_MAX_INTERVAL" envDefault:"5s"`

	// ShutdownGrace is how long running jobs get to reach a checkpoint when
	// the process is stopping.
	ShutdownGrace time.Duration `env:"JOBS_SHUTDOWN_GRACE" envDefault:"30s"`
}

// Sanitize applies guardrails to bulk job configuration values.
func (j *JobsConfig) Sanitize() {
	if j.ProgressInterval < 1 {
		j.ProgressInterval = 1
	}
	if j.SinkHighWater < 1 {
		j.SinkHighWater = 1
	}
	if j.SinkLowWater < 0 {
		j.SinkLowWater = 0
	}
	if j.SinkLowWater >= j.SinkHighWater {
		j.SinkLowWater = j.SinkHighWater / 2
	}
	if j.PublishMaxRetries < 1 {
		j.PublishMaxRetries = 1
	}
	if j.PublishMaxInterval <= 0 {
		j.PublishMaxInterval = 5 * time.Second
	}
	if j.ShutdownGrace <= 0 {
		j.ShutdownGrace = 30 * time.Second
	}
}

// ReaperConfig contains stale job reaper configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// StaleJobMaxAge is how long an in-progress job may go without a counter
	// flush before the reaper marks it failed. Covers jobs orphaned by a
	// crashed process.
	StaleJobMaxAge time.Duration `env:"REAPER_STALE_JOB_MAX_AGE" envDefault:"1h"`

	// TerminalMaxAge is the maximum age for terminal jobs before deletion.
	TerminalMaxAge time.Duration `env:"REAPER_TERMINAL_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedPublishMaxAge is the maximum age for dead-letter records before deletion.
	FailedPublishMaxAge time.Duration `env:"REAPER_FAILED_PUBLISH_MAX_AGE" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.StaleJobMaxAge < 5*time.Minute {
		r.StaleJobMaxAge = 5 * time.Minute
	}
	if r.TerminalMaxAge < 1*time.Hour {
		r.TerminalMaxAge = 1 * time.Hour
	}
	if r.FailedPublishMaxAge < 1*time.Hour {
		r.FailedPublishMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
