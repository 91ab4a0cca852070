package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - http",
			input: "http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP: true,
			},
			expectError: false,
		},
		{
			name:  "single service - reaper",
			input: "reaper",
			expected: map[ServiceMode]bool{
				ServiceModeReaper: true,
			},
			expectError: false,
		},
		{
			name:  "multiple services",
			input: "http,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeReaper: true,
			},
			expectError: false,
		},
		{
			name:  "services with spaces",
			input: " http , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeReaper: true,
			},
			expectError: false,
		},
		{
			name:  "duplicate services",
			input: "http,http,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeReaper: true,
			},
			expectError: false,
		},
		{
			name:        "empty string",
			input:       "",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "http,invalid-service",
			expected:    nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name           string
		services       string
		expectedHTTP   bool
		expectedReaper bool
	}{
		{
			name:           "default - http only",
			services:       "http",
			expectedHTTP:   true,
			expectedReaper: false,
		},
		{
			name:           "http and reaper",
			services:       "http,reaper",
			expectedHTTP:   true,
			expectedReaper: true,
		},
		{
			name:           "reaper only",
			services:       "reaper",
			expectedHTTP:   false,
			expectedReaper: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsHTTPServerEnabled() != tt.expectedHTTP {
				t.Errorf("IsHTTPServerEnabled(): expected %v, got %v", tt.expectedHTTP, cfg.IsHTTPServerEnabled())
			}

			if cfg.IsReaperEnabled() != tt.expectedReaper {
				t.Errorf("IsReaperEnabled(): expected %v, got %v", tt.expectedReaper, cfg.IsReaperEnabled())
			}
		})
	}
}

func TestConfig_ServiceEnabledMethodsWithInvalidConfig(t *testing.T) {
	cfg := AppConfig{Services: "invalid-service"}

	if cfg.IsHTTPServerEnabled() {
		t.Errorf("IsHTTPServerEnabled() with invalid config: expected false, got true")
	}
	if cfg.IsReaperEnabled() {
		t.Errorf("IsReaperEnabled() with invalid config: expected false, got true")
	}
}

func TestAppConfig_ParseJobsEnv(t *testing.T) {
	t.Setenv("JOBS_PROGRESS_INTERVAL", "500")
	t.Setenv("JOBS_SINK_HIGH_WATER", "128")
	t.Setenv("JOBS_SINK_LOW_WATER", "32")
	t.Setenv("JOBS_PUBLISH_MAX_RETRIES", "3")
	t.Setenv("JOBS_PUBLISH_MAX_INTERVAL", "2s")
	t.Setenv("JOBS_SHUTDOWN_GRACE", "10s")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}

	if cfg.Jobs.ProgressInterval != 500 {
		t.Errorf("expected progress interval 500, got %d", cfg.Jobs.ProgressInterval)
	}
	if cfg.Jobs.SinkHighWater != 128 {
		t.Errorf("expected sink high water 128, got %d", cfg.Jobs.SinkHighWater)
	}
	if cfg.Jobs.SinkLowWater != 32 {
		t.Errorf("expected sink low water 32, got %d", cfg.Jobs.SinkLowWater)
	}
	if cfg.Jobs.PublishMaxRetries != 3 {
		t.Errorf("expected publish max retries 3, got %d", cfg.Jobs.PublishMaxRetries)
	}
	if cfg.Jobs.PublishMaxInterval != 2*time.Second {
		t.Errorf("expected publish max interval 2s, got %v", cfg.Jobs.PublishMaxInterval)
	}
	if cfg.Jobs.ShutdownGrace != 10*time.Second {
		t.Errorf("expected shutdown grace 10s, got %v", cfg.Jobs.ShutdownGrace)
	}
}

func TestJobsConfig_Sanitize(t *testing.T) {
	cfg := JobsConfig{
		ProgressInterval:  0,
		SinkHighWater:     0,
		SinkLowWater:      -5,
		PublishMaxRetries: 0,
	}

	cfg.Sanitize()

	if cfg.ProgressInterval != 1 {
		t.Errorf("expected progress interval floor of 1, got %d", cfg.ProgressInterval)
	}
	if cfg.SinkHighWater != 1 {
		t.Errorf("expected sink high water floor of 1, got %d", cfg.SinkHighWater)
	}
	if cfg.SinkLowWater != 0 {
		t.Errorf("expected negative sink low water clamped to 0, got %d", cfg.SinkLowWater)
	}
	if cfg.PublishMaxRetries != 1 {
		t.Errorf("expected publish max retries floor of 1, got %d", cfg.PublishMaxRetries)
	}
	if cfg.PublishMaxInterval <= 0 {
		t.Errorf("expected publish max interval default, got %v", cfg.PublishMaxInterval)
	}
	if cfg.ShutdownGrace <= 0 {
		t.Errorf("expected shutdown grace default, got %v", cfg.ShutdownGrace)
	}

	// A low water mark at or above the high water mark can never resume.
	cfg = JobsConfig{
		ProgressInterval:  100,
		SinkHighWater:     64,
		SinkLowWater:      64,
		PublishMaxRetries: 5,
		PublishMaxInterval: 5 * time.Second,
		ShutdownGrace:      30 * time.Second,
	}
	cfg.Sanitize()

	if cfg.SinkLowWater != 32 {
		t.Errorf("expected low water reset to half of high water, got %d", cfg.SinkLowWater)
	}
}

func TestReaperConfig_Sanitize(t *testing.T) {
	cfg := ReaperConfig{
		Interval:            time.Second,
		StaleJobMaxAge:      time.Second,
		TerminalMaxAge:      time.Minute,
		FailedPublishMaxAge: time.Minute,
		BatchSize:           0,
	}

	cfg.Sanitize()

	if cfg.Interval < time.Minute {
		t.Errorf("expected interval floor of 1m, got %v", cfg.Interval)
	}
	if cfg.StaleJobMaxAge < 5*time.Minute {
		t.Errorf("expected stale job max age floor of 5m, got %v", cfg.StaleJobMaxAge)
	}
	if cfg.TerminalMaxAge < time.Hour {
		t.Errorf("expected terminal max age floor of 1h, got %v", cfg.TerminalMaxAge)
	}
	if cfg.FailedPublishMaxAge < time.Hour {
		t.Errorf("expected failed publish max age floor of 1h, got %v", cfg.FailedPublishMaxAge)
	}
	if cfg.BatchSize != 1 {
		t.Errorf("expected batch size floor of 1, got %d", cfg.BatchSize)
	}

	cfg.BatchSize = 50000
	cfg.Sanitize()
	if cfg.BatchSize != 10000 {
		t.Errorf("expected batch size cap of 10000, got %d", cfg.BatchSize)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotifyConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotifyConfig{
		PagerDutyRoutingKey: " key ",
		SlackWebhookURL:     " ",
		SlackChannel:        " #alerts ",
		JobURLPrefix:        " https://marcbase.local/api/bulk-jobs ",
		RetryLimit:          -1,
	}

	cfg.Sanitize()

	if cfg.PagerDutyRoutingKey != "key" {
		t.Errorf("expected routing key to be trimmed, got %q", cfg.PagerDutyRoutingKey)
	}
	if !cfg.PagerDutyEnabled() {
		t.Error("expected pagerduty to be enabled with a routing key")
	}
	if cfg.SlackEnabled() {
		t.Error("expected slack to be disabled without a webhook url")
	}
	if cfg.SlackChannel != "#alerts" {
		t.Errorf("expected channel to be trimmed, got %q", cfg.SlackChannel)
	}
	if cfg.JobURLPrefix != "https://marcbase.local/api/bulk-jobs" {
		t.Errorf("expected job url prefix to be trimmed, got %q", cfg.JobURLPrefix)
	}
	if cfg.RetryLimit != 0 {
		t.Errorf("expected retry limit clamped to 0, got %d", cfg.RetryLimit)
	}
}
