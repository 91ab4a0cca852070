package config

import "strings"

// ObservabilityConfig groups configuration that controls metrics emission and
// failure notifications.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig
	Notify  ObservabilityNotifyConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notify.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotifyConfig controls delivery of bulk job failure notifications.
// Each sink activates when its credential is present.
type ObservabilityNotifyConfig struct {
	PagerDutyRoutingKey string `env:"OBSERVABILITY_NOTIFY_PAGERDUTY_ROUTING_KEY"`
	SlackWebhookURL     string `env:"OBSERVABILITY_NOTIFY_SLACK_WEBHOOK_URL"`
	SlackChannel        string `env:"OBSERVABILITY_NOTIFY_SLACK_CHANNEL"`
	JobURLPrefix        string `env:"OBSERVABILITY_NOTIFY_JOB_URL_PREFIX"`
	RetryLimit          int    `env:"OBSERVABILITY_NOTIFY_RETRY_LIMIT" envDefault:"2"`
}

// Sanitize trims credential fields and clamps the retry limit.
func (c *ObservabilityNotifyConfig) Sanitize() {
	c.PagerDutyRoutingKey = strings.TrimSpace(c.PagerDutyRoutingKey)
	c.SlackWebhookURL = strings.TrimSpace(c.SlackWebhookURL)
	c.SlackChannel = strings.TrimSpace(c.SlackChannel)
	c.JobURLPrefix = strings.TrimSpace(c.JobURLPrefix)
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
}

// PagerDutyEnabled reports whether the PagerDuty sink should be constructed.
func (c *ObservabilityNotifyConfig) PagerDutyEnabled() bool {
	return c.PagerDutyRoutingKey != ""
}

// SlackEnabled reports whether the Slack sink should be constructed.
func (c *ObservabilityNotifyConfig) SlackEnabled() bool {
	return c.SlackWebhookURL != ""
}
