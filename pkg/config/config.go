// Package config provides the unified configuration system for forcetap.
// It defines a single BaseConfig structure that all connectors use,
// organized into logical sections:
//   - Credentials: OAuth client and refresh token for the platform login
//   - Quota: per-run and total API usage thresholds
//   - Polling: bulk batch poll interval and deadline
//   - Timeouts: connection and request timeouts
//   - Reliability: rate limiting
//   - Observability: logging
//
// Example usage:
//
//	cfg := config.NewBaseConfig("salesforce", "source")
//	cfg.Credentials.RefreshToken = os.Getenv("SF_REFRESH_TOKEN")
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// Default quota thresholds, as percentages of the daily allotment.
const (
	DefaultQuotaPercentPerRun = 25
	DefaultQuotaPercentTotal  = 80
)

// BaseConfig is the single unified configuration structure that all
// connectors use. Connectors read the sections that apply to them.
type BaseConfig struct {
	// Name identifies the connector instance
	Name string `yaml:"name" json:"name"`
	// Type specifies the connector type (e.g., "salesforce", "jsonl")
	Type string `yaml:"type" json:"type"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version"`

	// Credentials for the platform OAuth login
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`

	// Quota thresholds governing API usage
	Quota QuotaConfig `yaml:"quota" json:"quota"`

	// Polling settings for asynchronous bulk batches
	Polling PollingConfig `yaml:"polling" json:"polling"`

	// Timeouts define various timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Reliability settings for rate limiting
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Observability settings for logging and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Streams lists the catalog streams this run extracts.
	// Used by sources; destinations ignore it.
	Streams []StreamConfig `yaml:"streams" json:"streams"`

	// Output settings for destinations
	Output OutputConfig `yaml:"output" json:"output"`
}

// CredentialsConfig holds the OAuth refresh-token grant inputs.
// Use ${ENV_VAR} substitution in YAML rather than literal secrets.
type CredentialsConfig struct {
	// ClientID is the connected app consumer key
	ClientID string `yaml:"client_id" json:"client_id"`
	// ClientSecret is the connected app consumer secret
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	// RefreshToken is the long-lived OAuth refresh token
	RefreshToken string `yaml:"refresh_token" json:"refresh_token"`
	// Sandbox selects the test login endpoint instead of production
	Sandbox bool `yaml:"sandbox" json:"sandbox"`
	// LoginURL overrides the OAuth token endpoint; normally empty
	LoginURL string `yaml:"login_url" json:"login_url"`
}

// QuotaConfig bounds API usage. PercentPerRun bounds requests issued by
// this single execution; PercentTotal bounds cumulative daily platform
// usage. Zero values take the package defaults.
type QuotaConfig struct {
	PercentPerRun float64 `yaml:"percent_per_run" json:"percent_per_run"`
	PercentTotal  float64 `yaml:"percent_total" json:"percent_total"`
}

// PollingConfig controls how bulk batch status is polled.
type PollingConfig struct {
	// Interval between status fetches; the wait is a fixed sleep,
	// not a backoff
	Interval time.Duration `yaml:"interval" json:"interval"`
	// Deadline bounds the total poll wait per batch; zero means
	// unbounded
	Deadline time.Duration `yaml:"deadline" json:"deadline"`
}

// TimeoutConfig contains all timeout-related settings.
type TimeoutConfig struct {
	// Request timeout for individual operations. Result-set downloads
	// stream past this; it applies to response headers.
	Request time.Duration `yaml:"request" json:"request"`
	// Connection timeout for establishing connections
	Connection time.Duration `yaml:"connection" json:"connection"`
	// Idle timeout before closing inactive connections
	Idle time.Duration `yaml:"idle" json:"idle"`
	// KeepAlive interval for connection health checks
	KeepAlive time.Duration `yaml:"keep_alive" json:"keep_alive"`
}

// ReliabilityConfig contains reliability settings.
type ReliabilityConfig struct {
	// RateLimitPerSec limits HTTP requests per second (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// RateBurst is the maximum burst above the steady rate
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// EnableMetrics activates Prometheus metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// StreamConfig selects one stream (sObject) for extraction.
type StreamConfig struct {
	// Name is the sObject API name (e.g., "Account")
	Name string `yaml:"name" json:"name"`
	// Fields lists the selected field names in catalog order
	Fields []string `yaml:"fields" json:"fields"`
	// ReplicationKey is the monotonically increasing field used for
	// incremental extraction; empty means full extracts
	ReplicationKey string `yaml:"replication_key" json:"replication_key"`
}

// OutputConfig configures destination output.
type OutputConfig struct {
	// Path is the output file; "-" or empty means stdout
	Path string `yaml:"path" json:"path"`
	// Append opens the file in append mode instead of truncating
	Append bool `yaml:"append" json:"append"`
}

// NewBaseConfig creates a new BaseConfig with sensible defaults.
func NewBaseConfig(name, connectorType string) *BaseConfig {
	return &BaseConfig{
		Name:    name,
		Type:    connectorType,
		Version: "1.0.0",
		Quota: QuotaConfig{
			PercentPerRun: DefaultQuotaPercentPerRun,
			PercentTotal:  DefaultQuotaPercentTotal,
		},
		Polling: PollingConfig{
			Interval: 5 * time.Second,
			Deadline: 0,
		},
		Timeouts: TimeoutConfig{
			Request:    30 * time.Second,
			Connection: 10 * time.Second,
			Idle:       5 * time.Minute,
			KeepAlive:  30 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RateLimitPerSec: 0,
			RateBurst:       0,
		},
		Observability: ObservabilityConfig{
			EnableMetrics: true,
			LogLevel:      "info",
		},
	}
}

// ApplyDefaults fills zero-valued sections with the package defaults.
// Loaded configurations pass through here before validation.
func (bc *BaseConfig) ApplyDefaults() {
	if bc.Quota.PercentPerRun == 0 {
		bc.Quota.PercentPerRun = DefaultQuotaPercentPerRun
	}
	if bc.Quota.PercentTotal == 0 {
		bc.Quota.PercentTotal = DefaultQuotaPercentTotal
	}
	if bc.Polling.Interval == 0 {
		bc.Polling.Interval = 5 * time.Second
	}
	if bc.Timeouts.Request == 0 {
		bc.Timeouts.Request = 30 * time.Second
	}
	if bc.Timeouts.Connection == 0 {
		bc.Timeouts.Connection = 10 * time.Second
	}
	if bc.Timeouts.Idle == 0 {
		bc.Timeouts.Idle = 5 * time.Minute
	}
	if bc.Timeouts.KeepAlive == 0 {
		bc.Timeouts.KeepAlive = 30 * time.Second
	}
	if bc.Observability.LogLevel == "" {
		bc.Observability.LogLevel = "info"
	}
}

// Validate validates the configuration for correctness.
func (bc *BaseConfig) Validate() error {
	if bc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if bc.Type == "" {
		return fmt.Errorf("type is required")
	}
	if bc.Quota.PercentPerRun < 0 || bc.Quota.PercentPerRun > 100 {
		return fmt.Errorf("quota.percent_per_run must be between 0 and 100")
	}
	if bc.Quota.PercentTotal < 0 || bc.Quota.PercentTotal > 100 {
		return fmt.Errorf("quota.percent_total must be between 0 and 100")
	}
	if bc.Polling.Interval < 0 {
		return fmt.Errorf("polling.interval cannot be negative")
	}
	if bc.Polling.Deadline < 0 {
		return fmt.Errorf("polling.deadline cannot be negative")
	}
	if bc.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("rate_limit_per_sec cannot be negative")
	}
	return nil
}

// HasCredentials returns true if the OAuth grant inputs are all present
func (c *CredentialsConfig) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// IsRateLimited returns true if rate limiting is enabled
func (r *ReliabilityConfig) IsRateLimited() bool {
	return r.RateLimitPerSec > 0
}
