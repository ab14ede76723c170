package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseConfigDefaults(t *testing.T) {
	cfg := NewBaseConfig("salesforce", "source")

	assert.Equal(t, "salesforce", cfg.Name)
	assert.Equal(t, float64(DefaultQuotaPercentPerRun), cfg.Quota.PercentPerRun)
	assert.Equal(t, float64(DefaultQuotaPercentTotal), cfg.Quota.PercentTotal)
	assert.Equal(t, 5*time.Second, cfg.Polling.Interval)
	assert.Zero(t, cfg.Polling.Deadline)
	assert.NoError(t, cfg.Validate())
}

func TestApplyDefaults(t *testing.T) {
	cfg := &BaseConfig{Name: "x", Type: "salesforce"}
	cfg.ApplyDefaults()

	assert.Equal(t, float64(25), cfg.Quota.PercentPerRun)
	assert.Equal(t, float64(80), cfg.Quota.PercentTotal)
	assert.Equal(t, 5*time.Second, cfg.Polling.Interval)
	assert.Equal(t, "info", cfg.Observability.LogLevel)

	// Every transport timeout is filled; a config that omits the
	// timeouts section must not end up with zero-valued ones
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Request)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connection)
	assert.Equal(t, 5*time.Minute, cfg.Timeouts.Idle)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.KeepAlive)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BaseConfig)
		wantErr string
	}{
		{"missing name", func(c *BaseConfig) { c.Name = "" }, "name is required"},
		{"missing type", func(c *BaseConfig) { c.Type = "" }, "type is required"},
		{"per-run over 100", func(c *BaseConfig) { c.Quota.PercentPerRun = 120 }, "percent_per_run"},
		{"total negative", func(c *BaseConfig) { c.Quota.PercentTotal = -1 }, "percent_total"},
		{"negative interval", func(c *BaseConfig) { c.Polling.Interval = -time.Second }, "polling.interval"},
		{"negative deadline", func(c *BaseConfig) { c.Polling.Deadline = -time.Minute }, "polling.deadline"},
		{"negative rate limit", func(c *BaseConfig) { c.Reliability.RateLimitPerSec = -5 }, "rate_limit_per_sec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewBaseConfig("salesforce", "source")
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHasCredentials(t *testing.T) {
	c := CredentialsConfig{}
	assert.False(t, c.HasCredentials())

	c = CredentialsConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "rt"}
	assert.True(t, c.HasCredentials())
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("FORCETAP_TEST_TOKEN", "rt-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
name: salesforce
type: salesforce
credentials:
  client_id: my-client
  refresh_token: ${FORCETAP_TEST_TOKEN}
streams:
  - name: Account
    replication_key: SystemModstamp
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var cfg BaseConfig
	require.NoError(t, Load(path, &cfg))

	assert.Equal(t, "my-client", cfg.Credentials.ClientID)
	assert.Equal(t, "rt-from-env", cfg.Credentials.RefreshToken)
	require.Len(t, cfg.Streams, 1)
	assert.Equal(t, "Account", cfg.Streams[0].Name)
	assert.Equal(t, "SystemModstamp", cfg.Streams[0].ReplicationKey)
}

func TestLoadMissingFile(t *testing.T) {
	var cfg BaseConfig
	assert.Error(t, Load("/nonexistent/config.yaml", &cfg))
}
