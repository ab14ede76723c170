// Package salesforce implements the quota-governed Salesforce extraction
// core: OAuth2 session management, REST describe calls, and the Bulk API
// query job lifecycle with streamed CSV results.
//
// One Client owns the HTTP transport, the session, and the quota
// governor. Auth headers are resolved per call from the current session
// snapshot, so the background token renewal never races an in-flight
// request onto a half-updated token pair.
package salesforce

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/datastreamhq/forcetap/pkg/clients"
)

// API versions pinned to the platform endpoints the tap speaks.
const (
	dataAPIVersion = "v40.0"
	bulkAPIVersion = "40.0"
)

// Config holds the inputs the extraction core needs. The zero values of
// the quota and polling fields take the documented defaults.
type Config struct {
	// OAuth refresh-token grant inputs
	ClientID     string
	ClientSecret string
	RefreshToken string

	// Sandbox selects the test login endpoint
	Sandbox bool

	// LoginURL overrides the token endpoint; used by tests
	LoginURL string

	// Quota thresholds as percentages of the daily allotment
	QuotaPercentPerRun float64
	QuotaPercentTotal  float64

	// PollInterval is the fixed sleep between batch status fetches
	PollInterval time.Duration

	// PollDeadline bounds the total wait for a batch to reach a
	// terminal state; zero means unbounded
	PollDeadline time.Duration
}

func (c *Config) applyDefaults() {
	if c.QuotaPercentPerRun == 0 {
		c.QuotaPercentPerRun = 25
	}
	if c.QuotaPercentTotal == 0 {
		c.QuotaPercentTotal = 80
	}
	if c.PollInterval == 0 {
		c.PollInterval = batchStatusPollingSleep
	}
}

// Client is the Salesforce extraction client.
type Client struct {
	config  *Config
	logger  *zap.Logger
	http    *clients.HTTPClient
	session *Session
	quota   *QuotaGovernor

	// jobsCompleted counts bulk jobs finished by this run, for the
	// per-run bulk quota check
	jobsCompleted int
}

// NewClient creates a Salesforce client over the given transport. The
// quota governor is installed as the transport's response hook so every
// REST call is accounted for.
func NewClient(cfg *Config, httpClient *clients.HTTPClient, logger *zap.Logger) *Client {
	cfg.applyDefaults()

	c := &Client{
		config:  cfg,
		logger:  logger.With(zap.String("component", "salesforce")),
		http:    httpClient,
		session: NewSession(cfg, logger),
		quota:   NewQuotaGovernor(cfg.QuotaPercentPerRun, cfg.QuotaPercentTotal, logger),
	}
	httpClient.SetResponseHook(c.quota.RecordRestCall)

	return c
}

// Session returns the session manager
func (c *Client) Session() *Session {
	return c.session
}

// Quota returns the quota governor
func (c *Client) Quota() *QuotaGovernor {
	return c.quota
}

// Close stops the background session renewal and releases transport
// resources.
func (c *Client) Close() error {
	c.session.Close()
	return c.http.Close()
}

// dataURL builds a REST data API URL on the current instance
func (c *Client) dataURL(instanceURL, endpoint string) string {
	return fmt.Sprintf("%s/services/data/%s/%s", instanceURL, dataAPIVersion, endpoint)
}

// bulkURL builds an async Bulk API URL on the current instance
func (c *Client) bulkURL(instanceURL, endpoint string) string {
	return fmt.Sprintf("%s/services/async/%s/%s", instanceURL, bulkAPIVersion, endpoint)
}

// restHeaders returns the standard REST headers for the given snapshot
func restHeaders(accessToken string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
}

// bulkHeaders returns the Bulk API headers for the given snapshot.
// Job control calls use application/json; batch submission and result
// fetches use text/csv.
func bulkHeaders(accessToken, contentType string) map[string]string {
	return map[string]string{
		"X-SFDC-Session": accessToken,
		"Content-Type":   contentType,
	}
}
