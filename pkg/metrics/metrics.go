// Package metrics provides Prometheus-based observability for forcetap.
// It tracks the request-level and job-level indicators the quota governor
// and bulk orchestrator report: REST calls issued, remaining daily quota,
// bulk jobs by outcome, and how long batches spend in the polling loop.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RestRequests counts REST/Bulk API requests by method and outcome
	RestRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forcetap_rest_requests_total",
		Help: "Total REST and Bulk API requests issued",
	}, []string{"method", "outcome"})

	// QuotaRemainingPercent reports the platform-reported remaining
	// daily REST quota as a percentage of the allotment
	QuotaRemainingPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forcetap_quota_remaining_percent",
		Help: "Remaining daily API quota as a percentage of the allotment",
	})

	// BulkJobs counts bulk jobs by terminal batch state
	BulkJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forcetap_bulk_jobs_total",
		Help: "Total bulk query jobs by terminal batch state",
	}, []string{"stream", "state"})

	// BatchPollDuration observes the time a batch spends between
	// submission and reaching a terminal state
	BatchPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forcetap_batch_poll_duration_seconds",
		Help:    "Time from batch submission to terminal state",
		Buckets: prometheus.ExponentialBuckets(5, 2, 10),
	})

	// RecordsExtracted counts records streamed out of completed batches
	RecordsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forcetap_records_extracted_total",
		Help: "Total records streamed from bulk result sets",
	}, []string{"stream"})
)

// Collector provides a per-component metrics handle. Components create
// one at initialization and record through it; values are also exposed
// through the process-wide Prometheus registry.
type Collector struct {
	name      string
	startTime time.Time

	counters map[string]float64
	mu       sync.RWMutex
}

// NewCollector creates a new metrics collector for a component
func NewCollector(name string) *Collector {
	return &Collector{
		name:      name,
		startTime: time.Now(),
		counters:  make(map[string]float64),
	}
}

// Record records a named value
func (c *Collector) Record(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] = value
}

// Add increments a named counter
func (c *Collector) Add(name string, delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += delta
}

// Get returns a named value
func (c *Collector) Get(name string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[name]
}

// GetAll returns a snapshot of all recorded values
func (c *Collector) GetAll() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.counters))
	for k, v := range c.counters {
		out[k] = v
	}
	return out
}

// StartTime returns when the collector was created
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
