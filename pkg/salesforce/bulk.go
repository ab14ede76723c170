package salesforce

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/datastreamhq/forcetap/pkg/catalog"
	"github.com/datastreamhq/forcetap/pkg/errors"
	"github.com/datastreamhq/forcetap/pkg/metrics"
)

// batchStatusPollingSleep is the fixed wait between batch status fetches
const batchStatusPollingSleep = 5 * time.Second

// BatchState is the lifecycle state of a bulk batch as reported by the
// platform.
type BatchState string

const (
	BatchStateQueued       BatchState = "Queued"
	BatchStateInProgress   BatchState = "InProgress"
	BatchStateCompleted    BatchState = "Completed"
	BatchStateFailed       BatchState = "Failed"
	BatchStateNotProcessed BatchState = "Not Processed"
)

// Terminal reports whether the state ends the polling loop
func (s BatchState) Terminal() bool {
	switch s {
	case BatchStateCompleted, BatchStateFailed, BatchStateNotProcessed:
		return true
	}
	return false
}

// BatchStatus is the batch info the lifecycle consumes. The platform
// reports batch info as XML even when the job content type is CSV.
type BatchStatus struct {
	XMLName      xml.Name   `xml:"batchInfo"`
	ID           string     `xml:"id"`
	JobID        string     `xml:"jobId"`
	State        BatchState `xml:"state"`
	StateMessage string     `xml:"stateMessage"`
}

type jobCreateRequest struct {
	Operation   string `json:"operation"`
	Object      string `json:"object"`
	ContentType string `json:"contentType"`
}

type jobCreateResponse struct {
	ID string `json:"id"`
}

// BuildQuery renders the SOQL statement for a catalog entry. Selected
// and automatic fields are projected in catalog order; when the entry
// has a replication key and the state carries a bookmark, the query is
// bounded below by it and ordered ascending so a resumed run replays
// from where the previous one stopped.
func BuildQuery(entry *catalog.Entry, state catalog.State) string {
	fields := entry.SelectedFields()
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(fields, ","), entry.Stream)

	if entry.ReplicationKey == "" {
		return query
	}
	bookmark, ok := state.Bookmark(entry.Stream, entry.ReplicationKey)
	if !ok {
		return query
	}
	return fmt.Sprintf("%s WHERE %s >= %s ORDER BY %s ASC",
		query, entry.ReplicationKey, bookmark, entry.ReplicationKey)
}

// CreateJob opens a queryAll bulk job for the given sObject with CSV
// content and returns the job ID. queryAll includes deleted and archived
// rows so downstream consumers can observe deletions.
func (c *Client) CreateJob(ctx context.Context, object string) (string, error) {
	accessToken, instanceURL, err := c.session.Snapshot()
	if err != nil {
		return "", err
	}

	body, err := gojson.Marshal(jobCreateRequest{
		Operation:   "queryAll",
		Object:      object,
		ContentType: "CSV",
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode job request")
	}

	resp, err := c.http.Post(ctx, c.bulkURL(instanceURL, "job"), string(body),
		bulkHeaders(accessToken, "application/json"))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var job jobCreateResponse
	if err := gojson.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to decode job response")
	}

	c.logger.Info("bulk job created",
		zap.String("object", object),
		zap.String("job_id", job.ID))
	metrics.BulkJobs.WithLabelValues(object, "created").Inc()

	return job.ID, nil
}

// AddBatch submits the query as a batch of the job and returns the
// batch ID. The batch body is the raw SOQL text with a text/csv content
// type; the platform answers with XML batch info.
func (c *Client) AddBatch(ctx context.Context, jobID, query string) (string, error) {
	accessToken, instanceURL, err := c.session.Snapshot()
	if err != nil {
		return "", err
	}

	c.logger.Info("adding batch", zap.String("job_id", jobID), zap.String("query", query))

	resp, err := c.http.Post(ctx, c.bulkURL(instanceURL, "job/"+jobID+"/batch"), query,
		bulkHeaders(accessToken, "text/csv"))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var batch BatchStatus
	if err := xml.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to decode batch info")
	}
	return batch.ID, nil
}

// CloseJob marks the job closed so the platform stops accepting batches
// and finalizes accounting.
func (c *Client) CloseJob(ctx context.Context, jobID string) error {
	accessToken, instanceURL, err := c.session.Snapshot()
	if err != nil {
		return err
	}

	body := `{"state": "Closed"}`
	resp, err := c.http.Post(ctx, c.bulkURL(instanceURL, "job/"+jobID), body,
		bulkHeaders(accessToken, "application/json"))
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

// GetBatch fetches the current status of a batch.
func (c *Client) GetBatch(ctx context.Context, jobID, batchID string) (*BatchStatus, error) {
	accessToken, instanceURL, err := c.session.Snapshot()
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Get(ctx, c.bulkURL(instanceURL, "job/"+jobID+"/batch/"+batchID),
		bulkHeaders(accessToken, "application/json"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var batch BatchStatus
	if err := xml.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode batch status")
	}
	return &batch, nil
}

// PollBatch polls the batch at a fixed interval until it reaches a
// terminal state, the configured deadline passes, or the context is
// canceled. A deadline expiry is a distinct timeout error carrying the
// last observed state.
func (c *Client) PollBatch(ctx context.Context, jobID, batchID string) (*BatchStatus, error) {
	start := time.Now()
	defer func() {
		metrics.BatchPollDuration.Observe(time.Since(start).Seconds())
	}()

	var deadline <-chan time.Time
	if c.config.PollDeadline > 0 {
		t := time.NewTimer(c.config.PollDeadline)
		defer t.Stop()
		deadline = t.C
	}

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	lastState := BatchStateQueued
	for {
		batch, err := c.GetBatch(ctx, jobID, batchID)
		if err != nil {
			return nil, err
		}
		lastState = batch.State

		c.logger.Info("polled batch",
			zap.String("job_id", jobID),
			zap.String("batch_id", batchID),
			zap.String("state", string(batch.State)))

		if batch.State.Terminal() {
			return batch, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "batch poll canceled")
		case <-deadline:
			return nil, errors.Newf(errors.ErrorTypeTimeout,
				"batch %s did not complete within %s, last state %s",
				batchID, c.config.PollDeadline, lastState).
				WithDetail("job_id", jobID).
				WithDetail("last_state", string(lastState))
		case <-ticker.C:
		}
	}
}

// BulkQuery runs the full job lifecycle for one catalog entry: bulk
// quota check, job creation, batch submission, job close, polling, and
// result streaming. The returned iterator is lazy; no result content is
// fetched until the caller starts consuming it.
//
// A batch that reaches Failed aborts with an error carrying the
// platform's state message. Not Processed yields an empty iterator.
func (c *Client) BulkQuery(ctx context.Context, entry *catalog.Entry, state catalog.State) (*RecordIterator, error) {
	if err := c.CheckBulkQuota(ctx); err != nil {
		return nil, err
	}

	jobID, err := c.CreateJob(ctx, entry.Stream)
	if err != nil {
		return nil, err
	}

	batchID, err := c.AddBatch(ctx, jobID, BuildQuery(entry, state))
	if err != nil {
		return nil, err
	}

	// Close before polling: the job has its only batch, and closing
	// lets the platform finalize it while we wait. A close failure is
	// held until the poll resolves so the batch outcome is still
	// observed, then surfaced.
	closeErr := c.CloseJob(ctx, jobID)
	if closeErr != nil {
		c.logger.Warn("failed to close job", zap.String("job_id", jobID), zap.Error(closeErr))
	}

	batch, err := c.PollBatch(ctx, jobID, batchID)
	if err != nil {
		return nil, err
	}

	if batch.State == BatchStateFailed {
		metrics.BulkJobs.WithLabelValues(entry.Stream, "failed").Inc()
		return nil, errors.Newf(errors.ErrorTypeBatchFailed,
			"batch %s of job %s failed: %s", batchID, jobID, batch.StateMessage).
			WithDetail("state_message", batch.StateMessage)
	}
	if closeErr != nil {
		return nil, errors.Wrapf(closeErr, errors.ErrorTypeRequest, "failed to close job %s", jobID)
	}
	if batch.State == BatchStateNotProcessed {
		metrics.BulkJobs.WithLabelValues(entry.Stream, "not_processed").Inc()
		c.jobsCompleted++
		return emptyIterator(entry.Stream), nil
	}

	metrics.BulkJobs.WithLabelValues(entry.Stream, "completed").Inc()
	c.jobsCompleted++

	return c.newRecordIterator(ctx, entry.Stream, jobID, batchID)
}
