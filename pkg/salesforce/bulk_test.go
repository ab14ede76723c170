package salesforce

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datastreamhq/forcetap/pkg/catalog"
	"github.com/datastreamhq/forcetap/pkg/clients"
	"github.com/datastreamhq/forcetap/pkg/errors"
	"github.com/datastreamhq/forcetap/pkg/models"
)

// fakeOrg is an in-process stand-in for the platform's token, REST, and
// Bulk API endpoints.
type fakeOrg struct {
	srv *httptest.Server

	mu           sync.Mutex
	batchStates  []string
	statusCalls  int
	stateMessage string
	resultIDs    []string
	results      map[string]string
	limitsMax    float64
	limitsRemain float64

	jobBody     []byte
	batchBody   []byte
	jobClosed   bool
	closeStatus int
}

func newFakeOrg(t *testing.T) *fakeOrg {
	t.Helper()

	org := &fakeOrg{
		batchStates:  []string{"Completed"},
		resultIDs:    []string{"R1"},
		results:      map[string]string{"R1": "Id,Name\n001,Acme\n002,Globex\n"},
		limitsMax:    10000,
		limitsRemain: 10000,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"token-123","token_type":"Bearer","instance_url":"` + org.srv.URL + `"}`))
	})

	mux.HandleFunc("/services/data/v40.0/limits", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		org.mu.Lock()
		defer org.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = gojson.NewEncoder(w).Encode(map[string]interface{}{
			"DailyBulkApiRequests": map[string]float64{
				"Max":       org.limitsMax,
				"Remaining": org.limitsRemain,
			},
		})
	})

	mux.HandleFunc("/services/async/40.0/job", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "token-123", r.Header.Get("X-SFDC-Session"))
		body, _ := io.ReadAll(r.Body)
		org.mu.Lock()
		org.jobBody = body
		org.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"J1","state":"Open"}`))
	})

	mux.HandleFunc("/services/async/40.0/job/J1", func(w http.ResponseWriter, r *http.Request) {
		org.mu.Lock()
		org.jobClosed = true
		status := org.closeStatus
		org.mu.Unlock()
		if status != 0 {
			http.Error(w, "unable to close job", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"J1","state":"Closed"}`))
	})

	mux.HandleFunc("/services/async/40.0/job/J1/batch", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "text/csv", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		org.mu.Lock()
		org.batchBody = body
		org.mu.Unlock()
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<batchInfo><id>B1</id><jobId>J1</jobId><state>Queued</state></batchInfo>`))
	})

	mux.HandleFunc("/services/async/40.0/job/J1/batch/B1", func(w http.ResponseWriter, r *http.Request) {
		org.mu.Lock()
		idx := org.statusCalls
		if idx >= len(org.batchStates) {
			idx = len(org.batchStates) - 1
		}
		state := org.batchStates[idx]
		msg := org.stateMessage
		org.statusCalls++
		org.mu.Unlock()

		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<batchInfo><id>B1</id><jobId>J1</jobId><state>` + state +
			`</state><stateMessage>` + msg + `</stateMessage></batchInfo>`))
	})

	mux.HandleFunc("/services/async/40.0/job/J1/batch/B1/result", func(w http.ResponseWriter, r *http.Request) {
		org.mu.Lock()
		defer org.mu.Unlock()
		w.Header().Set("Content-Type", "application/xml")
		out := `<result-list xmlns="http://www.force.com/2009/06/asyncapi/dataload">`
		for _, id := range org.resultIDs {
			out += "<result>" + id + "</result>"
		}
		out += `</result-list>`
		_, _ = w.Write([]byte(out))
	})

	mux.HandleFunc("/services/async/40.0/job/J1/batch/B1/result/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "text/csv", r.Header.Get("Content-Type"))
		org.mu.Lock()
		defer org.mu.Unlock()
		id := r.URL.Path[len("/services/async/40.0/job/J1/batch/B1/result/"):]
		csvBody, ok := org.results[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(csvBody))
	})

	org.srv = httptest.NewServer(mux)
	t.Cleanup(org.srv.Close)
	return org
}

func newTestClient(t *testing.T, org *fakeOrg, cfg *Config) *Client {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ClientID = "client-id"
	cfg.ClientSecret = "client-secret"
	cfg.RefreshToken = "rt-secret"
	cfg.LoginURL = org.srv.URL + "/services/oauth2/token"
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}

	client := NewClient(cfg, clients.NewHTTPClient(nil, zap.NewNop()), zap.NewNop())
	require.NoError(t, client.Session().Login(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func accountEntry() *catalog.Entry {
	return &catalog.Entry{
		Stream: "Account",
		Properties: []catalog.Property{
			{Name: "Id", Inclusion: catalog.InclusionAutomatic},
			{Name: "Name", Selected: true, Inclusion: catalog.InclusionAvailable},
		},
	}
}

func drain(t *testing.T, it *RecordIterator) []*models.Record {
	t.Helper()
	var records []*models.Record
	for it.Next() {
		records = append(records, it.Record())
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	return records
}

func TestBuildQuery(t *testing.T) {
	entry := accountEntry()
	assert.Equal(t, "SELECT Id,Name FROM Account", BuildQuery(entry, nil))
}

func TestBuildQueryWithBookmark(t *testing.T) {
	entry := accountEntry()
	entry.ReplicationKey = "SystemModstamp"

	// No bookmark yet: full extract without ordering
	assert.Equal(t, "SELECT Id,Name FROM Account", BuildQuery(entry, make(catalog.State)))

	state := make(catalog.State)
	state.SetBookmark("Account", "SystemModstamp", "2025-06-01T00:00:00Z")
	assert.Equal(t,
		"SELECT Id,Name FROM Account WHERE SystemModstamp >= 2025-06-01T00:00:00Z ORDER BY SystemModstamp ASC",
		BuildQuery(entry, state))
}

func TestBulkQueryLifecycle(t *testing.T) {
	org := newFakeOrg(t)
	org.batchStates = []string{"Queued", "InProgress", "Completed"}
	org.resultIDs = []string{"R1", "R2"}
	org.results = map[string]string{
		"R1": "Id,Name\n001,Acme\n002,Globex\n",
		"R2": "Id,Name\n003,Initech\n",
	}

	client := newTestClient(t, org, nil)

	it, err := client.BulkQuery(context.Background(), accountEntry(), nil)
	require.NoError(t, err)

	records := drain(t, it)
	require.Len(t, records, 3)

	first, _ := records[0].Get("Id")
	assert.Equal(t, "001", first)
	name, _ := records[0].Get("Name")
	assert.Equal(t, "Acme", name)
	last, _ := records[2].Get("Id")
	assert.Equal(t, "003", last)

	assert.Equal(t, "Account", records[0].Stream)
	assert.Equal(t, "J1", records[0].Metadata.JobID)
	assert.Equal(t, "B1", records[0].Metadata.BatchID)

	org.mu.Lock()
	defer org.mu.Unlock()
	assert.True(t, org.jobClosed, "job is closed before polling")
	assert.GreaterOrEqual(t, org.statusCalls, 3)
	assert.JSONEq(t, `{"operation":"queryAll","object":"Account","contentType":"CSV"}`, string(org.jobBody))
	assert.Equal(t, "SELECT Id,Name FROM Account", string(org.batchBody))
}

func TestBulkQueryBatchFailed(t *testing.T) {
	org := newFakeOrg(t)
	org.batchStates = []string{"Failed"}
	org.stateMessage = "InvalidBatch : Failed to process query"

	client := newTestClient(t, org, nil)

	_, err := client.BulkQuery(context.Background(), accountEntry(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeBatchFailed))
	assert.Contains(t, err.Error(), "InvalidBatch : Failed to process query")
}

func TestBulkQueryNotProcessed(t *testing.T) {
	org := newFakeOrg(t)
	org.batchStates = []string{"Not Processed"}

	client := newTestClient(t, org, nil)

	it, err := client.BulkQuery(context.Background(), accountEntry(), nil)
	require.NoError(t, err)
	assert.Empty(t, drain(t, it))
}

func TestBulkQueryCloseFailureSurfaces(t *testing.T) {
	org := newFakeOrg(t)
	org.closeStatus = http.StatusInternalServerError

	client := newTestClient(t, org, nil)

	_, err := client.BulkQuery(context.Background(), accountEntry(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close job")

	// The batch outcome was still polled before the close failure
	// was surfaced
	org.mu.Lock()
	defer org.mu.Unlock()
	assert.GreaterOrEqual(t, org.statusCalls, 1)
}

func TestBulkQueryPollDeadline(t *testing.T) {
	org := newFakeOrg(t)
	org.batchStates = []string{"Queued"}

	client := newTestClient(t, org, &Config{
		PollInterval: 5 * time.Millisecond,
		PollDeadline: 40 * time.Millisecond,
	})

	_, err := client.BulkQuery(context.Background(), accountEntry(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
	assert.Contains(t, err.Error(), "Queued")
}

func TestBulkQueryContextCanceled(t *testing.T) {
	org := newFakeOrg(t)
	org.batchStates = []string{"Queued"}

	client := newTestClient(t, org, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.BulkQuery(ctx, accountEntry(), nil)
	require.Error(t, err)
}

func TestBulkQueryQuotaExceeded(t *testing.T) {
	org := newFakeOrg(t)
	// 90% of the daily bulk allotment already used
	org.limitsMax = 100
	org.limitsRemain = 10

	client := newTestClient(t, org, nil)

	_, err := client.BulkQuery(context.Background(), accountEntry(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuotaExceeded))

	org.mu.Lock()
	defer org.mu.Unlock()
	assert.Nil(t, org.jobBody, "no job is created once the quota check fails")
}

func TestPollBatchTerminalStates(t *testing.T) {
	for _, state := range []BatchState{BatchStateCompleted, BatchStateFailed, BatchStateNotProcessed} {
		assert.True(t, state.Terminal(), string(state))
	}
	for _, state := range []BatchState{BatchStateQueued, BatchStateInProgress} {
		assert.False(t, state.Terminal(), string(state))
	}
}
