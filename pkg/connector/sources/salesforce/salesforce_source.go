// Package salesforce implements the Salesforce source connector. It
// discovers stream schemas through the REST describe endpoints and
// extracts records through the asynchronous Bulk API, one query job per
// configured stream.
package salesforce

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/datastreamhq/forcetap/pkg/catalog"
	"github.com/datastreamhq/forcetap/pkg/clients"
	"github.com/datastreamhq/forcetap/pkg/config"
	"github.com/datastreamhq/forcetap/pkg/connector/base"
	"github.com/datastreamhq/forcetap/pkg/connector/core"
	"github.com/datastreamhq/forcetap/pkg/errors"
	"github.com/datastreamhq/forcetap/pkg/models"
	"github.com/datastreamhq/forcetap/pkg/salesforce"
	"github.com/datastreamhq/forcetap/pkg/schema"
)

const recordChannelBuffer = 1000

// SalesforceSource extracts sObject records through the Bulk API.
type SalesforceSource struct {
	*base.BaseConnector

	client  *salesforce.Client
	entries []*catalog.Entry

	stateMu sync.RWMutex
	state   catalog.State
}

// NewSalesforceSource creates a new Salesforce source connector
func NewSalesforceSource(cfg *config.BaseConfig) (core.Source, error) {
	return &SalesforceSource{
		BaseConnector: base.NewBaseConnector("salesforce", core.ConnectorTypeSource, "1.0.0"),
		state:         make(catalog.State),
	}, nil
}

// Initialize validates credentials, establishes the OAuth session, and
// resolves the configured streams into catalog entries.
func (s *SalesforceSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}
	if !cfg.Credentials.HasCredentials() {
		return errors.New(errors.ErrorTypeConfig, "client_id, client_secret, and refresh_token are required")
	}
	if len(cfg.Streams) == 0 {
		return errors.New(errors.ErrorTypeConfig, "at least one stream is required")
	}

	// Only set timeouts override the transport defaults; a config that
	// omits a section must not zero them out.
	httpConfig := clients.DefaultHTTPConfig()
	if cfg.Timeouts.Connection > 0 {
		httpConfig.DialTimeout = cfg.Timeouts.Connection
	}
	if cfg.Timeouts.Request > 0 {
		httpConfig.ResponseHeaderTimeout = cfg.Timeouts.Request
	}
	if cfg.Timeouts.Idle > 0 {
		httpConfig.IdleConnTimeout = cfg.Timeouts.Idle
	}
	if cfg.Timeouts.KeepAlive > 0 {
		httpConfig.KeepAlive = cfg.Timeouts.KeepAlive
	}
	httpConfig.RateLimit = float64(cfg.Reliability.RateLimitPerSec)
	httpConfig.RateBurst = cfg.Reliability.RateBurst

	s.client = salesforce.NewClient(&salesforce.Config{
		ClientID:           cfg.Credentials.ClientID,
		ClientSecret:       cfg.Credentials.ClientSecret,
		RefreshToken:       cfg.Credentials.RefreshToken,
		Sandbox:            cfg.Credentials.Sandbox,
		LoginURL:           cfg.Credentials.LoginURL,
		QuotaPercentPerRun: cfg.Quota.PercentPerRun,
		QuotaPercentTotal:  cfg.Quota.PercentTotal,
		PollInterval:       cfg.Polling.Interval,
		PollDeadline:       cfg.Polling.Deadline,
	}, clients.NewHTTPClient(httpConfig, s.Logger()), s.Logger())

	if err := s.client.Session().Login(ctx); err != nil {
		return err
	}

	entries, err := s.resolveEntries(ctx, cfg.Streams)
	if err != nil {
		return err
	}
	s.entries = entries
	return nil
}

// resolveEntries describes each configured stream and builds its catalog
// entry. Key fields and replication keys are automatic; fields the
// platform cannot export are marked unsupported; everything else follows
// the configured selection, or is selected wholesale when no field list
// is given.
func (s *SalesforceSource) resolveEntries(ctx context.Context, streams []config.StreamConfig) ([]*catalog.Entry, error) {
	global, err := s.client.DescribeGlobal(ctx)
	if err != nil {
		return nil, err
	}
	queryable := make(map[string]bool, len(global.SObjects))
	for _, obj := range global.SObjects {
		queryable[obj.Name] = obj.Queryable
	}

	entries := make([]*catalog.Entry, 0, len(streams))
	for _, sc := range streams {
		ok, known := queryable[sc.Name]
		if !known {
			return nil, errors.Newf(errors.ErrorTypeConfig, "stream %s does not exist in the org", sc.Name)
		}
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig, "stream %s is not queryable", sc.Name)
		}
		describe, err := s.client.DescribeObject(ctx, sc.Name)
		if err != nil {
			return nil, err
		}

		selected := make(map[string]bool, len(sc.Fields))
		for _, f := range sc.Fields {
			selected[f] = true
		}
		selectAll := len(sc.Fields) == 0

		entry := &catalog.Entry{
			Stream:         sc.Name,
			ReplicationKey: sc.ReplicationKey,
			Properties:     make([]catalog.Property, 0, len(describe.Fields)),
		}
		for _, field := range describe.Fields {
			kind, err := schema.Translate(field.Type)
			if err != nil {
				return nil, errors.Wrapf(err, errors.ErrorTypeUnsupportedType,
					"stream %s field %s", sc.Name, field.Name)
			}

			inclusion := catalog.InclusionAvailable
			switch {
			case kind == schema.KindUnsupported:
				inclusion = catalog.InclusionUnsupported
			case field.Name == "Id" || field.Name == sc.ReplicationKey:
				inclusion = catalog.InclusionAutomatic
			}

			entry.Properties = append(entry.Properties, catalog.Property{
				Name:      field.Name,
				Selected:  selectAll || selected[field.Name],
				Inclusion: inclusion,
			})
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Discover returns the schema of each configured stream.
func (s *SalesforceSource) Discover(ctx context.Context) ([]*core.Schema, error) {
	schemas := make([]*core.Schema, 0, len(s.entries))
	for _, entry := range s.entries {
		describe, err := s.client.DescribeObject(ctx, entry.Stream)
		if err != nil {
			return nil, err
		}

		byName := make(map[string]catalog.Property, len(entry.Properties))
		for _, p := range entry.Properties {
			byName[p.Name] = p
		}

		props := make(map[string]schema.Property, len(describe.Fields))
		for _, field := range describe.Fields {
			cp := byName[field.Name]
			prop, err := schema.ToProperty(field.Type, field.Nillable, string(cp.Inclusion), cp.Selected)
			if err != nil {
				return nil, err
			}
			props[field.Name] = prop
		}

		schemas = append(schemas, &core.Schema{
			Stream:     entry.Stream,
			Properties: props,
		})
	}
	return schemas, nil
}

// Read extracts every configured stream in order, one bulk job per
// stream, and streams the records out. Bookmarks advance as records
// flow so a consumer that persists state after the run resumes from the
// last value it saw.
func (s *SalesforceSource) Read(ctx context.Context) (*core.RecordStream, error) {
	records := make(chan *models.Record, recordChannelBuffer)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		for _, entry := range s.entries {
			if err := s.readStream(ctx, entry, records); err != nil {
				errs <- err
				return
			}
		}
	}()

	return &core.RecordStream{Records: records, Errors: errs}, nil
}

func (s *SalesforceSource) readStream(ctx context.Context, entry *catalog.Entry, out chan<- *models.Record) error {
	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()

	s.Logger().Info("extracting stream",
		zap.String("stream", entry.Stream),
		zap.Strings("fields", entry.SelectedFields()))

	it, err := s.client.BulkQuery(ctx, entry, state)
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()

	count := int64(0)
	maxBookmark := ""
	for it.Next() {
		rec := it.Record()
		count++

		if entry.ReplicationKey != "" {
			if v, ok := rec.Get(entry.ReplicationKey); ok && v > maxBookmark {
				maxBookmark = v
			}
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "read canceled")
		}
	}
	if err := it.Err(); err != nil {
		return err
	}

	if entry.ReplicationKey != "" && maxBookmark != "" {
		s.stateMu.Lock()
		s.state.SetBookmark(entry.Stream, entry.ReplicationKey, maxBookmark)
		s.stateMu.Unlock()
	}

	s.Collector().Add("records_read", float64(count))
	s.Logger().Info("stream extracted",
		zap.String("stream", entry.Stream),
		zap.Int64("records", count))
	return nil
}

// GetState returns a snapshot of the source's bookmark state.
func (s *SalesforceSource) GetState() catalog.State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	out := make(catalog.State, len(s.state))
	for stream, keys := range s.state {
		copied := make(map[string]string, len(keys))
		for k, v := range keys {
			copied[k] = v
		}
		out[stream] = copied
	}
	return out
}

// SetState seeds the source's bookmark state before Read.
func (s *SalesforceSource) SetState(state catalog.State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if state == nil {
		state = make(catalog.State)
	}
	s.state = state
}

// Health verifies the session is live.
func (s *SalesforceSource) Health(ctx context.Context) error {
	if err := s.BaseConnector.Health(ctx); err != nil {
		return err
	}
	if s.client == nil {
		return errors.New(errors.ErrorTypeConnection, "source not initialized")
	}
	_, _, err := s.client.Session().Snapshot()
	return err
}

// Close stops the session renewal and releases the transport.
func (s *SalesforceSource) Close(ctx context.Context) error {
	if s.client != nil {
		_ = s.client.Close()
	}
	return s.BaseConnector.Close(ctx)
}
