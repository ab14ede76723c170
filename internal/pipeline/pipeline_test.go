package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datastreamhq/forcetap/pkg/config"
	"github.com/datastreamhq/forcetap/pkg/connector/core"
	"github.com/datastreamhq/forcetap/pkg/models"
	"github.com/datastreamhq/forcetap/pkg/schema"
)

type fakeSource struct {
	schemas []*core.Schema
	records []*models.Record
	readErr error
}

func (s *fakeSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error { return nil }
func (s *fakeSource) Close(ctx context.Context) error                              { return nil }
func (s *fakeSource) Health(ctx context.Context) error                             { return nil }
func (s *fakeSource) Metrics() map[string]interface{}                              { return nil }

func (s *fakeSource) Discover(ctx context.Context) ([]*core.Schema, error) {
	return s.schemas, nil
}

func (s *fakeSource) Read(ctx context.Context) (*core.RecordStream, error) {
	records := make(chan *models.Record, len(s.records))
	errs := make(chan error, 1)
	go func() {
		defer close(records)
		defer close(errs)
		for _, rec := range s.records {
			records <- rec
		}
		if s.readErr != nil {
			errs <- s.readErr
		}
	}()
	return &core.RecordStream{Records: records, Errors: errs}, nil
}

type fakeDestination struct {
	schemas []*core.Schema
	written []*models.Record
}

func (d *fakeDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error { return nil }
func (d *fakeDestination) Close(ctx context.Context) error                              { return nil }
func (d *fakeDestination) Health(ctx context.Context) error                             { return nil }
func (d *fakeDestination) Metrics() map[string]interface{}                              { return nil }

func (d *fakeDestination) CreateSchema(ctx context.Context, s *core.Schema) error {
	d.schemas = append(d.schemas, s)
	return nil
}

func (d *fakeDestination) Write(ctx context.Context, stream *core.RecordStream) error {
	errs := stream.Errors
	for {
		select {
		case rec, ok := <-stream.Records:
			if !ok {
				if errs != nil {
					for err := range errs {
						if err != nil {
							return err
						}
					}
				}
				return nil
			}
			d.written = append(d.written, rec)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestPipelineRun(t *testing.T) {
	source := &fakeSource{
		schemas: []*core.Schema{{
			Stream:     "Account",
			Properties: map[string]schema.Property{"Id": {Types: schema.TypeList{"string"}}},
		}},
		records: []*models.Record{
			models.NewRecord("Account", map[string]string{"Id": "001"}),
			models.NewRecord("Account", map[string]string{"Id": "002"}),
		},
	}
	dest := &fakeDestination{}

	p := NewPipeline(source, dest, zap.NewNop())
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, dest.schemas, 1)
	assert.Equal(t, "Account", dest.schemas[0].Stream)
	require.Len(t, dest.written, 2)

	metrics := p.Metrics()
	assert.Equal(t, int64(2), metrics["records_processed"])
}

func TestPipelineRunPropagatesSourceError(t *testing.T) {
	source := &fakeSource{readErr: assert.AnError}
	dest := &fakeDestination{}

	p := NewPipeline(source, dest, zap.NewNop())
	err := p.Run(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}
