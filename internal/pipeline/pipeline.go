// Package pipeline orchestrates an extraction run: it discovers the
// source's stream schemas, declares them to the destination, then
// streams records from source to destination until the source is
// exhausted or a fatal error stops the run.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/datastreamhq/forcetap/pkg/connector/core"
	"github.com/datastreamhq/forcetap/pkg/errors"
	"github.com/datastreamhq/forcetap/pkg/models"
)

// Pipeline streams records from one source into one destination.
type Pipeline struct {
	source      core.Source
	destination core.Destination
	logger      *zap.Logger

	mu               sync.Mutex
	recordsProcessed int64
	startTime        time.Time
}

// NewPipeline creates a pipeline over an initialized source and
// destination. Call Run to execute it.
func NewPipeline(source core.Source, destination core.Destination, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		source:      source,
		destination: destination,
		logger:      logger.With(zap.String("component", "pipeline")),
	}
}

// Run executes the extraction: schemas first, then records. It blocks
// until the source stream closes and returns the first error the run
// hit. Nothing is retried; a quota or auth error ends the run.
func (p *Pipeline) Run(ctx context.Context) error {
	p.startTime = time.Now()
	p.logger.Info("starting pipeline")

	schemas, err := p.source.Discover(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "schema discovery failed")
	}
	for _, s := range schemas {
		if err := p.destination.CreateSchema(ctx, s); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeInternal, "failed to declare schema for %s", s.Stream)
		}
	}

	stream, err := p.source.Read(ctx)
	if err != nil {
		return err
	}

	if err := p.destination.Write(ctx, p.tap(stream)); err != nil {
		return err
	}

	duration := time.Since(p.startTime)
	p.mu.Lock()
	processed := p.recordsProcessed
	p.mu.Unlock()

	p.logger.Info("pipeline completed",
		zap.Int64("records_processed", processed),
		zap.Duration("duration", duration))
	return nil
}

// tap interposes on the record stream to count records as they pass
// through to the destination.
func (p *Pipeline) tap(in *core.RecordStream) *core.RecordStream {
	records := make(chan *models.Record, cap(in.Records))

	go func() {
		defer close(records)
		for rec := range in.Records {
			p.mu.Lock()
			p.recordsProcessed++
			p.mu.Unlock()
			records <- rec
		}
	}()

	return &core.RecordStream{Records: records, Errors: in.Errors}
}

// Metrics returns pipeline metrics
func (p *Pipeline) Metrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	duration := time.Since(p.startTime)
	return map[string]interface{}{
		"records_processed": p.recordsProcessed,
		"duration":          duration.String(),
	}
}
