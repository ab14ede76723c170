// Package jsonl implements a JSON Lines destination. Schemas and
// records are written one JSON document per line, schemas first, to a
// file or stdout. It is the default sink for extraction runs.
package jsonl

import (
	"bufio"
	"context"
	"os"
	"sync"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/datastreamhq/forcetap/pkg/config"
	"github.com/datastreamhq/forcetap/pkg/connector/base"
	"github.com/datastreamhq/forcetap/pkg/connector/core"
	"github.com/datastreamhq/forcetap/pkg/errors"
	"github.com/datastreamhq/forcetap/pkg/models"
)

const writerBufferSize = 256 * 1024

// message is the envelope written for each output line.
type message struct {
	Type   string         `json:"type"`
	Stream string         `json:"stream"`
	Schema *core.Schema   `json:"schema,omitempty"`
	Record *models.Record `json:"record,omitempty"`
}

// JSONLDestination writes schemas and records as JSON Lines.
type JSONLDestination struct {
	*base.BaseConnector

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	stdout bool
}

// NewJSONLDestination creates a new JSON Lines destination connector
func NewJSONLDestination(cfg *config.BaseConfig) (core.Destination, error) {
	return &JSONLDestination{
		BaseConnector: base.NewBaseConnector("jsonl", core.ConnectorTypeDestination, "1.0.0"),
	}, nil
}

// Initialize opens the output target. An empty or "-" path writes to
// stdout, which stays open across Close.
func (d *JSONLDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	path := cfg.Output.Path
	if path == "" || path == "-" {
		d.stdout = true
		d.writer = bufio.NewWriterSize(os.Stdout, writerBufferSize)
		return nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if cfg.Output.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConfig, "failed to open output file %s", path)
	}
	d.file = file
	d.writer = bufio.NewWriterSize(file, writerBufferSize)

	d.Logger().Info("output opened", zap.String("path", path), zap.Bool("append", cfg.Output.Append))
	return nil
}

// CreateSchema writes a schema line for the stream.
func (d *JSONLDestination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	return d.writeLine(&message{
		Type:   "SCHEMA",
		Stream: schema.Stream,
		Schema: schema,
	})
}

// Write consumes the stream until the records channel closes or an
// error arrives.
func (d *JSONLDestination) Write(ctx context.Context, stream *core.RecordStream) error {
	count := int64(0)
	errs := stream.Errors
	for {
		select {
		case rec, ok := <-stream.Records:
			if !ok {
				// The producer closes Errors before Records, so any
				// failure it reported is still buffered here; drain it
				// rather than let select ordering drop it.
				if errs != nil {
					for err := range errs {
						if err != nil {
							return err
						}
					}
				}
				d.Collector().Add("records_written", float64(count))
				return d.flush()
			}
			if err := d.writeLine(&message{
				Type:   "RECORD",
				Stream: rec.Stream,
				Record: rec,
			}); err != nil {
				return err
			}
			count++
		case err, ok := <-errs:
			if !ok {
				// Closed error channel; stop selecting on it
				errs = nil
				continue
			}
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "write canceled")
		}
	}
}

func (d *JSONLDestination) writeLine(msg *message) error {
	data, err := gojson.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode output line")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.writer == nil {
		return errors.New(errors.ErrorTypeInternal, "destination not initialized")
	}
	if _, err := d.writer.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to write output line")
	}
	if err := d.writer.WriteByte('\n'); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to write output line")
	}
	return nil
}

func (d *JSONLDestination) flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.writer == nil {
		return nil
	}
	if err := d.writer.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to flush output")
	}
	return nil
}

// Close flushes buffered output and closes the file if one was opened.
func (d *JSONLDestination) Close(ctx context.Context) error {
	if err := d.flush(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.file != nil {
		_ = d.file.Close()
		d.file = nil
	}
	d.writer = nil
	d.mu.Unlock()

	return d.BaseConnector.Close(ctx)
}
