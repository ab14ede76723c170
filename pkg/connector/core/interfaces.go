// Package core defines the connector contracts: sources produce record
// streams, destinations consume them. The extraction pipeline is wired
// from these interfaces so sources and destinations stay independently
// testable.
package core

import (
	"context"

	"github.com/datastreamhq/forcetap/pkg/config"
	"github.com/datastreamhq/forcetap/pkg/models"
	"github.com/datastreamhq/forcetap/pkg/schema"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// Schema describes one stream's shape as discovered from the source.
type Schema struct {
	Stream     string                     `json:"stream"`
	Properties map[string]schema.Property `json:"properties"`
}

// RecordStream carries records from a source to a destination. A value
// on Errors terminates the stream early. The producer closes both
// channels when it stops, Errors before Records, so a consumer that
// sees Records close can drain Errors for a pending failure.
type RecordStream struct {
	Records <-chan *models.Record
	Errors  <-chan error
}

// Source is the interface all source connectors implement.
type Source interface {
	// Initialize prepares the source; no records flow until Read
	Initialize(ctx context.Context, config *config.BaseConfig) error

	// Discover returns the schemas of the configured streams
	Discover(ctx context.Context) ([]*Schema, error)

	// Read streams the records of every configured stream in order
	Read(ctx context.Context) (*RecordStream, error)

	// Close releases the source's resources
	Close(ctx context.Context) error

	// Health reports whether the source can reach its backend
	Health(ctx context.Context) error

	// Metrics returns source counters for observability
	Metrics() map[string]interface{}
}

// Destination is the interface all destination connectors implement.
type Destination interface {
	// Initialize prepares the destination for writing
	Initialize(ctx context.Context, config *config.BaseConfig) error

	// CreateSchema declares a stream's shape before its records arrive
	CreateSchema(ctx context.Context, schema *Schema) error

	// Write consumes the stream until it closes or errors
	Write(ctx context.Context, stream *RecordStream) error

	// Close flushes and releases the destination's resources
	Close(ctx context.Context) error

	// Health reports whether the destination can accept writes
	Health(ctx context.Context) error

	// Metrics returns destination counters for observability
	Metrics() map[string]interface{}
}

// Connector is the base interface shared by sources and destinations.
type Connector interface {
	Name() string
	Type() ConnectorType
	Version() string

	Initialize(ctx context.Context, config *config.BaseConfig) error
	Close(ctx context.Context) error

	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}
