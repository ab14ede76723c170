// Package base provides the BaseConnector that forcetap connectors embed.
// It carries the shared lifecycle plumbing: configuration, structured
// logging, metrics collection, and close handling, so concrete
// connectors only implement their data path.
package base

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/datastreamhq/forcetap/pkg/config"
	"github.com/datastreamhq/forcetap/pkg/connector/core"
	"github.com/datastreamhq/forcetap/pkg/errors"
	"github.com/datastreamhq/forcetap/pkg/logger"
	"github.com/datastreamhq/forcetap/pkg/metrics"
)

// BaseConnector provides common functionality for all connectors.
type BaseConnector struct {
	name          string
	connectorType core.ConnectorType
	version       string

	config *config.BaseConfig
	logger *zap.Logger

	metricsCollector *metrics.Collector

	ctx        context.Context
	cancel     context.CancelFunc
	closed     bool
	closeMutex sync.Mutex
}

// NewBaseConnector creates a new base connector with the specified name,
// type, and version. Called by connector implementations during
// construction.
func NewBaseConnector(name string, connectorType core.ConnectorType, version string) *BaseConnector {
	return &BaseConnector{
		name:          name,
		connectorType: connectorType,
		version:       version,
		logger:        logger.Get().With(zap.String("connector", name)),
	}
}

// Initialize stores the configuration and sets up the connector's
// lifecycle context and metrics. Must be called before use.
func (bc *BaseConnector) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if cfg == nil {
		return errors.New(errors.ErrorTypeConfig, "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	bc.config = cfg
	bc.ctx, bc.cancel = context.WithCancel(ctx)
	bc.metricsCollector = metrics.NewCollector(bc.name)

	bc.logger.Info("connector initialized",
		zap.String("type", string(bc.connectorType)),
		zap.String("version", bc.version))
	return nil
}

// Close cancels the connector context. Safe to call multiple times.
func (bc *BaseConnector) Close(ctx context.Context) error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()

	if bc.closed {
		return nil
	}
	bc.closed = true

	if bc.cancel != nil {
		bc.cancel()
	}

	bc.logger.Info("connector closed")
	return nil
}

// Name returns the connector name
func (bc *BaseConnector) Name() string { return bc.name }

// Type returns the connector type
func (bc *BaseConnector) Type() core.ConnectorType { return bc.connectorType }

// Version returns the connector version
func (bc *BaseConnector) Version() string { return bc.version }

// Config returns the connector configuration
func (bc *BaseConnector) Config() *config.BaseConfig { return bc.config }

// Logger returns the connector's structured logger
func (bc *BaseConnector) Logger() *zap.Logger { return bc.logger }

// Context returns the connector's lifecycle context
func (bc *BaseConnector) Context() context.Context { return bc.ctx }

// Collector returns the connector's metrics collector
func (bc *BaseConnector) Collector() *metrics.Collector { return bc.metricsCollector }

// Health reports healthy while the connector is open
func (bc *BaseConnector) Health(ctx context.Context) error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()

	if bc.closed {
		return errors.New(errors.ErrorTypeConnection, "connector is closed")
	}
	return nil
}

// Metrics returns the connector's collected metrics
func (bc *BaseConnector) Metrics() map[string]interface{} {
	if bc.metricsCollector == nil {
		return map[string]interface{}{}
	}
	return bc.metricsCollector.GetAll()
}
