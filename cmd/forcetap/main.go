package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datastreamhq/forcetap/internal/pipeline"
	"github.com/datastreamhq/forcetap/pkg/catalog"
	"github.com/datastreamhq/forcetap/pkg/config"
	"github.com/datastreamhq/forcetap/pkg/connector/registry"
	"github.com/datastreamhq/forcetap/pkg/logger"

	// Import all available connectors to register them
	_ "github.com/datastreamhq/forcetap/pkg/connector/destinations/jsonl"
	_ "github.com/datastreamhq/forcetap/pkg/connector/sources/salesforce"
)

var version = "0.1.0"

// statefulSource is implemented by sources that carry replication
// bookmarks across runs.
type statefulSource interface {
	GetState() catalog.State
	SetState(state catalog.State)
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "forcetap",
		Short: "forcetap - Salesforce bulk extraction tool",
		Long: `forcetap extracts sObject records from Salesforce through the Bulk API
and streams them to a destination, governed by configurable API quota
thresholds so a run never exhausts the org's daily allotment.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("forcetap v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available Source Connectors:")
			for _, source := range registry.ListSources() {
				fmt.Printf("  - %s\n", source)
			}
			fmt.Println("\nAvailable Destination Connectors:")
			for _, dest := range registry.ListDestinations() {
				fmt.Printf("  - %s\n", dest)
			}
		},
	})

	var configFile, stateFile, logLevel string
	var timeout time.Duration

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover stream schemas",
		Long:  `Discover connects to the source and prints the schema of each configured stream as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(configFile, logLevel, timeout)
		},
	}
	discoverCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to configuration YAML file (required)")
	discoverCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	discoverCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Run timeout")
	_ = discoverCmd.MarkFlagRequired("config")
	root.AddCommand(discoverCmd)

	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Run an extraction",
		Long: `Extract runs the full pipeline: it opens a bulk query job per configured
stream, polls the batches to completion, and streams the records to the
configured destination.

Example:
  forcetap extract --config config.yaml --state state.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(configFile, stateFile, logLevel, timeout)
		},
	}
	extractCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to configuration YAML file (required)")
	extractCmd.Flags().StringVar(&stateFile, "state", "", "Path to replication state JSON file (read and updated)")
	extractCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	extractCmd.Flags().DurationVar(&timeout, "timeout", 0, "Run timeout (0 = unbounded)")
	_ = extractCmd.MarkFlagRequired("config")
	root.AddCommand(extractCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(configFile, logLevel string, timeout time.Duration) (*config.BaseConfig, context.Context, context.CancelFunc, error) {
	if err := logger.Init(logger.Config{Level: logLevel, Encoding: "json"}); err != nil {
		return nil, nil, nil, fmt.Errorf("logger error: %w", err)
	}

	cfg := &config.BaseConfig{}
	if err := config.Load(configFile, cfg); err != nil {
		return nil, nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	cfg.ApplyDefaults()

	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	return cfg, ctx, cancel, nil
}

func runDiscover(configFile, logLevel string, timeout time.Duration) error {
	cfg, ctx, cancel, err := setup(configFile, logLevel, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	source, err := registry.CreateSource(cfg.Type, cfg)
	if err != nil {
		return fmt.Errorf("failed to create source connector '%s': %w", cfg.Type, err)
	}
	if err := source.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize source: %w", err)
	}
	defer func() { _ = source.Close(ctx) }()

	schemas, err := source.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	enc := gojson.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(schemas)
}

func runExtract(configFile, stateFile, logLevel string, timeout time.Duration) error {
	cfg, ctx, cancel, err := setup(configFile, logLevel, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	log := logger.Get().With(
		zap.String("component", "forcetap-cli"),
		zap.String("source", cfg.Type))

	source, err := registry.CreateSource(cfg.Type, cfg)
	if err != nil {
		return fmt.Errorf("failed to create source connector '%s': %w", cfg.Type, err)
	}

	destType := "jsonl"
	destination, err := registry.CreateDestination(destType, cfg)
	if err != nil {
		return fmt.Errorf("failed to create destination connector '%s': %w", destType, err)
	}

	if err := source.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize source: %w", err)
	}
	if err := destination.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize destination: %w", err)
	}

	if stateful, ok := source.(statefulSource); ok && stateFile != "" {
		state, err := loadState(stateFile)
		if err != nil {
			return err
		}
		stateful.SetState(state)
	}

	startTime := time.Now()
	p := pipeline.NewPipeline(source, destination, log)
	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}

	if stateful, ok := source.(statefulSource); ok && stateFile != "" {
		if err := saveState(stateFile, stateful.GetState()); err != nil {
			log.Warn("failed to persist state", zap.Error(err))
		}
	}

	log.Info("extraction completed", zap.Duration("duration", time.Since(startTime)))

	if err := source.Close(ctx); err != nil {
		log.Warn("failed to close source", zap.Error(err))
	}
	if err := destination.Close(ctx); err != nil {
		log.Warn("failed to close destination", zap.Error(err))
	}
	return nil
}

// loadState reads the replication state file; a missing file yields an
// empty state so the first run needs no setup.
func loadState(path string) (catalog.State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return make(catalog.State), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	var state catalog.State
	if err := gojson.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return state, nil
}

func saveState(path string, state catalog.State) error {
	data, err := gojson.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
