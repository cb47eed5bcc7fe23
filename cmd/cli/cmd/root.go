package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dumpster/pkg/config"
	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/telemetry"
	"github.com/dumpster/pkg/utils"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg               *config.Config
	logger            utils.Logger
	telemetryShutdown telemetry.ShutdownFunc
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dumpster",
	Short: "Exercise the dumpster cycle collector",
	Long: `dumpster drives the cycle-collecting handle library.

The stress command mutates a shared object graph from many goroutines while
collection passes run, then checks that no object was reached after it was
finalized and that every object was finalized exactly once. The scenario
command replays small graphs with a known outcome.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		logger, err = cfg.Log.NewLogger()
		if err != nil {
			return err
		}
		utils.SetGlobalLogger(logger)

		telemetryShutdown, err = telemetry.Init(cmd.Context())
		if err != nil {
			logger.Warn("Tracing disabled: %v", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if telemetryShutdown != nil {
			if err := telemetryShutdown(context.Background()); err != nil {
				logger.Warn("Failed to flush traces: %v", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./dumpster.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	binName := BinName()
	rootCmd.Example = `  # Run the stress harness with the configured defaults
  ` + binName + ` stress

  # Sixteen workers, automatic passes disabled, timing logged per pass
  ` + binName + ` stress -w 16 --manual --timing -v

  # Replay every built-in scenario
  ` + binName + ` scenario

  # Export pass spans to a local OTLP collector
  OTEL_ENABLED=true OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4317 ` + binName + ` stress`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}

// collectorOptions builds collector options from the loaded configuration.
func collectorOptions() []dumpster.Option {
	return append(cfg.Collector.Options(),
		dumpster.WithLogger(logger),
		telemetry.CollectorOption(),
	)
}
