package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/L0G1H/deepfakery/pkg/config"
	"github.com/L0G1H/deepfakery/pkg/logging"
	"github.com/L0G1H/deepfakery/pkg/pipeline"
	"github.com/spf13/cobra"
)

const version = "0.2.0"

var (
	cfg        *config.Config
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "deepfakery",
	Short:         "Swap faces in photos and videos",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.SetVersionTemplate(`{{printf "deepfakery v%s\n" .Version}}`)
}

// setup loads configuration and initialises logging.
func setup() error {
	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		if configFile != "" {
			return pipeline.Fatal("load config", err)
		}
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	if err := cfg.ApplyEnv(); err != nil {
		return pipeline.Fatal("load config", err)
	}
	cfg.ExpandPaths()
	if err := cfg.Validate(); err != nil {
		return pipeline.Fatal("load config", err)
	}

	logLevel := cfg.Logging.Level
	if debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}

	logging.Debugf("deepfakery v%s starting", version)
	logging.Debugf("Model: %s, detector: %s", cfg.Model.Path, cfg.Detection.Backend)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.WithError(err).Debug("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode is 1 for fatal errors and 2 for anything else, such as a failed
// job or bad flags.
func exitCode(err error) int {
	if pipeline.IsFatal(err) {
		return 1
	}
	return 2
}
