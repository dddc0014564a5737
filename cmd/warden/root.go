package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/warden/pkg/warden/config"
	"github.com/jamesainslie/warden/pkg/warden/logging"
)

var (
	verbose bool
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "warden",
		Short: "Size worker pools to the memory that is actually there",
		Long: `Warden detects available memory and CPU, derives a worker pool
configuration that fits, and watches worker lifecycles for the failure
patterns of memory-starved environments.

Examples:
  warden tune                      # Print configuration for this machine
  warden tune -o env               # Shell-sourceable output
  warden monitor --feed events.jsonl
  warden matrix --mock             # Dry-run the scenario matrix
  warden history                   # Past matrix runs`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug output")
}

// initConfig loads configuration and initializes logging. Load errors are
// deferred to the commands so --help works on a broken config.
func initConfig() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cfg = &config.Config{}
		return
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logCfg := logging.Config{
		Level:      level,
		Path:       cfg.Logging.Path,
		Rotation:   cfg.ToRotation(),
		Components: cfg.Logging.Components,
		Console:    verbose,
	}
	if logCfg.Path == "" {
		logCfg.Path = config.DefaultLogPath()
	}
	if err := config.EnsureStateDir(); err == nil {
		if err := logging.Init(logCfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: logging init: %v\n", err)
		}
	}
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = logging.Close() }()

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}
