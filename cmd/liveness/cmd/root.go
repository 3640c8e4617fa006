// Package cmd implements the liveness command line.
package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/No1412lee/il2cpp-plus/pkg/config"
	"github.com/No1412lee/il2cpp-plus/pkg/pprof"
	"github.com/No1412lee/il2cpp-plus/pkg/telemetry"
	"github.com/No1412lee/il2cpp-plus/pkg/utils"
)

var (
	// Global flags
	configPath string
	logLevel   string
	verbose    bool

	// Pprof flags
	pprofEnabled  bool
	pprofMode     string
	pprofDir      string
	pprofProfiles string
	pprofAddr     string

	cfg            *config.Config
	logger         utils.Logger = &utils.NullLogger{}
	shutdown       telemetry.ShutdownFunc
	pprofCollector *pprof.Collector
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "liveness",
	Short: "Find the live objects of a managed heap snapshot",
	Long: `liveness walks the object graph of a managed heap snapshot and reports
every object reachable from a root object or from the static fields of all
loaded classes.

Snapshots are YAML or JSON documents, optionally gzip or zstd compressed,
read from disk or from object storage. Static scans run on several workers
that steal queued work from each other.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		logger, err = utils.NewLogger(cfg.Log.Level, cfg.Log.OutputPath)
		if err != nil {
			return err
		}
		utils.SetGlobalLogger(logger)

		// OTEL_ENABLED=true
		shutdown, err = telemetry.Init(cmd.Context())
		if err != nil {
			return err
		}

		if pprofEnabled {
			if err := startPprof(); err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pprofCollector != nil {
			if err := pprofCollector.Stop(); err != nil {
				logger.Warn("Failed to stop pprof collector: %v", err)
			}
			for _, f := range pprofCollector.Files() {
				logger.Info("pprof data saved to: %s", f)
			}
			pprofCollector = nil
		}
		if shutdown != nil {
			if err := shutdown(context.Background()); err != nil {
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
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: ./liveness.yaml, ./configs, /etc/liveness)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Pprof flags
	rootCmd.PersistentFlags().BoolVar(&pprofEnabled, "pprof", false, "Profile the scanner itself")
	rootCmd.PersistentFlags().StringVar(&pprofMode, "pprof-mode", "file", "Pprof mode: file (written on exit) or http (on-demand)")
	rootCmd.PersistentFlags().StringVar(&pprofDir, "pprof-dir", "./pprof", "Output directory for pprof data")
	rootCmd.PersistentFlags().StringVar(&pprofProfiles, "pprof-profiles", "cpu,heap,goroutine", "Comma-separated profile types: cpu,heap,goroutine,block,mutex,allocs")
	rootCmd.PersistentFlags().StringVar(&pprofAddr, "pprof-addr", ":6060", "HTTP listen address for http mode")

	binName := BinName()
	rootCmd.Example = `  # Generate a synthetic snapshot and scan its statics on 8 workers
  ` + binName + ` gen -o ./heap.yaml.gz --objects 100000
  ` + binName + ` scan -s ./heap.yaml.gz -w 8

  # Scan from a root object, reporting only Game.Node instances
  ` + binName + ` scan -s ./heap.yaml --mode root --root 42 --filter Node

  # Fetch the snapshot from object storage and publish the summary
  ` + binName + ` scan -s snapshots/heap.json.zst --from-storage --upload --db

  # Profile a large statics scan
  ` + binName + ` scan -s ./heap.yaml.gz -w 16 --pprof --pprof-profiles cpu,mutex

  # List recent runs
  ` + binName + ` runs list --limit 10`
}

func startPprof() error {
	profiles, err := pprof.ParseProfileTypes(pprofProfiles)
	if err != nil {
		return err
	}
	c, err := pprof.NewCollector(pprof.Config{
		Mode:      pprof.ModeType(pprofMode),
		Profiles:  profiles,
		OutputDir: pprofDir,
		Addr:      pprofAddr,
	}, logger)
	if err != nil {
		return err
	}
	if err := c.Start(); err != nil {
		return err
	}
	pprofCollector = c
	logger.Info("pprof collection started (mode: %s)", pprofMode)
	return nil
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
