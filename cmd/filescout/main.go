// Package main is the entry point for the filescout CLI and daemon.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/simpleflo/filescout/internal/analyzer"
	"github.com/simpleflo/filescout/internal/cancel"
	"github.com/simpleflo/filescout/internal/config"
	"github.com/simpleflo/filescout/internal/daemon"
	"github.com/simpleflo/filescout/internal/extract"
	"github.com/simpleflo/filescout/internal/observability"
	"github.com/simpleflo/filescout/internal/pathguard"
	"github.com/simpleflo/filescout/internal/search"
	"github.com/simpleflo/filescout/internal/store"
	"github.com/simpleflo/filescout/internal/walker"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

// Global flags
var (
	dataDir  string
	baseDir  string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "filescout",
		Short: "filescout - search and audit local directory trees",
		Long: `filescout finds text inside files, archives and office documents
across a directory tree, and reports on a tree's structure: file types,
size distribution, empty directories and duplicated content.`,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.filescout)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Directory all paths must stay within (default: /)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorColor.Sprint("Error: ")+err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if baseDir != "" {
		abs, err := filepath.Abs(baseDir)
		if err != nil {
			return nil, fmt.Errorf("resolve base dir: %w", err)
		}
		cfg.Scan.BaseDir = abs
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// setupCLILogging sends logs to stderr. Interactive sessions get the console
// format and only warnings unless a level was asked for.
func setupCLILogging(cfg *config.Config) {
	format := cfg.LogFormat
	level := cfg.LogLevel
	if isatty.IsTerminal(os.Stderr.Fd()) {
		format = "console"
		if logLevel == "" {
			level = "warn"
		}
	}
	observability.SetupLogging(level, format, os.Stderr)
}

// components bundles what a one-shot command needs.
type components struct {
	validator *pathguard.Validator
	engine    *search.Engine
	analyzer  *analyzer.Analyzer
	store     *store.Store
}

// buildComponents wires the engines from cfg. Persistence is best effort:
// without a usable database, runs still complete but are not recorded.
func buildComponents(cfg *config.Config) (*components, error) {
	validator, err := pathguard.New(cfg.Scan.BaseDir)
	if err != nil {
		return nil, err
	}

	c := &components{validator: validator}
	var sink search.PersistenceSink
	if err := cfg.EnsureDirectories(); err == nil {
		if st, err := store.New(cfg.DatabasePath()); err == nil {
			c.store = st
			sink = st
		} else {
			logger := observability.Logger("cli")
			logger.Warn().Err(err).Msg("history disabled, cannot open database")
		}
	}

	w := walker.New(walker.Options{
		ExcludeDirs:     cfg.Scan.ExcludeDirs,
		ExcludePatterns: cfg.Scan.ExcludePatterns,
	})
	dispatch := extract.NewDispatcher(extract.Options{
		IncludeArchives: true,
		MaxContentSize:  cfg.Scan.MaxContentSize,
	})

	c.engine = search.NewEngine(validator, w, dispatch, sink, search.Options{
		FileMatchCap:       cfg.Scan.FileMatchCap,
		MemberMatchCap:     cfg.Scan.MemberMatchCap,
		ContextLines:       cfg.Scan.ContextLines,
		PreviewRadius:      cfg.Scan.PreviewRadius,
		CheckpointInterval: cfg.Scan.CheckpointInterval,
	})
	c.analyzer = analyzer.New(validator, w, cancel.NewRegistry(), analyzer.Config{
		MaxWorkers:        cfg.Analysis.MaxWorkers,
		SampleSize:        cfg.Analysis.SampleSize,
		FullHashThreshold: cfg.Analysis.FullHashThreshold,
		CheckInterval:     cfg.Analysis.CheckInterval,
	})
	return c, nil
}

func (c *components) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// resolveArg turns a command-line path into an absolute one. An empty
// argument means the working directory.
func resolveArg(arg string) (string, error) {
	if arg == "" {
		return os.Getwd()
	}
	return filepath.Abs(arg)
}

func serveCmd() *cobra.Command {
	var address, logFormat string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the filescout HTTP daemon",
		Long: `Run filescout as a local HTTP service. Searches, analyses and
session history are exposed under /api/v1, with live progress over
server-sent events. Only one daemon may run per data directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.API.Address = address
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}

			observability.SetupLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr)

			// Set version info for daemon handlers
			daemon.Version = Version
			daemon.BuildTime = BuildTime

			d, err := daemon.New(cfg)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			return d.Run()
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Listen address (default: 127.0.0.1:8000)")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Log format: json, console")

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	})

	return cmd
}
