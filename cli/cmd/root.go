// Package cmd provides the Cobra commands for the sharedmods CLI.
package cmd

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/sharedmods/cli/output"
	"github.com/fluxbase-eu/sharedmods/cli/util"
	"github.com/fluxbase-eu/sharedmods/internal/config"
	"github.com/fluxbase-eu/sharedmods/internal/logging"
	"github.com/fluxbase-eu/sharedmods/internal/observability"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile     string
	projectRoot string
	outputFmt   string
	logFormat   string
	noHeaders   bool
	quiet       bool
	debug       bool

	// Shared across commands
	cfg       *config.Config
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sharedmods",
	Short: "sharedmods - Bundle frontend dependencies shared by plugins and themes",
	Long: `sharedmods builds one standalone artifact per frontend dependency that
plugins and themes declare, so that every consumer loads a single shared copy
at runtime instead of bundling its own.

Each package is compiled twice: a probe pass records which exports of other
shared packages it actually uses, and an artifact pass builds it with those
imports resolved through the runtime module registry.

Get started:
  sharedmods bundle              Build every declared dependency
  sharedmods load-order <pkg>    Show what a loader must resolve first
  sharedmods --help              Show available commands`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silence errors only when --quiet is used
		cmd.SilenceErrors = quiet
		return initialize(cmd)
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./sharedmods.yaml)")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", "",
		"project root (overrides project.root)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format: console, json (overrides log_format)")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(metaCmd)
	rootCmd.AddCommand(loadOrderCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(cleanCmd)
}

// initialize loads the configuration and sets up logging and the formatter.
// Commands that need neither skip it.
func initialize(cmd *cobra.Command) error {
	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, noHeaders, quiet)
	formatter.Writer = cmd.OutOrStdout()
	formatter.ErrWriter = cmd.ErrOrStderr()

	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	if projectRoot != "" {
		cfg.Project.Root = projectRoot
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if debug {
		cfg.Debug = true
	}

	setupLogging(nil)
	return nil
}

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "sharedmods/skip-config"

// setupLogging points the global logger at stderr, forwarding build events
// to sink when it is not nil.
func setupLogging(sink logging.Sink) {
	format := "json"
	if cfg != nil && cfg.LogFormat == "console" && util.IsTerminal(os.Stderr) {
		format = "console"
	}

	log.Logger = zerolog.New(logging.NewWriter(sink, os.Stderr, format)).With().Timestamp().Logger()

	switch {
	case cfg != nil && cfg.Debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case quiet:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// startTracer sets up tracing for a command and returns its shutdown func.
func startTracer(ctx context.Context) (func(), error) {
	tracer, err := observability.NewTracer(ctx, cfg.Tracing, Version)
	if err != nil {
		return nil, err
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down tracer")
		}
	}, nil
}

// GetFormatter returns the output formatter (for use by subcommands)
func GetFormatter() *output.Formatter {
	if formatter == nil {
		format, _ := output.ParseFormat(outputFmt)
		formatter = output.NewFormatter(format, noHeaders, quiet)
	}
	return formatter
}
