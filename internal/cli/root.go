// Package cli implements the tasksync command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tasksync/internal/adapters/driven/connectors"
	"github.com/custodia-labs/tasksync/internal/config"
	"github.com/custodia-labs/tasksync/internal/logging"
	"github.com/custodia-labs/tasksync/internal/runtime"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Debug      bool
	Format     string // "json" | "text"
	Version    string

	// Factory overrides the connector factory (for testing).
	Factory *connectors.Factory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(&RootOptions{Version: version})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasksync",
		Short: "Keep Zendesk tickets and Asana tasks in step",
		Long: `tasksync reconciles work items between two task services.

Each cycle fetches what changed on the driving service since its watermark,
creates counterparts for new items and propagates changes to paired ones.
Configuration comes from an optional YAML file and TASKSYNC_* variables.`,
		Version:       version(opts),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to a YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose console logging")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "debug console logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewPurgeLocalCommand(opts))
	cmd.AddCommand(NewResetWatermarkCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func version(opts *RootOptions) string {
	if opts.Version == "" {
		return "dev"
	}
	return opts.Version
}

// loadConfig reads the configuration named by --config.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// logger builds the process logger. --verbose and --debug only lower the
// console level; --debug also records source positions.
func (o *RootOptions) logger(cfg *config.Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	level := cfg.Log.Level
	if o.Verbose || o.Debug {
		level = "debug"
	}
	logger, closer, err := logging.New(logging.Config{
		Level:     level,
		AddSource: o.Debug,
		File:      cfg.Log.File,
		Console:   console,
	})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	return logger, closer, nil
}

// build loads configuration and wires the runtime. The returned cleanup
// closes the runtime and the log file.
func (o *RootOptions) build(ctx context.Context, cmd *cobra.Command) (*runtime.Services, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, logCloser, err := o.logger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	svc, err := runtime.Build(ctx, runtime.Options{
		Config:  cfg,
		Logger:  logger,
		Version: version(o),
		Factory: o.Factory,
	})
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to start", err)
	}

	cleanup := func() {
		if err := svc.Close(); err != nil {
			logger.Error("error closing runtime", "error", err)
		}
		_ = logCloser.Close()
	}
	return svc, cleanup, nil
}

func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
