package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoSync bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the operator API and the auto-sync loop",
		Long: `Serve the operator HTTP API and sync every polling interval until
interrupted.

Example:
  tasksync serve --config tasksync.yaml
  tasksync serve --nosync -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoSync, "nosync", false, "disable automatic syncing")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := opts.build(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.NoSync {
		svc.Logger.Info("auto-sync disabled")
	} else if err := svc.Engine.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start auto-sync", err)
	}

	if err := svc.HTTPServer().Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "http server failed", err)
	}
	return nil
}
