package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/runtime"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation cycle",
		Long: `Run one reconciliation cycle and print its outcome.

The command fails with exit code 3 when another cycle holds the sync lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := opts.build(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			result, syncErr := svc.Engine.Sync(cmd.Context())
			if result != nil {
				if err := opts.output(cmd).Print(result, func(w io.Writer) error {
					return printCycle(w, result)
				}); err != nil {
					return err
				}
			}
			return engineExit("sync failed", syncErr)
		},
	}
}

func printCycle(w io.Writer, r *domain.CycleResult) error {
	status := "ok"
	if !r.Success {
		status = "failed"
	}
	_, err := fmt.Fprintf(w,
		"cycle %s %s (%s -> %s) in %s\n  new %d, updated %d, duplicate %d\n  paired %d, propagated %d, failed %d\n",
		r.ID, status, r.Driving, r.Counterpart, r.Duration.Round(time.Millisecond),
		r.New, r.Updated, r.Duplicate, r.Paired, r.Propagated, r.Failed,
	)
	if err != nil {
		return err
	}
	for _, e := range r.Errors {
		if _, err := fmt.Fprintf(w, "  error: %s\n", e); err != nil {
			return err
		}
	}
	return nil
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <service>",
		Short: "Delete every remote item of a service",
		Long: `Delete every item in a service's remote scope and reset its watermark.

This cannot be undone. Pass --yes to confirm.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to purge without --yes")
			}
			svc, cleanup, err := opts.build(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			n, purgeErr := svc.Engine.Purge(cmd.Context(), args[0])
			out := map[string]any{"service": args[0], "deleted": n}
			if err := opts.output(cmd).Print(out, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "deleted %d items from %s\n", n, args[0])
				return err
			}); err != nil {
				return err
			}
			return engineExit("purge failed", purgeErr)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the purge")
	return cmd
}

// NewPurgeLocalCommand creates the purge-local command.
func NewPurgeLocalCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge-local",
		Short: "Clear every local store",
		Long: `Clear the config, syncs and category stores. Remote services are untouched,
so the next cycle treats every fetched item as new.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to purge local stores without --yes")
			}
			svc, cleanup, err := opts.build(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := svc.Engine.PurgeLocal(cmd.Context())
			if err != nil {
				return engineExit("purge-local failed", err)
			}
			return opts.output(cmd).Print(map[string]int{"deleted": n}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "removed %d local documents\n", n)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the purge")
	return cmd
}

// NewResetWatermarkCommand creates the reset-watermark command.
func NewResetWatermarkCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-watermark <service>",
		Short: "Force the next fetch of a service to start from the beginning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := opts.build(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.Engine.ResetWatermark(cmd.Context(), args[0]); err != nil {
				return engineExit("reset failed", err)
			}
			return opts.output(cmd).Print(map[string]string{"service": args[0], "watermark": "0"}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "watermark of %s reset\n", args[0])
				return err
			})
		},
	}
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump [store]",
		Short: "Print the documents of a local store",
		Long: `Print every document of a local store. Without an argument the
available store names are listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := opts.build(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if len(args) == 0 {
				stores := svc.Engine.Stores()
				return opts.output(cmd).Print(map[string][]string{"stores": stores}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, strings.Join(stores, "\n"))
					return err
				})
			}

			docs, err := svc.Engine.Dump(cmd.Context(), args[0])
			if err != nil {
				return engineExit("dump failed", err)
			}
			return opts.output(cmd).Print(docs, func(w io.Writer) error {
				for _, d := range docs {
					if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", d.Key, d.Rev, d.Body); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

// NewTokenCommand creates the token command.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator API token",
		Long:  `Sign a bearer token for the HTTP API with http.jwt_secret.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			auth := runtime.NewAuth(cfg.HTTP.JWTSecret)
			if auth == nil {
				return NewExitError(ExitCommandError, "http.jwt_secret is not configured")
			}
			token, expiresAt, err := auth.IssueToken(subject, ttl)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to issue token", err)
			}
			out := map[string]any{"token": token, "subject": subject, "expires_at": expiresAt}
			return opts.output(cmd).Print(out, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, token)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// engineExit maps engine errors onto exit codes.
func engineExit(message string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrLocked):
		return WrapExitError(ExitLocked, message, err)
	case errors.Is(err, domain.ErrUnknownService), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidInput):
		return WrapExitError(ExitCommandError, message, err)
	default:
		return WrapExitError(ExitFailure, message, err)
	}
}
