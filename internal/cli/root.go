// Package cli implements nameaffirmctl, the operator command line for
// inspecting and repairing verified-name records.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"nameaffirm/internal/platform/config"
	"nameaffirm/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabaseURL string
	Format      string // "json" | "text"

	Config config.Config
	Logger *slog.Logger

	open Opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command backed by Postgres.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{open: OpenPostgres})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nameaffirmctl",
		Short: "Inspect and repair verified-name records",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.Config = cfg
			if opts.DatabaseURL == "" {
				opts.DatabaseURL = cfg.Database.URL
			}
			if opts.Logger == nil {
				opts.Logger = logger.NewWithWriter(cmd.ErrOrStderr(), config.Log{Level: cfg.Log.Level, Format: "text"})
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "Postgres DSN (defaults to DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTopicsCommand(opts))

	return cmd
}
