// Package cli implements curioctl, the operator command line for the
// curiosity engine's Postgres store.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Harshitk-cp/curio/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Database string
	Format   string // "json" | "text"
}

var validFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "curioctl",
		Short: "Operate the curiosity engine store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			if opts.Database == "" {
				opts.Database = config.DatabaseURL()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "Postgres DSN (defaults to DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if o.Database == "" {
		return nil, fmt.Errorf("no database: pass --db or set DATABASE_URL")
	}
	pool, err := pgxpool.New(ctx, o.Database)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
