package cli

import (
	"fmt"
	"path/filepath"

	"github.com/Harshitk-cp/curio/internal/config"
	"github.com/Harshitk-cp/curio/internal/store"
	"github.com/spf13/cobra"
)

type MigrateOptions struct {
	*RootOptions
	Dir string
}

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply SQL migrations",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			files, err := store.Migrate(cmd.Context(), pool, opts.Dir)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return outputJSON(cmd, map[string]any{"applied": files})
			}
			for _, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", filepath.Base(f))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", config.MigrationsPath(), "directory of .sql migrations")
	return cmd
}
