package cli

import (
	"fmt"

	"github.com/Harshitk-cp/curio/internal/buildconfig"
	"github.com/spf13/cobra"
)

func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildconfig.Get()
			if rootOpts.Format == "json" {
				return outputJSON(cmd, info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "curioctl %s (%s, %s)\n", info.Version, info.Commit, info.GoVersion)
			return nil
		},
	}
}
