package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tiktorch/internal/config"
)

func ConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the tiktorch-cli config file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config file into the home directory",
		Example: `  tiktorch-cli config init
  tiktorch-cli config init --home /path/to/home`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Init(opts.home)
			if err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration at %s\n", path)
			return nil
		},
	})

	return cmd
}
