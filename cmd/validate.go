package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jsbundle/jsbundle/cmd/internal/flags"
	"github.com/jsbundle/jsbundle/internal/config"
)

func init() {
	var configs []string

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := config.Load(configs)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %d bundles\n", len(root.Bundles))
			return nil
		},
	}

	flags.AddConfig(validate.Flags(), &configs)

	RootCommand.AddCommand(validate)
}
