package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jsbundle/jsbundle/internal/config"
)

func init() {
	RootCommand.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bs, err := config.ReflectSchema()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(bs, '\n'))
			return err
		},
	})
}
