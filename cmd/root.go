package cmd

import (
	"github.com/spf13/cobra"
)

var RootCommand = &cobra.Command{
	Use:   "jsbundle",
	Short: "Bundle generated JavaScript modules into browser scripts",
	Long: `jsbundle orders generated JavaScript modules by their static dependencies,
strips their module system boilerplate and concatenates them into one
self-contained script per bundle.`,
	SilenceUsage: true,
}
