package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jsbundle/jsbundle/cmd/internal/flags"
	"github.com/jsbundle/jsbundle/internal/config"
	"github.com/jsbundle/jsbundle/internal/service"
)

type graphParams struct {
	configs []string
	logging flags.Logging
}

func init() {
	var params graphParams

	graph := &cobra.Command{
		Use:   "graph <bundle>",
		Short: "Print the module order of a bundle",
		Long: `Print the modules of a bundle in the order they are emitted, with the
modules each one requires directly. Circular dependencies are reported on
stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.Load(params.configs)
			if err != nil {
				return err
			}

			b, ok := root.Bundles[args[0]]
			if !ok {
				return fmt.Errorf("unknown bundle %q", args[0])
			}

			bundle, err := service.Inspect(b, params.logging.Logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			wd, err := os.Getwd()
			if err != nil {
				return err
			}

			rows := make([][]string, len(bundle.Nodes))
			for i, n := range bundle.Nodes {
				requires := make([]string, len(n.Requires))
				for j, r := range n.Requires {
					requires[j] = relative(wd, r)
				}
				rows[i] = []string{strconv.Itoa(i + 1), relative(wd, n.Path), strings.Join(requires, "\n")}
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("#", "Module", "Requires")
			if err := table.Bulk(rows); err != nil {
				return err
			}
			if err := table.Render(); err != nil {
				return err
			}

			for _, w := range bundle.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), w.String())
			}

			return nil
		},
	}

	flags.AddConfig(graph.Flags(), &params.configs)
	flags.AddLogging(graph.Flags(), &params.logging)

	RootCommand.AddCommand(graph)
}

func relative(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
