package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jsbundle/jsbundle/cmd/internal/flags"
	"github.com/jsbundle/jsbundle/internal/config"
	"github.com/jsbundle/jsbundle/internal/service"
)

type buildParams struct {
	configs    []string
	force      bool
	check      bool
	noProgress bool
	workers    int
	logging    flags.Logging
}

func init() {
	var params buildParams

	build := &cobra.Command{
		Use:   "build [bundle...]",
		Short: "Build bundles once",
		Long: `Build all bundles, or the named ones, and exit. Bundles whose target is
newer than all of their modules are skipped unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.Load(params.configs)
			if err != nil {
				return err
			}

			svc := service.New().
				WithConfig(root).
				WithLogger(params.logging.Logger(cmd.ErrOrStderr())).
				WithBundles(args).
				WithForce(params.force).
				WithWorkers(params.workers)

			if params.check {
				svc = svc.WithCheck(cmd.OutOrStdout())
			}
			if !params.noProgress {
				svc = svc.WithProgress(cmd.ErrOrStderr())
			}

			return svc.Build(cmd.Context())
		},
	}

	flags.AddConfig(build.Flags(), &params.configs)
	flags.AddLogging(build.Flags(), &params.logging)
	build.Flags().BoolVar(&params.force, "force", false, "Rebuild bundles even if they are up to date")
	build.Flags().BoolVar(&params.check, "check", false, "Compare the bundles with their targets and print a diff instead of writing them")
	build.Flags().BoolVar(&params.noProgress, "no-progress", false, "Do not show a progress bar")
	build.Flags().IntVar(&params.workers, "workers", 0, "Number of bundles built concurrently (default from configuration)")

	RootCommand.AddCommand(build)
}
