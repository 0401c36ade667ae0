package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jsbundle/jsbundle/cmd/internal/flags"
	"github.com/jsbundle/jsbundle/internal/config"
	"github.com/jsbundle/jsbundle/internal/service"
)

type runParams struct {
	configs     []string
	workers     int
	metricsAddr string
	logging     flags.Logging
}

func init() {
	var params runParams

	run := &cobra.Command{
		Use:   "run [bundle...]",
		Short: "Rebuild bundles continuously",
		Long: `Rebuild all bundles, or the named ones, every rebuild interval until
interrupted. SIGHUP reloads the configuration. Metrics are served on
/metrics when a metrics address is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.Load(params.configs)
			if err != nil {
				return err
			}

			log := params.logging.Logger(cmd.ErrOrStderr())

			svc := service.New().
				WithConfig(root).
				WithConfigFiles(params.configs).
				WithLogger(log).
				WithBundles(args).
				WithWorkers(params.workers)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return svc.Run(ctx)
			})

			g.Go(func() error {
				hup := make(chan os.Signal, 1)
				signal.Notify(hup, syscall.SIGHUP)
				defer signal.Stop(hup)

				for {
					select {
					case <-ctx.Done():
						return nil
					case <-hup:
						log.Infof("reloading configuration")
						if err := svc.Reload(ctx); err != nil {
							log.Errorf("failed to reload configuration: %v", err)
						}
					}
				}
			})

			addr := params.metricsAddr
			if addr == "" && root.Service != nil {
				addr = root.Service.MetricsAddr
			}
			if addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

				g.Go(func() error {
					log.Infof("serving metrics on %s", addr)
					if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			return g.Wait()
		},
	}

	flags.AddConfig(run.Flags(), &params.configs)
	flags.AddLogging(run.Flags(), &params.logging)
	run.Flags().IntVar(&params.workers, "workers", 0, "Number of bundles built concurrently (default from configuration)")
	run.Flags().StringVar(&params.metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (default from configuration)")

	RootCommand.AddCommand(run)
}
