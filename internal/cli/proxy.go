package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/shoppinglist/internal/api"
	"github.com/tphakala/shoppinglist/internal/logger"
	"github.com/tphakala/shoppinglist/internal/offline"
)

func newProxyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "proxy",
		Short: "Run the offline caching proxy in front of the site",
		Long: `Runs the offline cache as an HTTP proxy. On start it precaches the asset
manifest from proxy.upstream, deletes stores left by older cache versions and
then serves navigations network-first and other assets cache-first. Requests
to the backend domain always go to the network. Absolute-form requests for
any other origin are refused, and the listener binds loopback by default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, log, err := opts.load(false)
			if err != nil {
				return err
			}
			if err := settings.Cache.Validate(); err != nil {
				return err
			}
			flush, err := startTelemetry(settings, log)
			if err != nil {
				return err
			}
			defer flush()

			cfg, err := offline.ConfigFromSettings(settings.Cache, settings.Proxy.Upstream)
			if err != nil {
				return err
			}
			storage, err := offline.NewStorage(settings.Cache)
			if err != nil {
				return err
			}
			defer func() {
				if err := storage.Close(); err != nil {
					log.Warn("close offline storage", logger.Error(err))
				}
			}()

			metrics, err := offline.NewMetrics(prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			worker, err := offline.NewWorker(cfg, storage, &http.Client{}, log, offline.WithMetrics(metrics))
			if err != nil {
				return err
			}

			return runProxy(cmd.Context(), worker, api.NewProxy(settings, worker, prometheus.DefaultGatherer, log), settings.Cache.RetryInterval())
		},
	}
}

// runProxy starts the worker lifecycle alongside the proxy listener. The
// listener is up before the worker activates; until then requests bypass
// the cache.
func runProxy(ctx context.Context, worker *offline.Worker, proxy *api.Proxy, retry time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Start(gctx, retry); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return proxy.Start(gctx)
	})
	return g.Wait()
}
