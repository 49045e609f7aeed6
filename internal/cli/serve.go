package cli

import (
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alexanderjulianmartinez/autodq/internal/alert"
	"github.com/alexanderjulianmartinez/autodq/internal/metrics"
	"github.com/alexanderjulianmartinez/autodq/internal/notify"
	"github.com/alexanderjulianmartinez/autodq/internal/refresh"
	"github.com/alexanderjulianmartinez/autodq/internal/server"
)

const refreshTick = time.Minute

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API",
		Long: `Start the HTTP API. Validation results are cached and refreshed according
to the refresh policy; new failures are sent to the configured Slack and
Kafka sinks after each refresh.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
	cmd.Flags().Int("port", 0, "HTTP port (default 8501)")
	return cmd
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	a := newApp(cmd)
	if err := a.connect(ctx); err != nil {
		return err
	}
	defer a.close()

	catalog, err := a.catalog()
	if err != nil {
		return err
	}
	store, err := a.tracker(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	manager, err := a.rulesManager(ctx)
	if err != nil {
		return err
	}
	if manager != nil {
		defer manager.Close()
	} else {
		a.log.Info().Msg("databricks.job_id not set; rule execution disabled")
	}

	policy := refresh.PolicyFromConfig(a.cfg.Refresh)
	cache := refresh.NewCache(a.reader.LoadCombined, policy, a.log.With().Str("component", "refresh").Logger())

	sinks := notify.FromConfig(a.cfg.Notify, a.log)
	defer sinks.Close()
	if len(sinks) > 0 {
		d := alert.NewDispatcher(sinks, catalog, a.log.With().Str("component", "alerts").Logger())
		cache.OnRefresh(d.Hook())
	}

	srv := server.New(server.Deps{
		Config:   a.cfg,
		Reader:   a.reader,
		Cache:    cache,
		Catalog:  catalog,
		Tracker:  store,
		Rules:    manager,
		Registry: metrics.NewRegistry(),
		Log:      a.log.With().Str("component", "server").Logger(),
	})

	// the background loop retries a failed first load
	if _, err := cache.Refresh(ctx); err != nil {
		a.log.Warn().Err(err).Msg("initial load failed")
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return cache.Run(egctx, refreshTick) })
	eg.Go(func() error { return srv.Serve(egctx) })
	return eg.Wait()
}
