package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/guias-cli/internal/monitoring"
	"github.com/sells-group/guias-cli/internal/pipeline"
	"github.com/sells-group/guias-cli/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the inbox and process guides as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "watch")
		if err != nil {
			return err
		}
		defer env.Close()

		q := pipeline.NewQueue(env.Pipeline, cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, env.Metrics)
		w := watch.New(
			cfg.Paths.Inbox,
			time.Duration(cfg.Watch.SettleMs)*time.Millisecond,
			time.Duration(cfg.Watch.RescanIntervalSecs)*time.Second,
			q,
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return q.Run(gctx) })
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				return eris.Wrap(err, "watch inbox")
			}
			return nil
		})
		g.Go(func() error {
			collector := monitoring.NewCollector(cfg.Paths.Inbox, cfg.Paths.Conflicts)
			monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring).Run(gctx)
			return nil
		})
		if cfg.Metrics.Addr != "" {
			h := newOpsRouter(env.Registry, func() healthStatus {
				return healthStatus{Status: "ok", Entities: env.Entities.Len(), Pending: q.Pending()}
			})
			g.Go(func() error {
				if err := serveOps(gctx, cfg.Metrics.Addr, h); err != nil {
					return eris.Wrap(err, "ops server")
				}
				return nil
			})
		}

		err = g.Wait()
		zap.L().Info("watch stopped")
		if err != nil && !eris.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
