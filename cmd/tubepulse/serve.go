package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tubepulse/tubepulse/pkg/server"
)

const sessionIdleTimeout = time.Hour

func newServeCmd(opts *rootOptions) *cobra.Command {
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			a.restoreCaches(ctx)

			deps := server.Deps{
				Analysis:         a.service,
				Sessions:         a.sessions,
				Categorizer:      a.categorizer,
				Calls:            a.tracker,
				Metrics:          a.metrics,
				MetricsHandler:   a.metrics.Handler(),
				Logger:           logger.Named("http"),
				APIKeyConfigured: a.client.HasAPIKey(),
				MaxComments:      cfg.YouTube.MaxComments,
				AllowedOrigins:   origins,
			}
			// Typed nils would defeat the handlers' nil checks.
			if a.videos != nil {
				deps.Videos = a.videos
			}
			if a.enforcer != nil {
				deps.Budget = a.enforcer
			}
			srv := server.New(cfg.Listen, deps)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.ListenAndServe(gctx) })
			if cfg.Cache.CleanupInterval > 0 {
				g.Go(func() error {
					a.service.RunJanitor(gctx, cfg.Cache.CleanupInterval)
					return nil
				})
			}
			g.Go(func() error {
				pruneSessions(gctx, a, sessionIdleTimeout)
				return nil
			})

			logger.Info("starting tubepulse",
				zap.String("version", version),
				zap.String("listen", cfg.Listen),
				zap.Bool("youtube", a.videos != nil),
				zap.Bool("budget", a.enforcer != nil),
			)
			err = g.Wait()

			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.persistCaches(saveCtx)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "allowed CORS origins (default all)")
	return cmd
}

// pruneSessions drops chat sessions idle for longer than idle until ctx is done.
func pruneSessions(ctx context.Context, a *app, idle time.Duration) {
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.sessions.Prune(idle); n > 0 {
				a.logger.Debug("pruned chat sessions", zap.Int("sessions", n))
			}
		}
	}
}
