package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tubepulse/tubepulse/pkg/mcp"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the analysis tools over MCP on stdio",
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
			defer a.persistCaches(context.WithoutCancel(ctx))

			deps := mcp.Deps{
				Analysis:    a.service,
				Calls:       a.tracker,
				Sessions:    a.sessions,
				MaxComments: cfg.YouTube.MaxComments,
				Logger:      logger.Named("mcp"),
			}
			if a.videos != nil {
				deps.Videos = a.videos
			}
			if a.enforcer != nil {
				deps.Budget = a.enforcer
			}
			return mcp.New(deps, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
