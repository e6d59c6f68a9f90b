package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tubepulse/tubepulse/pkg/analyzer"
	"github.com/tubepulse/tubepulse/pkg/assistant"
	"github.com/tubepulse/tubepulse/pkg/budget"
	"github.com/tubepulse/tubepulse/pkg/cache"
	snapshot "github.com/tubepulse/tubepulse/pkg/cache/sqlite"
	"github.com/tubepulse/tubepulse/pkg/config"
	"github.com/tubepulse/tubepulse/pkg/llm"
	"github.com/tubepulse/tubepulse/pkg/logging"
	"github.com/tubepulse/tubepulse/pkg/metrics"
	"github.com/tubepulse/tubepulse/pkg/retry"
	"github.com/tubepulse/tubepulse/pkg/router"
	"github.com/tubepulse/tubepulse/pkg/tracker"
	"github.com/tubepulse/tubepulse/pkg/youtube"
)

// app is the fully wired analysis stack shared by serve, analyze, mcp and chat.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	tracker  *tracker.SQLiteTracker
	store    *snapshot.Store
	client   *llm.Client
	enforcer *budget.Enforcer

	service     *analyzer.Service
	sessions    *assistant.Sessions
	categorizer *assistant.Categorizer
	videos      *youtube.Client
}

// loadConfig reads the config and builds the logger for a command.
func loadConfig(opts *rootOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	var err error
	a.tracker, err = tracker.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init tracker: %w", err)
	}
	if cfg.Cache.Persist {
		a.store, err = snapshot.New(cfg.DBPath)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init cache store: %w", err)
		}
	}

	a.client = llm.NewClient(llm.Options{
		BaseURL:           cfg.Gemini.BaseURL,
		APIKey:            cfg.Gemini.APIKey,
		RequestsPerSecond: cfg.Gemini.RequestsPerSecond,
		Burst:             cfg.Gemini.Burst,
		Breaker: llm.BreakerSettings{
			Enabled:      cfg.Breaker.Enabled,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
			Interval:     cfg.Breaker.Interval,
			OpenTimeout:  cfg.Breaker.OpenTimeout,
		},
		Resolver:     router.New(cfg),
		DefaultModel: cfg.Gemini.Model,
		Logger:       logger.Named("llm"),
		Observer:     a.metrics,
	})
	if !a.client.HasAPIKey() {
		logger.Warn("no Gemini API key configured; remote analysis will fail")
	}

	retrier := retry.New(cfg.Retry,
		retry.WithLogger(logger.Named("retry")),
		retry.WithObserver(a.metrics),
	)

	cacheOpts := []cache.Option{cache.WithLogger(logger.Named("cache")), cache.WithObserver(a.metrics)}
	sentiment := analyzer.NewSentimentCache(cfg.Cache.Sentiment.MaxSize, cfg.Cache.Sentiment.TTL, cacheOpts...)
	batch := analyzer.NewBatchCache(cfg.Cache.Batch.MaxSize, cfg.Cache.Batch.TTL, cacheOpts...)

	svcOpts := []analyzer.Option{
		analyzer.WithRecorder(a.tracker),
		analyzer.WithInsights(assistant.NewInsightWriter(a.client.Model(llm.Insights(cfg.Timeouts.Insights)), retrier)),
		analyzer.WithBatchObserver(a.metrics),
		analyzer.WithLogger(logger.Named("analyzer")),
	}
	if cfg.Budget.Enabled {
		a.enforcer = budget.New(cfg.Budget.Policies, a.tracker)
		svcOpts = append(svcOpts, analyzer.WithBudget(a.enforcer))
	}
	a.service = analyzer.New(
		a.client.Model(llm.Sentiment(cfg.Timeouts.Sentiment)),
		sentiment, batch, retrier,
		analyzer.Config{
			MinLength:   cfg.Validation.MinCommentLength,
			MaxLength:   cfg.Validation.MaxCommentLength,
			Concurrency: cfg.Analysis.Concurrency,
			Model:       cfg.Gemini.Model,
		},
		svcOpts...,
	)

	chatModel := a.client.Model(llm.Chat(cfg.Timeouts.Chat))
	chatLogger := logger.Named("chat")
	a.sessions = assistant.NewSessions(func() *assistant.Chat {
		return assistant.NewChat(chatModel, retrier,
			assistant.WithMaxLength(cfg.Validation.MaxChatLength),
			assistant.WithChatLogger(chatLogger),
		)
	})
	a.categorizer = assistant.NewCategorizer(
		a.client.Model(llm.Categorizer(cfg.Timeouts.Categorize)),
		cfg.Validation.MinCategorizeLength,
		logger.Named("categorize"),
	)

	if cfg.YouTube.APIKey != "" {
		var ytOpts []youtube.Option
		if cfg.YouTube.Endpoint != "" {
			ytOpts = append(ytOpts, youtube.WithEndpoint(cfg.YouTube.Endpoint))
		}
		ytOpts = append(ytOpts, youtube.WithLogger(logger.Named("youtube")))
		a.videos, err = youtube.NewClient(ctx, cfg.YouTube.APIKey, ytOpts...)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init youtube client: %w", err)
		}
	}
	return a, nil
}

// restoreCaches loads persisted cache snapshots when persistence is enabled.
func (a *app) restoreCaches(ctx context.Context) {
	if a.store == nil {
		return
	}
	n, err := a.service.LoadCaches(ctx, a.store)
	if err != nil {
		a.logger.Warn("restore caches failed", zap.Error(err))
		return
	}
	a.logger.Info("caches restored", zap.Int("entries", n))
}

// persistCaches snapshots both caches when persistence is enabled.
func (a *app) persistCaches(ctx context.Context) {
	if a.store == nil {
		return
	}
	if err := a.service.SaveCaches(ctx, a.store); err != nil {
		a.logger.Error("persist caches failed", zap.Error(err))
		return
	}
	a.logger.Info("caches persisted")
}

func (a *app) close() {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.tracker != nil {
		errs = append(errs, a.tracker.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
