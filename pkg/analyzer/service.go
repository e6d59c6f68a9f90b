// Package analyzer analyzes YouTube comments with a remote model, caching single
// results and whole batches, and aggregates batch statistics.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tubepulse/tubepulse/pkg/budget"
	"github.com/tubepulse/tubepulse/pkg/cache"
	"github.com/tubepulse/tubepulse/pkg/faults"
	"github.com/tubepulse/tubepulse/pkg/llm"
	"github.com/tubepulse/tubepulse/pkg/models"
	"github.com/tubepulse/tubepulse/pkg/retry"
)

// Cache names.
const (
	SentimentCacheName = "sentiment"
	BatchCacheName     = "batch"
)

const rawResponseLimit = 200

// Analyzer is the remote sentiment model.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*llm.Response, error)
}

// InsightGenerator writes recommendations from aggregated statistics.
type InsightGenerator interface {
	Insights(ctx context.Context, agg models.Aggregated) (string, error)
}

// BudgetChecker rejects remote calls once a call budget is used up.
type BudgetChecker interface {
	Check(ctx context.Context) error
}

// CallRecorder stores one record per remote call sequence.
type CallRecorder interface {
	Record(ctx context.Context, rec models.CallRecord) error
}

// BatchObserver is notified of every analyzed batch.
type BatchObserver interface {
	BatchAnalyzed(comments int)
}

// SentimentCache holds per-comment outcomes keyed by comment text.
type SentimentCache = cache.Keyed[string, models.Outcome]

// BatchCache holds batch results keyed by the set of comment texts.
type BatchCache = cache.Keyed[[]string, models.BatchResult]

// NewSentimentCache creates the per-comment cache.
func NewSentimentCache(maxSize int, ttl time.Duration, opts ...cache.Option) *SentimentCache {
	return cache.New[string, models.Outcome](SentimentCacheName, cache.TextKey, maxSize, ttl, opts...)
}

// NewBatchCache creates the batch cache.
func NewBatchCache(maxSize int, ttl time.Duration, opts ...cache.Option) *BatchCache {
	return cache.New[[]string, models.BatchResult](BatchCacheName, cache.BatchKey, maxSize, ttl, opts...)
}

// Config bounds input and parallelism.
type Config struct {
	MinLength   int
	MaxLength   int
	Concurrency int
	// Model labels call records when the response does not name a model.
	Model string
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{MinLength: 1, MaxLength: 10000, Concurrency: 1}
}

// Service orchestrates cache lookups, budget checks, retried remote calls, response
// parsing and aggregation. It never returns Go errors: every failure becomes an
// ErrorResult.
type Service struct {
	analyzer  Analyzer
	sentiment *SentimentCache
	batch     *BatchCache
	retrier   *retry.Retrier
	cfg       Config

	budget   BudgetChecker
	recorder CallRecorder
	insights InsightGenerator
	observer BatchObserver
	logger   *zap.Logger

	flights singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithBudget rejects remote calls once the budget is used up.
func WithBudget(b BudgetChecker) Option {
	return func(s *Service) { s.budget = b }
}

// WithRecorder records remote calls.
func WithRecorder(r CallRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithInsights enables insights in full analyses.
func WithInsights(g InsightGenerator) Option {
	return func(s *Service) { s.insights = g }
}

// WithBatchObserver registers an observer for analyzed batches.
func WithBatchObserver(o BatchObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(a Analyzer, sentiment *SentimentCache, batch *BatchCache, r *retry.Retrier, cfg Config, opts ...Option) *Service {
	s := &Service{
		analyzer:  a,
		sentiment: sentiment,
		batch:     batch,
		retrier:   r,
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Concurrency < 1 {
		s.cfg.Concurrency = 1
	}
	return s
}

// HasInsights reports whether an insight generator is configured.
func (s *Service) HasInsights() bool {
	return s.insights != nil
}

// validate checks the trimmed rune length of text.
func (s *Service) validate(text string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n < s.cfg.MinLength {
		return faults.Invalid("Input too short. Minimum %d characters required.", s.cfg.MinLength)
	}
	if n > s.cfg.MaxLength {
		return faults.Invalid("Input too long. Maximum %d characters allowed.", s.cfg.MaxLength)
	}
	return nil
}

// AnalyzeComment analyzes one comment.
func (s *Service) AnalyzeComment(ctx context.Context, text string) models.Outcome {
	if err := s.validate(text); err != nil {
		return models.Errored(faults.Classify(err))
	}

	if cached, ok := s.sentiment.Get(text); ok {
		return cached
	}

	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	// The flight is shared by every caller of the same text, so it must not
	// inherit any one caller's cancellation. Each caller stops waiting on its
	// own context instead.
	fp := cache.TextKey(text)
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(fp, func() (interface{}, error) {
		if cached, ok := s.sentiment.Peek(text); ok {
			return cached, nil
		}
		out := s.analyzeRemote(flightCtx, fp, text)
		s.sentiment.Put(text, out)
		return out, nil
	})
	select {
	case res := <-ch:
		return res.Val.(models.Outcome)
	case <-ctx.Done():
		return cancelled(ctx.Err())
	}
}

func cancelled(err error) models.Outcome {
	return models.Errored(faults.Classify(faults.New(faults.KindAnalysisFailed, "analysis cancelled", err)))
}

// analyzeRemote calls the remote model under the budget and retry policies and
// parses its response.
func (s *Service) analyzeRemote(ctx context.Context, fp, text string) models.Outcome {
	if s.budget != nil {
		if err := s.budget.Check(ctx); err != nil {
			if errors.Is(err, budget.ErrBudgetExceeded) {
				s.logger.Warn("call budget exhausted", zap.Error(err))
				return models.Errored(faults.Classify(faults.New(faults.KindQuotaExceeded, "call budget exhausted", err)))
			}
			s.logger.Error("budget check failed", zap.Error(err))
		}
	}

	var (
		resp     *llm.Response
		attempts int
	)
	start := time.Now()
	err := s.retrier.Do(ctx, "analyze_comment", func(ctx context.Context) error {
		attempts++
		var callErr error
		resp, callErr = s.analyzer.Analyze(ctx, text)
		return callErr
	})
	s.record(ctx, fp, resp, attempts, time.Since(start), err)

	if err != nil {
		return models.Errored(faults.Classify(err))
	}

	result, perr := ParseAnalysis(resp.Text)
	if perr != nil {
		s.logger.Error("unparseable model response",
			zap.String("fingerprint", fp[:12]),
			zap.String("response", truncateRunes(resp.Text, 100)),
			zap.Error(perr),
		)
		er := faults.Classify(faults.New(faults.KindAnalysisFailed, "parse model response", perr))
		er.RawResponse = truncateRunes(resp.Text, rawResponseLimit)
		return models.Errored(er)
	}

	s.logger.Debug("comment analyzed",
		zap.String("fingerprint", fp[:12]),
		zap.Float64("sentiment_score", result.SentimentScore),
		zap.Int("controversy_level", result.ControversyLevel),
		zap.Duration("duration", time.Since(start)),
	)
	return models.Succeeded(result)
}

func (s *Service) record(ctx context.Context, fp string, resp *llm.Response, attempts int, d time.Duration, err error) {
	if s.recorder == nil {
		return
	}
	rec := models.CallRecord{
		Fingerprint: fp,
		Model:       s.cfg.Model,
		Outcome:     models.CallSuccess,
		Attempts:    attempts,
		LatencyMs:   d.Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}
	if resp != nil && resp.Model != "" {
		rec.Model = resp.Model
	}
	if err != nil {
		rec.Outcome = string(faults.KindOf(err))
	}
	// The caller's context may already be done; the record still belongs in the log.
	if rerr := s.recorder.Record(context.WithoutCancel(ctx), rec); rerr != nil {
		s.logger.Error("record call failed", zap.Error(rerr))
	}
}

// AnalyzeComments analyzes each comment, returning outcomes in input order.
func (s *Service) AnalyzeComments(ctx context.Context, texts []string) []models.Outcome {
	out := make([]models.Outcome, len(texts))
	if s.cfg.Concurrency <= 1 {
		for i, t := range texts {
			out[i] = s.AnalyzeComment(ctx, t)
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, t := range texts {
		g.Go(func() error {
			out[i] = s.AnalyzeComment(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// AnalyzeBatchComments analyzes a batch and aggregates the results.
func (s *Service) AnalyzeBatchComments(ctx context.Context, texts []string) models.BatchResult {
	if len(texts) == 0 {
		er := faults.Classify(faults.Invalid("empty comments list"))
		return models.BatchResult{Error: &er}
	}

	if cached, ok := s.batch.Get(texts); ok {
		s.logger.Info("batch cache hit", zap.Int("comments", len(texts)))
		return cached
	}

	start := time.Now()
	agg := Aggregate(s.AnalyzeComments(ctx, texts))
	result := models.BatchResult{Aggregate: &agg}

	if ctx.Err() == nil {
		s.batch.Put(texts, result)
	}
	if s.observer != nil {
		s.observer.BatchAnalyzed(len(texts))
	}

	s.logger.Info("batch analyzed",
		zap.Int("comments", len(texts)),
		zap.Int("failed", agg.FailedCount()),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Float64("avg_sentiment", agg.Aggregated.AvgSentiment),
	)
	return result
}

// FullAnalysis analyzes a batch and, if requested and available, adds insights.
func (s *Service) FullAnalysis(ctx context.Context, texts []string, includeInsights bool) models.Report {
	br := s.AnalyzeBatchComments(ctx, texts)
	if br.Failed() {
		return models.Report{Status: "error", Error: br.Error}
	}

	agg := br.Aggregate
	report := models.Report{
		Status:             "success",
		CommentCount:       agg.TotalComments,
		SentimentAnalysis:  agg.Aggregated,
		IndividualAnalyses: agg.Analyses,
	}

	if includeInsights && s.insights != nil {
		insights, err := s.insights.Insights(ctx, agg.Aggregated)
		if err != nil {
			s.logger.Warn("insights failed", zap.Error(err))
			insights = fmt.Sprintf("Error generating insights: %s", faults.Classify(err).Message)
		}
		report.Insights = insights
	}
	return report
}

// CacheStats reports both caches.
func (s *Service) CacheStats() models.CacheReport {
	return models.CacheReport{
		SentimentCache: s.sentiment.Stats(),
		BatchCache:     s.batch.Stats(),
	}
}

// ClearCaches empties both caches. Counters are preserved.
func (s *Service) ClearCaches() {
	s.sentiment.Clear()
	s.batch.Clear()
	s.logger.Info("all caches cleared")
}

// CleanupExpired removes expired entries from both caches.
func (s *Service) CleanupExpired() int {
	return s.sentiment.CleanupExpired() + s.batch.CleanupExpired()
}

// RunJanitor removes expired entries from both caches every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	var g errgroup.Group
	g.Go(func() error { s.sentiment.RunJanitor(ctx, interval); return nil })
	g.Go(func() error { s.batch.RunJanitor(ctx, interval); return nil })
	_ = g.Wait()
}
