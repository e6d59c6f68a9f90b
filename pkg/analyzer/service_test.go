package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubepulse/tubepulse/pkg/budget"
	"github.com/tubepulse/tubepulse/pkg/cache"
	"github.com/tubepulse/tubepulse/pkg/config"
	"github.com/tubepulse/tubepulse/pkg/faults"
	"github.com/tubepulse/tubepulse/pkg/llm"
	"github.com/tubepulse/tubepulse/pkg/models"
	"github.com/tubepulse/tubepulse/pkg/retry"
)

// fakeAnalyzer answers by normalized text. Unknown texts get a neutral analysis.
type fakeAnalyzer struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     map[string]int
	total     atomic.Int64
	delay     time.Duration
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func analysisJSON(score float64, level int, themes ...string) string {
	quoted := make([]string, len(themes))
	for i, th := range themes {
		quoted[i] = fmt.Sprintf("%q", th)
	}
	return fmt.Sprintf(`{"sentiment_score": %v, "top_3_themes": [%s], "controversy_level": %d}`,
		score, strings.Join(quoted, ", "), level)
}

func (f *fakeAnalyzer) respond(text, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cache.Normalize(text)] = body
}

func (f *fakeAnalyzer) fail(text string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[cache.Normalize(text)] = err
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text string) (*llm.Response, error) {
	f.total.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	key := cache.Normalize(text)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	body, ok := f.responses[key]
	if !ok {
		body = analysisJSON(0, 1, "general")
	}
	return &llm.Response{Text: body, Model: "fake-model"}, nil
}

func (f *fakeAnalyzer) callsFor(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[cache.Normalize(text)]
}

type fakeBudget struct{ err error }

func (b fakeBudget) Check(context.Context) error { return b.err }

type recordingRecorder struct {
	mu      sync.Mutex
	records []models.CallRecord
}

func (r *recordingRecorder) Record(_ context.Context, rec models.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type fakeInsights struct {
	text string
	err  error
	got  models.Aggregated
}

func (f *fakeInsights) Insights(_ context.Context, agg models.Aggregated) (string, error) {
	f.got = agg
	return f.text, f.err
}

type countingBatches struct{ n atomic.Int64 }

func (c *countingBatches) BatchAnalyzed(comments int) { c.n.Add(int64(comments)) }

func noSleep(context.Context, time.Duration) error { return nil }

func newTestService(t *testing.T, a Analyzer, cfg Config, opts ...Option) *Service {
	t.Helper()
	r := retry.New(retry.Config{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      time.Second,
	}, retry.WithSleeper(noSleep))
	return New(a, NewSentimentCache(100, time.Hour), NewBatchCache(10, 2*time.Hour), r, cfg, opts...)
}

func TestAnalyzeCommentCachesNormalizedText(t *testing.T) {
	fa := newFakeAnalyzer()
	fa.respond("great video!", analysisJSON(0.9, 2, "praise"))
	svc := newTestService(t, fa, DefaultConfig())
	ctx := context.Background()

	first := svc.AnalyzeComment(ctx, "Great video!")
	require.Equal(t, models.OutcomeSuccess, first.Kind())
	assert.InDelta(t, 0.9, first.Result.SentimentScore, 1e-9)

	second := svc.AnalyzeComment(ctx, "  GREAT VIDEO!  ")
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), fa.total.Load())

	stats := svc.CacheStats().SentimentCache
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestAnalyzeCommentValidation(t *testing.T) {
	fa := newFakeAnalyzer()
	svc := newTestService(t, fa, Config{MinLength: 1, MaxLength: 10})
	ctx := context.Background()

	empty := svc.AnalyzeComment(ctx, "   ")
	require.True(t, empty.Failed())
	assert.Equal(t, models.ErrorInvalidInput, empty.Error.ErrorType)
	assert.Equal(t, "Input too short. Minimum 1 characters required.", empty.Error.Message)

	long := svc.AnalyzeComment(ctx, strings.Repeat("é", 11))
	require.True(t, long.Failed())
	assert.Equal(t, "Input too long. Maximum 10 characters allowed.", long.Error.Message)

	ok := svc.AnalyzeComment(ctx, strings.Repeat("é", 10))
	assert.False(t, ok.Failed(), "length is measured in runes")

	assert.Equal(t, int64(1), fa.total.Load())
}

func TestFailuresAreNotCached(t *testing.T) {
	fa := newFakeAnalyzer()
	fa.fail("flaky", fmt.Errorf("generate: %w", faults.ErrUnauthenticated))
	svc := newTestService(t, fa, DefaultConfig())
	ctx := context.Background()

	out := svc.AnalyzeComment(ctx, "flaky")
	require.True(t, out.Failed())
	assert.Equal(t, models.ErrorAuthenticationFailed, out.Error.ErrorType)

	svc.AnalyzeComment(ctx, "flaky")
	assert.Equal(t, 2, fa.callsFor("flaky"))
	assert.Equal(t, 0, svc.CacheStats().SentimentCache.Size)
}

func TestRateLimitExhaustionIsQuotaExceeded(t *testing.T) {
	fa := newFakeAnalyzer()
	fa.fail("busy", faults.ErrRateLimited)
	rec := &recordingRecorder{}
	svc := newTestService(t, fa, Config{MinLength: 1, MaxLength: 100, Model: "cfg-model"}, WithRecorder(rec))

	out := svc.AnalyzeComment(context.Background(), "busy")
	require.True(t, out.Failed())
	assert.Equal(t, models.ErrorQuotaExceeded, out.Error.ErrorType)
	assert.Equal(t, 3, fa.callsFor("busy"), "initial call plus two retries")

	require.Len(t, rec.records, 1)
	assert.Equal(t, string(models.ErrorQuotaExceeded), rec.records[0].Outcome)
	assert.Equal(t, 3, rec.records[0].Attempts)
	assert.Equal(t, "cfg-model", rec.records[0].Model)
}

// With the default breaker and retry settings a persistently rate-limited
// upstream exhausts retries for every comment instead of tripping the breaker.
func TestPersistentRateLimitIsQuotaExceededForEveryComment(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := config.Default()
	client := llm.NewClient(llm.Options{
		BaseURL:      srv.URL,
		DefaultModel: "m",
		Breaker: llm.BreakerSettings{
			Enabled:      cfg.Breaker.Enabled,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
			Interval:     cfg.Breaker.Interval,
			OpenTimeout:  cfg.Breaker.OpenTimeout,
		},
	})
	rec := &recordingRecorder{}
	svc := New(client.Model(llm.Sentiment(time.Second)),
		NewSentimentCache(100, time.Hour), NewBatchCache(10, time.Hour),
		retry.New(cfg.Retry, retry.WithSleeper(noSleep)),
		DefaultConfig(), WithRecorder(rec))

	outs := svc.AnalyzeComments(context.Background(), []string{"one", "two", "three"})
	require.Len(t, outs, 3)
	for i, o := range outs {
		require.True(t, o.Failed(), "comment %d", i)
		assert.Equal(t, models.ErrorQuotaExceeded, o.Error.ErrorType, "comment %d", i)
	}

	attempts := cfg.Retry.MaxRetries + 1
	assert.Equal(t, int64(3*attempts), hits.Load())
	require.Len(t, rec.records, 3)
	for _, r := range rec.records {
		assert.Equal(t, attempts, r.Attempts)
	}
	assert.Equal(t, "closed", client.BreakerState("m"))
}

func TestParseFailureCarriesRawResponse(t *testing.T) {
	fa := newFakeAnalyzer()
	raw := "I think this comment is lovely. " + strings.Repeat("x", 300)
	fa.respond("prose", raw)
	svc := newTestService(t, fa, DefaultConfig())

	out := svc.AnalyzeComment(context.Background(), "prose")
	require.True(t, out.Failed())
	assert.Equal(t, models.ErrorAnalysisFailed, out.Error.ErrorType)
	assert.Equal(t, raw[:200], out.Error.RawResponse)
	assert.Equal(t, 0, svc.CacheStats().SentimentCache.Size)
}

func TestBudgetExceededSkipsRemoteCall(t *testing.T) {
	fa := newFakeAnalyzer()
	exceeded := fmt.Errorf("daily limit of 10 calls reached: %w", budget.ErrBudgetExceeded)
	svc := newTestService(t, fa, DefaultConfig(), WithBudget(fakeBudget{err: exceeded}))

	out := svc.AnalyzeComment(context.Background(), "hello")
	require.True(t, out.Failed())
	assert.Equal(t, models.ErrorQuotaExceeded, out.Error.ErrorType)
	assert.Equal(t, int64(0), fa.total.Load())
}

func TestBudgetCheckErrorFailsOpen(t *testing.T) {
	fa := newFakeAnalyzer()
	svc := newTestService(t, fa, DefaultConfig(), WithBudget(fakeBudget{err: errors.New("db locked")}))

	out := svc.AnalyzeComment(context.Background(), "hello")
	assert.False(t, out.Failed())
	assert.Equal(t, int64(1), fa.total.Load())
}

func TestRecorderSeesSuccessfulCalls(t *testing.T) {
	fa := newFakeAnalyzer()
	rec := &recordingRecorder{}
	svc := newTestService(t, fa, DefaultConfig(), WithRecorder(rec))
	ctx := context.Background()

	svc.AnalyzeComment(ctx, "one")
	svc.AnalyzeComment(ctx, "one")

	require.Len(t, rec.records, 1, "cache hits are not recorded")
	r := rec.records[0]
	assert.Equal(t, models.CallSuccess, r.Outcome)
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, "fake-model", r.Model)
	assert.Equal(t, cache.TextKey("one"), r.Fingerprint)
}

func TestBatchDuplicateCommentsCostOneCall(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			fa := newFakeAnalyzer()
			fa.delay = 5 * time.Millisecond
			fa.respond("great video!", analysisJSON(0.8, 3, "praise", "editing"))
			svc := newTestService(t, fa, Config{MinLength: 1, MaxLength: 100, Concurrency: concurrency})

			res := svc.AnalyzeBatchComments(context.Background(), []string{"Great video!", "Great video!  "})
			require.False(t, res.Failed())

			agg := res.Aggregate
			assert.Equal(t, int64(1), fa.total.Load())
			assert.Equal(t, 2, agg.TotalComments)
			require.Len(t, agg.Analyses, 2)
			assert.Equal(t, agg.Analyses[0], agg.Analyses[1])
			assert.InDelta(t, 0.8, agg.Aggregated.AvgSentiment, 1e-12)
			assert.Equal(t, map[string]int{"praise": 2, "editing": 2}, agg.Aggregated.ThemeFrequency)
		})
	}
}

func TestBatchEmptyInput(t *testing.T) {
	svc := newTestService(t, newFakeAnalyzer(), DefaultConfig())

	res := svc.AnalyzeBatchComments(context.Background(), nil)
	require.True(t, res.Failed())
	assert.Equal(t, models.ErrorInvalidInput, res.Error.ErrorType)
	assert.Contains(t, res.Error.Message, "empty")

	stats := svc.CacheStats().BatchCache
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, int64(0), stats.Hits+stats.Misses, "no cache interaction")
}

func TestBatchInvalidItemIsContained(t *testing.T) {
	fa := newFakeAnalyzer()
	fa.respond("nice", analysisJSON(0.5, 2, "praise"))
	fa.respond("awful", analysisJSON(-0.5, 6, "criticism"))
	svc := newTestService(t, fa, DefaultConfig())

	res := svc.AnalyzeBatchComments(context.Background(), []string{"nice", "   ", "awful"})
	require.False(t, res.Failed())

	agg := res.Aggregate
	assert.Equal(t, 3, agg.TotalComments)
	assert.Len(t, agg.Analyses, 2)
	assert.Equal(t, 1, agg.FailedCount())
	assert.InDelta(t, 0.0, agg.Aggregated.AvgSentiment, 1e-12)
	assert.InDelta(t, 4.0, agg.Aggregated.AvgControversy, 1e-12)
	assert.InDelta(t, 0.5, agg.Analyses[0].SentimentScore, 1e-12, "input order is kept")
}

// An all-failure batch is a zero-valued aggregate, not an error, and it is cached.
func TestBatchAllFailuresIsCachedZeroAggregate(t *testing.T) {
	fa := newFakeAnalyzer()
	fa.fail("a", errors.New("boom"))
	fa.fail("b", errors.New("boom"))
	svc := newTestService(t, fa, DefaultConfig())
	ctx := context.Background()

	res := svc.AnalyzeBatchComments(ctx, []string{"a", "b"})
	require.False(t, res.Failed())
	agg := res.Aggregate
	assert.Equal(t, 2, agg.TotalComments)
	assert.Empty(t, agg.Analyses)
	assert.Zero(t, agg.Aggregated.AvgSentiment)
	assert.Zero(t, agg.Aggregated.AvgControversy)
	assert.Empty(t, agg.Aggregated.ThemeFrequency)

	assert.Equal(t, 1, svc.CacheStats().BatchCache.Size)
	svc.AnalyzeBatchComments(ctx, []string{"b", "a"})
	assert.Equal(t, int64(2), fa.total.Load(), "second batch served from the batch cache")
}

func TestBatchOrderIndependence(t *testing.T) {
	fa := newFakeAnalyzer()
	fa.respond("a", analysisJSON(0.1, 2, "x", "y"))
	fa.respond("b", analysisJSON(0.7, 5, "y"))
	fa.respond("c", analysisJSON(-0.3, 9, "z", "x", "w"))
	ctx := context.Background()

	svc := newTestService(t, fa, DefaultConfig())
	first := svc.AnalyzeBatchComments(ctx, []string{"a", "b", "c"})
	second := svc.AnalyzeBatchComments(ctx, []string{"c", "a", "b"})

	assert.Equal(t, int64(1), svc.CacheStats().BatchCache.Hits)
	assert.Equal(t, first, second)

	fresh := newTestService(t, fa, DefaultConfig())
	permuted := fresh.AnalyzeBatchComments(ctx, []string{"c", "a", "b"})
	assert.Equal(t, first.Aggregate.Aggregated, permuted.Aggregate.Aggregated)
}

func TestBatchNotCachedWhenCancelled(t *testing.T) {
	fa := newFakeAnalyzer()
	svc := newTestService(t, fa, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := svc.AnalyzeBatchComments(ctx, []string{"a", "b"})
	require.False(t, res.Failed())
	assert.Equal(t, 0, svc.CacheStats().BatchCache.Size)
}

// gatedAnalyzer blocks calls for one text until release is closed.
type gatedAnalyzer struct {
	*fakeAnalyzer
	text    string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedAnalyzer) Analyze(ctx context.Context, text string) (*llm.Response, error) {
	if cache.Normalize(text) == cache.Normalize(g.text) {
		g.once.Do(func() { close(g.started) })
		<-g.release
	}
	return g.fakeAnalyzer.Analyze(ctx, text)
}

// A caller that gives up must not fail other batches waiting on the same
// in-flight comment, nor leave a partial aggregate in the batch cache.
func TestCancelledCallerDoesNotFailSharedFlight(t *testing.T) {
	ga := &gatedAnalyzer{
		fakeAnalyzer: newFakeAnalyzer(),
		text:         "shared",
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	ga.respond("shared", analysisJSON(0.6, 3, "praise"))
	ga.respond("other", analysisJSON(-0.2, 5, "criticism"))
	svc := newTestService(t, ga, DefaultConfig())

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	doneA := make(chan models.BatchResult, 1)
	go func() { doneA <- svc.AnalyzeBatchComments(ctxA, []string{"shared"}) }()
	<-ga.started

	doneB := make(chan models.BatchResult, 1)
	go func() { doneB <- svc.AnalyzeBatchComments(context.Background(), []string{"shared", "other"}) }()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case resA := <-doneA:
		require.False(t, resA.Failed())
		assert.Empty(t, resA.Aggregate.Analyses)
		assert.Equal(t, 1, resA.Aggregate.FailedCount())
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller kept waiting on the shared flight")
	}
	close(ga.release)

	var resB models.BatchResult
	select {
	case resB = <-doneB:
	case <-time.After(5 * time.Second):
		t.Fatal("batch B did not finish")
	}
	require.False(t, resB.Failed())
	assert.Len(t, resB.Aggregate.Analyses, 2)
	assert.Zero(t, resB.Aggregate.FailedCount())
	assert.Equal(t, 1, ga.callsFor("shared"), "one remote call for the shared comment")

	assert.Equal(t, 1, svc.CacheStats().BatchCache.Size, "only the live batch is cached")
	again := svc.AnalyzeBatchComments(context.Background(), []string{"other", "shared"})
	require.False(t, again.Failed())
	assert.Len(t, again.Aggregate.Analyses, 2)
	assert.Equal(t, int64(2), ga.total.Load(), "served from cache")
}

func TestAnalyzeCommentCancelledBeforeStart(t *testing.T) {
	fa := newFakeAnalyzer()
	svc := newTestService(t, fa, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := svc.AnalyzeComment(ctx, "hello")
	require.True(t, out.Failed())
	assert.Equal(t, models.ErrorAnalysisFailed, out.Error.ErrorType)
	assert.Zero(t, fa.total.Load())
	assert.Equal(t, 0, svc.CacheStats().SentimentCache.Size)
}

func TestBatchObserver(t *testing.T) {
	obs := &countingBatches{}
	svc := newTestService(t, newFakeAnalyzer(), DefaultConfig(), WithBatchObserver(obs))

	svc.AnalyzeBatchComments(context.Background(), []string{"a", "b", "c"})
	assert.Equal(t, int64(3), obs.n.Load())
}

func TestAnalyzeCommentsParallelKeepsOrder(t *testing.T) {
	fa := newFakeAnalyzer()
	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("comment %d", i)
		fa.respond(texts[i], analysisJSON(float64(i)/100, 1+i%10, fmt.Sprintf("t%d", i)))
	}
	svc := newTestService(t, fa, Config{MinLength: 1, MaxLength: 100, Concurrency: 8})

	outs := svc.AnalyzeComments(context.Background(), texts)
	require.Len(t, outs, len(texts))
	for i, o := range outs {
		require.False(t, o.Failed())
		assert.Equal(t, []string{fmt.Sprintf("t%d", i)}, o.Result.TopThemes)
	}
	assert.Empty(t, svc.AnalyzeComments(context.Background(), nil))
}

func TestFullAnalysis(t *testing.T) {
	fa := newFakeAnalyzer()
	fa.respond("love it", analysisJSON(0.9, 2, "praise"))
	gen := &fakeInsights{text: "Keep doing tutorials."}
	svc := newTestService(t, fa, DefaultConfig(), WithInsights(gen))
	ctx := context.Background()

	report := svc.FullAnalysis(ctx, []string{"love it"}, true)
	assert.Equal(t, "success", report.Status)
	assert.Equal(t, 1, report.CommentCount)
	assert.Equal(t, "Keep doing tutorials.", report.Insights)
	assert.InDelta(t, 0.9, gen.got.AvgSentiment, 1e-12)

	withoutInsights := svc.FullAnalysis(ctx, []string{"love it"}, false)
	assert.Empty(t, withoutInsights.Insights)

	gen.err = faults.New(faults.KindQuotaExceeded, "API quota exceeded", faults.ErrRateLimited)
	failed := svc.FullAnalysis(ctx, []string{"love it"}, true)
	assert.Equal(t, "success", failed.Status)
	assert.Equal(t, "Error generating insights: API quota exceeded. Please try again in a moment.", failed.Insights)

	empty := svc.FullAnalysis(ctx, nil, true)
	assert.Equal(t, "error", empty.Status)
	require.NotNil(t, empty.Error)
	assert.Equal(t, models.ErrorInvalidInput, empty.Error.ErrorType)
}

func TestClearAndCleanup(t *testing.T) {
	fa := newFakeAnalyzer()
	svc := newTestService(t, fa, DefaultConfig())
	ctx := context.Background()

	svc.AnalyzeBatchComments(ctx, []string{"a", "b"})
	report := svc.CacheStats()
	assert.Equal(t, 2, report.SentimentCache.Size)
	assert.Equal(t, 1, report.BatchCache.Size)
	assert.Equal(t, 0, svc.CleanupExpired())

	svc.ClearCaches()
	report = svc.CacheStats()
	assert.Equal(t, 0, report.SentimentCache.Size)
	assert.Equal(t, 0, report.BatchCache.Size)
	assert.Equal(t, int64(1), report.BatchCache.Misses, "counters survive clear")
}
