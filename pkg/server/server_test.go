package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubepulse/tubepulse/pkg/assistant"
	"github.com/tubepulse/tubepulse/pkg/faults"
	"github.com/tubepulse/tubepulse/pkg/llm"
	"github.com/tubepulse/tubepulse/pkg/metrics"
	"github.com/tubepulse/tubepulse/pkg/models"
	"github.com/tubepulse/tubepulse/pkg/retry"
	"github.com/tubepulse/tubepulse/pkg/youtube"
)

type fakeAnalysis struct {
	mu      sync.Mutex
	batches [][]string
	cleared bool
}

func (f *fakeAnalysis) AnalyzeComment(_ context.Context, text string) models.Outcome {
	if strings.TrimSpace(text) == "" {
		return models.Errored(faults.Classify(faults.Invalid("Input too short. Minimum 1 characters required.")))
	}
	if text == "quota" {
		return models.Errored(faults.Classify(faults.New(faults.KindQuotaExceeded, "API quota exceeded", faults.ErrRateLimited)))
	}
	return models.Succeeded(models.AnalysisResult{SentimentScore: 0.5, TopThemes: []string{"praise"}, ControversyLevel: 2})
}

func (f *fakeAnalysis) AnalyzeBatchComments(ctx context.Context, texts []string) models.BatchResult {
	f.mu.Lock()
	f.batches = append(f.batches, texts)
	f.mu.Unlock()

	if len(texts) == 0 {
		er := faults.Classify(faults.Invalid("empty comments list"))
		return models.BatchResult{Error: &er}
	}
	agg := models.BatchAggregate{
		TotalComments: len(texts),
		Analyses:      []models.AnalysisResult{},
		Aggregated:    models.Aggregated{ThemeFrequency: map[string]int{}},
	}
	for _, t := range texts {
		if out := f.AnalyzeComment(ctx, t); !out.Failed() {
			agg.Analyses = append(agg.Analyses, *out.Result)
		}
	}
	return models.BatchResult{Aggregate: &agg}
}

func (f *fakeAnalysis) FullAnalysis(ctx context.Context, texts []string, includeInsights bool) models.Report {
	br := f.AnalyzeBatchComments(ctx, texts)
	if br.Failed() {
		return models.Report{Status: "error", Error: br.Error}
	}
	r := models.Report{
		Status:             "success",
		CommentCount:       br.Aggregate.TotalComments,
		SentimentAnalysis:  br.Aggregate.Aggregated,
		IndividualAnalyses: br.Aggregate.Analyses,
	}
	if includeInsights {
		r.Insights = "1. Keep going."
	}
	return r
}

func (f *fakeAnalysis) CacheStats() models.CacheReport {
	return models.CacheReport{
		SentimentCache: models.CacheStats{Name: "sentiment", Size: 3, MaxSize: 1000},
		BatchCache:     models.CacheStats{Name: "batch", Size: 1, MaxSize: 100},
	}
}

func (f *fakeAnalysis) ClearCaches()        { f.cleared = true }
func (f *fakeAnalysis) CleanupExpired() int { return 4 }

type fakeVideos struct{ video *models.VideoRecord }

func (f fakeVideos) FetchVideo(_ context.Context, link string, maxComments int) (*models.VideoRecord, error) {
	if _, err := youtube.ExtractVideoID(link); err != nil {
		return nil, err
	}
	if f.video == nil {
		return nil, fmt.Errorf("%w: x", youtube.ErrVideoNotFound)
	}
	v := *f.video
	if len(v.Comments) > maxComments {
		v.Comments = v.Comments[:maxComments]
	}
	return &v, nil
}

type echoModel struct{ err error }

func (m echoModel) Generate(_ context.Context, contents []llm.Content) (*llm.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	last := contents[len(contents)-1].Parts[0].Text
	return &llm.Response{Text: "echo: " + last}, nil
}

type fixedCategorizer string

func (c fixedCategorizer) Categorize(context.Context, string) string { return string(c) }

type fakeCalls struct{ err error }

func (f fakeCalls) Summary(context.Context, time.Time) ([]models.CallSummary, error) {
	return []models.CallSummary{{Model: "m", Outcome: models.CallSuccess, Calls: 2, TotalAttempts: 3}}, f.err
}

func (f fakeCalls) Recent(_ context.Context, limit int) ([]models.CallRecord, error) {
	return []models.CallRecord{{ID: 1, Model: "m", Outcome: models.CallSuccess, Attempts: limit}}, f.err
}

type fakeBudget struct{}

func (fakeBudget) Status(context.Context) ([]models.BudgetStatus, error) {
	return []models.BudgetStatus{{Policy: models.BudgetPolicy{Name: "daily", MaxCalls: 10, Period: models.BudgetDaily}, Used: 4, Remaining: 6}}, nil
}

func sessions(model assistant.Generator) *assistant.Sessions {
	r := retry.New(retry.Config{MaxRetries: 0, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: time.Millisecond})
	return assistant.NewSessions(func() *assistant.Chat { return assistant.NewChat(model, r) })
}

func newTestServer(t *testing.T, mutate func(*Deps)) (*Server, *fakeAnalysis) {
	t.Helper()
	fa := &fakeAnalysis{}
	deps := Deps{
		Analysis:         fa,
		Videos:           fakeVideos{video: &models.VideoRecord{VideoID: "vid1", Title: "T", Comments: []string{"a", " ", "b", "c"}}},
		Sessions:         sessions(echoModel{}),
		Categorizer:      fixedCategorizer("sentiment_analysis"),
		Calls:            fakeCalls{},
		Budget:           fakeBudget{},
		APIKeyConfigured: true,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return New(":0", deps), fa
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAnalyze(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodPost, "/api/v1/analyze", `{"text":"Great video!"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[models.AnalysisResult](t, w)
	assert.InDelta(t, 0.5, res.SentimentScore, 1e-12)

	w = do(t, srv, http.MethodPost, "/api/v1/analyze", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrorInvalidInput, decodeBody[models.ErrorResult](t, w).ErrorType)

	w = do(t, srv, http.MethodPost, "/api/v1/analyze", `{"text":"quota"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAnalyzeRequestValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodPost, "/api/v1/analyze", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "text is required")

	w = do(t, srv, http.MethodPost, "/api/v1/analyze", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")

	w = do(t, srv, http.MethodPost, "/api/v1/analyze", `{"text":"x","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeBatch(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodPost, "/api/v1/analyze/batch", `{"comments":["a","","b"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	agg := decodeBody[models.BatchAggregate](t, w)
	assert.Equal(t, 3, agg.TotalComments)
	assert.Len(t, agg.Analyses, 2)

	w = do(t, srv, http.MethodPost, "/api/v1/analyze/batch", `{"comments":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty comments list", decodeBody[models.ErrorResult](t, w).Message)

	w = do(t, srv, http.MethodPost, "/api/v1/analyze/batch", `{"comments":["a"],"include_insights":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	report := decodeBody[models.Report](t, w)
	assert.Equal(t, "1. Keep going.", report.Insights)
}

func TestAnalyzeVideo(t *testing.T) {
	srv, fa := newTestServer(t, nil)

	w := do(t, srv, http.MethodPost, "/api/v1/videos/analyze", `{"url":"https://youtu.be/vid1","max_comments":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decodeBody[models.Report](t, w)
	assert.Equal(t, 2, report.CommentCount)
	require.NotNil(t, report.Video)
	assert.Equal(t, "vid1", report.Video.VideoID)
	assert.Equal(t, [][]string{{"a", "b"}}, fa.batches)

	w = do(t, srv, http.MethodPost, "/api/v1/videos/analyze", `{"url":"https://vimeo.com/1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/api/v1/videos/analyze", `{"url":"https://youtu.be/vid1","max_comments":5000}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "max_comments must be at most 1000")

	missing, _ := newTestServer(t, func(d *Deps) { d.Videos = fakeVideos{} })
	w = do(t, missing, http.MethodPost, "/api/v1/videos/analyze", `{"url":"https://youtu.be/gone"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyzeVideoWithoutComments(t *testing.T) {
	srv, fa := newTestServer(t, func(d *Deps) {
		d.Videos = fakeVideos{video: &models.VideoRecord{VideoID: "quiet", Comments: []string{}}}
	})

	w := do(t, srv, http.MethodPost, "/api/v1/videos/analyze", `{"url":"https://youtu.be/quiet"}`)
	require.Equal(t, http.StatusOK, w.Code)
	report := decodeBody[models.Report](t, w)
	assert.Equal(t, 0, report.CommentCount)
	assert.Empty(t, fa.batches, "no analysis for a video without comments")
}

func TestCacheEndpoints(t *testing.T) {
	srv, fa := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeBody[models.CacheReport](t, w)
	assert.Equal(t, 3, stats.SentimentCache.Size)
	assert.Equal(t, "batch", stats.BatchCache.Name)

	w = do(t, srv, http.MethodDelete, "/api/v1/cache", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, fa.cleared)

	w = do(t, srv, http.MethodPost, "/api/v1/cache/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]int{"removed": 4}, decodeBody[map[string]int](t, w))
}

func TestChat(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodPost, "/api/v1/chat", `{"message":"Hello!"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decodeBody[chatResponse](t, w)
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, "echo: Hello!", first.Reply)

	w = do(t, srv, http.MethodPost, "/api/v1/chat", fmt.Sprintf(`{"session_id":%q,"message":"again"}`, first.SessionID))
	second := decodeBody[chatResponse](t, w)
	assert.Equal(t, first.SessionID, second.SessionID)

	w = do(t, srv, http.MethodDelete, "/api/v1/chat/"+first.SessionID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, srv, http.MethodDelete, "/api/v1/chat/"+first.SessionID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatFailure(t *testing.T) {
	srv, _ := newTestServer(t, func(d *Deps) { d.Sessions = sessions(echoModel{err: faults.ErrPermissionDenied}) })

	w := do(t, srv, http.MethodPost, "/api/v1/chat", `{"message":"Hello!"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeBody[chatResponse](t, w)
	assert.Equal(t, "Authentication failed. Check your API key.", resp.Reply)
	assert.Equal(t, models.ErrorAuthenticationFailed, resp.ErrorType)
}

func TestCategorize(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodPost, "/api/v1/categorize", `{"query":"how do viewers feel?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"category": "sentiment_analysis"}, decodeBody[map[string]string](t, w))
}

func TestCalls(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/calls?since=1h&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[callsResponse](t, w)
	require.Len(t, resp.Summary, 1)
	assert.Equal(t, int64(2), resp.Summary[0].Calls)
	require.Len(t, resp.Recent, 1)
	assert.Equal(t, 5, resp.Recent[0].Attempts)

	w = do(t, srv, http.MethodGet, "/api/v1/calls?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, srv, http.MethodGet, "/api/v1/calls?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	broken, _ := newTestServer(t, func(d *Deps) { d.Calls = fakeCalls{err: errors.New("db closed")} })
	w = do(t, broken, http.MethodGet, "/api/v1/calls", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBudget(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := do(t, srv, http.MethodGet, "/api/v1/budget", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"remaining":6`)
	assert.Contains(t, w.Body.String(), `"enabled":true`)

	disabled, _ := newTestServer(t, func(d *Deps) { d.Budget = nil })
	w = do(t, disabled, http.MethodGet, "/api/v1/budget", "")
	assert.Contains(t, w.Body.String(), `"enabled":false`)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	h := decodeBody[models.Health](t, w)
	assert.Equal(t, models.Health{
		Status:              "healthy",
		SentimentAnalysis:   "ok",
		Chatbot:             "ok",
		QueryCategorization: "ok",
		APIKey:              "configured",
		CacheStatus:         "enabled",
	}, h)
	assert.Equal(t, 0, srv.deps.Sessions.Len(), "probe session is discarded")
}

func TestHealthReportsFailedComponents(t *testing.T) {
	srv, _ := newTestServer(t, func(d *Deps) {
		d.Sessions = sessions(echoModel{err: errors.New("down")})
		d.Categorizer = nil
		d.APIKeyConfigured = false
	})

	h := srv.Health(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "ok", h.SentimentAnalysis)
	assert.Equal(t, "failed", h.Chatbot)
	assert.Equal(t, "failed", h.QueryCategorization)
	assert.Equal(t, "missing", h.APIKey)
}

func TestMetricsEndpoint(t *testing.T) {
	c := metrics.New()
	srv, _ := newTestServer(t, func(d *Deps) {
		d.Metrics = c
		d.MetricsHandler = c.Handler()
	})

	do(t, srv, http.MethodGet, "/api/v1/cache/stats", "")
	w := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tubepulse_http_requests_total{method="GET",route="/api/v1/cache/stats",status="200"} 1`)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	srv := New("127.0.0.1:0", Deps{Analysis: &fakeAnalysis{}})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
