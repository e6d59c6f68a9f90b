// Package server exposes the analysis pipeline and the chat assistant to the dashboard
// over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/tubepulse/tubepulse/pkg/assistant"
	"github.com/tubepulse/tubepulse/pkg/models"
)

// Analysis is the comment analysis pipeline.
type Analysis interface {
	AnalyzeComment(ctx context.Context, text string) models.Outcome
	AnalyzeBatchComments(ctx context.Context, texts []string) models.BatchResult
	FullAnalysis(ctx context.Context, texts []string, includeInsights bool) models.Report
	CacheStats() models.CacheReport
	ClearCaches()
	CleanupExpired() int
}

// VideoFetcher reads a video and its comments.
type VideoFetcher interface {
	FetchVideo(ctx context.Context, link string, maxComments int) (*models.VideoRecord, error)
}

// QueryCategorizer routes user questions.
type QueryCategorizer interface {
	Categorize(ctx context.Context, query string) string
}

// CallLog reports tracked remote calls.
type CallLog interface {
	Summary(ctx context.Context, since time.Time) ([]models.CallSummary, error)
	Recent(ctx context.Context, limit int) ([]models.CallRecord, error)
}

// BudgetReporter reports call budget usage.
type BudgetReporter interface {
	Status(ctx context.Context) ([]models.BudgetStatus, error)
}

// RequestObserver records served HTTP requests.
type RequestObserver interface {
	HTTPRequest(method, route string, status int)
}

// Deps are the collaborators behind the API. Videos, Calls, Budget, Metrics and
// MetricsHandler are optional.
type Deps struct {
	Analysis         Analysis
	Videos           VideoFetcher
	Sessions         *assistant.Sessions
	Categorizer      QueryCategorizer
	Calls            CallLog
	Budget           BudgetReporter
	Metrics          RequestObserver
	MetricsHandler   http.Handler
	Logger           *zap.Logger
	APIKeyConfigured bool
	MaxComments      int
	AllowedOrigins   []string
}

// Server is the tubepulse HTTP API.
type Server struct {
	listen string
	deps   Deps
	logger *zap.Logger
	router chi.Router
}

// New creates a Server listening on listen.
func New(listen string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MaxComments <= 0 {
		deps.MaxComments = 100
	}
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		listen: listen,
		deps:   deps,
		logger: deps.Logger,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if s.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/analyze", s.handleAnalyze)
		r.Post("/analyze/batch", s.handleAnalyzeBatch)
		r.Post("/videos/analyze", s.handleAnalyzeVideo)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", s.handleCacheStats)
			r.Delete("/", s.handleCacheClear)
			r.Post("/cleanup", s.handleCacheCleanup)
		})

		r.Post("/chat", s.handleChat)
		r.Delete("/chat/{sessionID}", s.handleChatDelete)
		r.Post("/categorize", s.handleCategorize)

		r.Get("/calls", s.handleCalls)
		r.Get("/budget", s.handleBudget)
	})
}

// observe logs each request and reports it to the metrics observer.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.HTTPRequest(r.Method, route, status)
		}
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("tubepulse api listening", zap.String("addr", s.listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
