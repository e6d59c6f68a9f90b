package server

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/tubepulse/tubepulse/pkg/models"
)

// Probe inputs sent to each model-backed component.
const (
	healthComment = "Great video!"
	healthChat    = "Hello!"
	healthQuery   = "How are you?"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.Health(r.Context())
	code := http.StatusOK
	if h.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

// Health exercises sentiment analysis, chat and categorization once each. The overall
// status is healthy when the checks ran; individual components report ok or failed.
func (s *Server) Health(ctx context.Context) (h models.Health) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("health check panicked", zap.Any("panic", rec))
			h = models.Health{Status: "unhealthy", Error: fmt.Sprint(rec)}
		}
	}()

	h = models.Health{
		Status:              "healthy",
		SentimentAnalysis:   "failed",
		Chatbot:             "failed",
		QueryCategorization: "failed",
		APIKey:              "missing",
		CacheStatus:         "enabled",
	}
	if s.deps.APIKeyConfigured {
		h.APIKey = "configured"
	}

	if out := s.deps.Analysis.AnalyzeComment(ctx, healthComment); !out.Failed() {
		h.SentimentAnalysis = "ok"
	}

	if s.deps.Sessions != nil {
		id, chat := s.deps.Sessions.Get("")
		if _, err := chat.Send(ctx, healthChat); err == nil {
			h.Chatbot = "ok"
		}
		s.deps.Sessions.Delete(id)
	}

	if s.deps.Categorizer != nil && s.deps.Categorizer.Categorize(ctx, healthQuery) != "" {
		h.QueryCategorization = "ok"
	}

	s.logger.Info("health check",
		zap.String("sentiment_analysis", h.SentimentAnalysis),
		zap.String("chatbot", h.Chatbot),
		zap.String("query_categorization", h.QueryCategorization),
	)
	return h
}
