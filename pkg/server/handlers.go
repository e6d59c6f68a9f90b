package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tubepulse/tubepulse/pkg/faults"
	"github.com/tubepulse/tubepulse/pkg/models"
	"github.com/tubepulse/tubepulse/pkg/youtube"
)

const (
	maxBodyBytes   = 4 << 20
	defaultSince   = 24 * time.Hour
	defaultRecent  = 20
	maxRecentCalls = 500
)

type analyzeRequest struct {
	Text string `json:"text" validate:"required"`
}

type batchRequest struct {
	Comments        []string `json:"comments" validate:"max=1000"`
	IncludeInsights bool     `json:"include_insights"`
}

type videoRequest struct {
	URL             string `json:"url" validate:"required"`
	MaxComments     int    `json:"max_comments" validate:"omitempty,gte=1,lte=1000"`
	IncludeInsights bool   `json:"include_insights"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" validate:"required"`
}

type chatResponse struct {
	SessionID string           `json:"session_id"`
	Reply     string           `json:"reply"`
	ErrorType models.ErrorKind `json:"error_type,omitempty"`
}

type categorizeRequest struct {
	Query string `json:"query" validate:"required"`
}

type callsResponse struct {
	Since   time.Time            `json:"since"`
	Summary []models.CallSummary `json:"summary"`
	Recent  []models.CallRecord  `json:"recent"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(w, r, &req) {
		return
	}

	out := s.deps.Analysis.AnalyzeComment(r.Context(), req.Text)
	switch out.Kind() {
	case models.OutcomeSuccess:
		writeJSON(w, http.StatusOK, out)
	case models.OutcomeError:
		writeJSON(w, statusFor(out.Error), out)
	}
}

func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.IncludeInsights {
		report := s.deps.Analysis.FullAnalysis(r.Context(), req.Comments, true)
		writeJSON(w, statusFor(report.Error), report)
		return
	}

	res := s.deps.Analysis.AnalyzeBatchComments(r.Context(), req.Comments)
	writeJSON(w, statusFor(res.Error), res)
}

func (s *Server) handleAnalyzeVideo(w http.ResponseWriter, r *http.Request) {
	if s.deps.Videos == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "video fetching is not configured")
		return
	}

	var req videoRequest
	if !s.decode(w, r, &req) {
		return
	}
	maxComments := req.MaxComments
	if maxComments == 0 {
		maxComments = s.deps.MaxComments
	}

	video, err := s.deps.Videos.FetchVideo(r.Context(), req.URL, maxComments)
	switch {
	case errors.Is(err, youtube.ErrInvalidURL):
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, youtube.ErrVideoNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Error("fetch video failed", zap.String("url", req.URL), zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, "failed to fetch video")
		return
	}

	comments := youtube.CleanComments(video.Comments)
	if len(comments) == 0 {
		writeJSON(w, http.StatusOK, models.Report{
			Status:             "success",
			SentimentAnalysis:  models.Aggregated{ThemeFrequency: map[string]int{}},
			IndividualAnalyses: []models.AnalysisResult{},
			Video:              video,
		})
		return
	}

	report := s.deps.Analysis.FullAnalysis(r.Context(), comments, req.IncludeInsights)
	report.Video = video
	writeJSON(w, statusFor(report.Error), report)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Analysis.CacheStats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.deps.Analysis.ClearCaches()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	n := s.deps.Analysis.CleanupExpired()
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}

	id, chat := s.deps.Sessions.Get(req.SessionID)
	reply, err := chat.Send(r.Context(), req.Message)
	if err != nil {
		er := faults.Classify(err)
		writeJSON(w, statusFor(&er), chatResponse{SessionID: id, Reply: er.Message, ErrorType: er.ErrorType})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{SessionID: id, Reply: reply})
}

func (s *Server) handleChatDelete(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil || !s.deps.Sessions.Delete(chi.URLParam(r, "sessionID")) {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	if s.deps.Categorizer == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "categorization is not configured")
		return
	}

	var req categorizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"category": s.deps.Categorizer.Categorize(r.Context(), req.Query),
	})
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	if s.deps.Calls == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "call tracking is not configured")
		return
	}

	window := defaultSince
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid since %q", v))
			return
		}
		window = d
	}
	limit := defaultRecent
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRecentCalls {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxRecentCalls))
			return
		}
		limit = n
	}

	since := time.Now().UTC().Add(-window)
	summary, err := s.deps.Calls.Summary(r.Context(), since)
	if err != nil {
		s.logger.Error("call summary failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to read call log")
		return
	}
	recent, err := s.deps.Calls.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("recent calls failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to read call log")
		return
	}
	writeJSON(w, http.StatusOK, callsResponse{Since: since, Summary: summary, Recent: recent})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	if s.deps.Budget == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false, "policies": []models.BudgetStatus{}})
		return
	}

	status, err := s.deps.Budget.Status(r.Context())
	if err != nil {
		s.logger.Error("budget status failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to read budget status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "policies": status})
}

// decode reads and validates a JSON body, writing the error response itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validateRequest(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// statusFor maps an error result to an HTTP status. A nil result is 200.
func statusFor(er *models.ErrorResult) int {
	if er == nil {
		return http.StatusOK
	}
	switch er.ErrorType {
	case models.ErrorInvalidInput:
		return http.StatusBadRequest
	case models.ErrorQuotaExceeded:
		return http.StatusTooManyRequests
	case models.ErrorAuthenticationFailed, models.ErrorAnalysisFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"tubepulse_error","code":%d}}`, message, code)
}
