package models

import (
	"encoding/json"
	"fmt"
)

// ErrorKind is the stable, user-facing classification of a failure.
type ErrorKind string

const (
	ErrorQuotaExceeded        ErrorKind = "quota_exceeded"
	ErrorAuthenticationFailed ErrorKind = "authentication_failed"
	ErrorAnalysisFailed       ErrorKind = "analysis_failed"
	ErrorInvalidInput         ErrorKind = "invalid_input"
	ErrorUnknown              ErrorKind = "unknown"
)

// AnalysisResult is the validated per-comment output of the sentiment model.
type AnalysisResult struct {
	SentimentScore   float64  `json:"sentiment_score"`
	TopThemes        []string `json:"top_3_themes"`
	ControversyLevel int      `json:"controversy_level"`
}

// ErrorResult describes a failed analysis in a form the dashboard can render.
type ErrorResult struct {
	Status      string    `json:"status"`
	ErrorType   ErrorKind `json:"error_type"`
	Message     string    `json:"message"`
	Details     string    `json:"details"`
	RawResponse string    `json:"raw_response,omitempty"`
}

// OutcomeKind discriminates the variants of Outcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeError
)

// Outcome is the per-comment result: exactly one of Result or Error is set.
type Outcome struct {
	Result *AnalysisResult
	Error  *ErrorResult
}

// Succeeded wraps an analysis result.
func Succeeded(r AnalysisResult) Outcome {
	return Outcome{Result: &r}
}

// Errored wraps an error result.
func Errored(e ErrorResult) Outcome {
	return Outcome{Error: &e}
}

// Kind reports which variant the outcome holds. An empty outcome is treated as an error.
func (o Outcome) Kind() OutcomeKind {
	if o.Error == nil && o.Result != nil {
		return OutcomeSuccess
	}
	return OutcomeError
}

// Failed reports whether the outcome carries an error marker.
func (o Outcome) Failed() bool {
	return o.Kind() == OutcomeError
}

// MarshalJSON encodes the outcome as whichever variant it holds.
func (o Outcome) MarshalJSON() ([]byte, error) {
	switch o.Kind() {
	case OutcomeSuccess:
		return json.Marshal(o.Result)
	default:
		if o.Error == nil {
			return json.Marshal(ErrorResult{Status: "error", ErrorType: ErrorUnknown, Message: "empty outcome"})
		}
		return json.Marshal(o.Error)
	}
}

// UnmarshalJSON decodes either variant, using the error_type field as discriminant.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var probe struct {
		ErrorType *ErrorKind `json:"error_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("decode outcome: %w", err)
	}
	if probe.ErrorType != nil {
		var e ErrorResult
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("decode error result: %w", err)
		}
		*o = Outcome{Error: &e}
		return nil
	}
	var r AnalysisResult
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("decode analysis result: %w", err)
	}
	*o = Outcome{Result: &r}
	return nil
}

// Aggregated holds the batch-level fold over successful analyses.
type Aggregated struct {
	AvgSentiment   float64        `json:"avg_sentiment"`
	AvgControversy float64        `json:"avg_controversy"`
	ThemeFrequency map[string]int `json:"theme_frequency"`
}

// BatchAggregate is the result of analyzing a batch of comments.
type BatchAggregate struct {
	TotalComments int              `json:"total_comments"`
	Analyses      []AnalysisResult `json:"analyses"`
	Aggregated    Aggregated       `json:"aggregated"`
}

// FailedCount is the number of comments that did not produce an analysis.
func (b BatchAggregate) FailedCount() int {
	return b.TotalComments - len(b.Analyses)
}

// BatchResult is either a BatchAggregate or a batch-level ErrorResult.
type BatchResult struct {
	Aggregate *BatchAggregate
	Error     *ErrorResult
}

// Failed reports whether the whole batch failed. A batch whose items all failed is
// still a successful aggregate.
func (b BatchResult) Failed() bool {
	return b.Error != nil || b.Aggregate == nil
}

// MarshalJSON encodes the batch result as whichever variant it holds.
func (b BatchResult) MarshalJSON() ([]byte, error) {
	if b.Failed() {
		if b.Error == nil {
			return json.Marshal(ErrorResult{Status: "error", ErrorType: ErrorUnknown, Message: "empty batch result"})
		}
		return json.Marshal(b.Error)
	}
	return json.Marshal(b.Aggregate)
}

// UnmarshalJSON decodes either variant, using the error_type field as discriminant.
func (b *BatchResult) UnmarshalJSON(data []byte) error {
	var probe struct {
		ErrorType *ErrorKind `json:"error_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("decode batch result: %w", err)
	}
	if probe.ErrorType != nil {
		var e ErrorResult
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("decode batch error: %w", err)
		}
		*b = BatchResult{Error: &e}
		return nil
	}
	var agg BatchAggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return fmt.Errorf("decode batch aggregate: %w", err)
	}
	*b = BatchResult{Aggregate: &agg}
	return nil
}

// Report is the full analysis of a comment set, optionally with model-written insights.
type Report struct {
	Status             string           `json:"status"`
	CommentCount       int              `json:"comment_count"`
	SentimentAnalysis  Aggregated       `json:"sentiment_analysis"`
	IndividualAnalyses []AnalysisResult `json:"individual_analyses"`
	Insights           string           `json:"insights,omitempty"`
	Video              *VideoRecord     `json:"video,omitempty"`
	Error              *ErrorResult     `json:"error,omitempty"`
}

// Health summarizes the state of the model-backed components.
type Health struct {
	Status              string `json:"status"`
	SentimentAnalysis   string `json:"sentiment_analysis"`
	Chatbot             string `json:"chatbot"`
	QueryCategorization string `json:"query_categorization"`
	APIKey              string `json:"api_key"`
	CacheStatus         string `json:"cache_status"`
	Error               string `json:"error,omitempty"`
}
