package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tubepulse/tubepulse/pkg/llm"
	"github.com/tubepulse/tubepulse/pkg/models"
	"github.com/tubepulse/tubepulse/pkg/retry"
)

// Query categories.
const (
	CategorySentiment  = "sentiment_analysis"
	CategoryEngagement = "engagement_analysis"
	CategoryContent    = "content_analysis"
	CategoryGeneral    = "general"
)

var categories = map[string]bool{
	CategorySentiment:  true,
	CategoryEngagement: true,
	CategoryContent:    true,
	CategoryGeneral:    true,
}

const defaultMinQueryLength = 3

// Categorizer routes user queries to one of the known categories.
type Categorizer struct {
	model     Generator
	minLength int
	logger    *zap.Logger
}

// NewCategorizer creates a Categorizer. Queries shorter than minLength runes are
// categorized as general without a remote call.
func NewCategorizer(model Generator, minLength int, logger *zap.Logger) *Categorizer {
	if minLength < 1 {
		minLength = defaultMinQueryLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Categorizer{model: model, minLength: minLength, logger: logger}
}

// Categorize returns the category of query. Any failure yields CategoryGeneral.
func (c *Categorizer) Categorize(ctx context.Context, query string) string {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < c.minLength {
		return CategoryGeneral
	}

	resp, err := c.model.Generate(ctx, []llm.Content{llm.UserText(query)})
	if err != nil {
		c.logger.Warn("categorize failed", zap.Error(err))
		return CategoryGeneral
	}

	category := strings.ToLower(strings.TrimSpace(resp.Text))
	category = strings.Trim(category, "\"'`.")
	if !categories[category] {
		c.logger.Debug("unknown category", zap.String("category", category))
		return CategoryGeneral
	}
	return category
}

// InsightWriter turns aggregated analysis data into creator recommendations.
type InsightWriter struct {
	model   Generator
	retrier *retry.Retrier
}

// NewInsightWriter creates an InsightWriter.
func NewInsightWriter(model Generator, r *retry.Retrier) *InsightWriter {
	return &InsightWriter{model: model, retrier: r}
}

// Insights asks the model for 3-5 actionable insights on agg.
func (w *InsightWriter) Insights(ctx context.Context, agg models.Aggregated) (string, error) {
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode analytics: %w", err)
	}
	prompt := fmt.Sprintf("Here is the video analytics data:\n%s\n\nBased on this data, provide 3-5 actionable insights for the creator.", data)

	var resp *llm.Response
	err = w.retrier.Do(ctx, "insights", func(ctx context.Context) error {
		var genErr error
		resp, genErr = w.model.Generate(ctx, []llm.Content{llm.UserText(prompt)})
		return genErr
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
