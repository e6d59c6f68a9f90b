package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tubepulse/tubepulse/pkg/faults"
)

// ModelConfig is a model "personality": instructions and sampling for one task.
type ModelConfig struct {
	Task              string
	SystemInstruction string
	Temperature       float64
	TopP              float64
	MaxOutputTokens   int
	JSON              bool
	Timeout           time.Duration
}

// Model generates content for one task, falling back along the task's route
// when a model's circuit breaker is open.
type Model struct {
	client *Client
	cfg    ModelConfig
}

// Model returns a Model bound to cfg.
func (c *Client) Model(cfg ModelConfig) *Model {
	return &Model{client: c, cfg: cfg}
}

// Task returns the task the model serves.
func (m *Model) Task() string {
	return m.cfg.Task
}

// Analyze sends text as a single user message.
func (m *Model) Analyze(ctx context.Context, text string) (*Response, error) {
	return m.Generate(ctx, []Content{UserText(text)})
}

// Generate sends a conversation and returns the first candidate's text.
func (m *Model) Generate(ctx context.Context, contents []Content) (*Response, error) {
	chain, err := m.client.chain(m.cfg.Task)
	if err != nil {
		return nil, err
	}

	req := m.request(contents)
	for _, model := range chain {
		b := m.client.breakerFor(model)
		if b == nil {
			return m.client.generate(ctx, model, req, m.cfg.Timeout)
		}

		res, err := b.cb.Execute(func() (interface{}, error) {
			return m.client.generate(ctx, model, req, m.cfg.Timeout)
		})
		if rejected(err) {
			m.client.logger.Warn("model unavailable, trying next",
				zap.String("task", m.cfg.Task),
				zap.String("model", model),
				zap.Error(err),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		return res.(*Response), nil
	}

	return nil, fmt.Errorf("no model available for %s: %w", m.cfg.Task, faults.ErrUnavailable)
}

func (m *Model) request(contents []Content) generateRequest {
	req := generateRequest{Contents: contents}
	if m.cfg.SystemInstruction != "" {
		req.SystemInstruction = &Content{Parts: []Part{{Text: m.cfg.SystemInstruction}}}
	}

	gc := &generationConfig{MaxOutputTokens: m.cfg.MaxOutputTokens}
	temp, topP := m.cfg.Temperature, m.cfg.TopP
	gc.Temperature = &temp
	if topP > 0 {
		gc.TopP = &topP
	}
	if m.cfg.JSON {
		gc.ResponseMimeType = "application/json"
	}
	req.GenerationConfig = gc
	return req
}

// Sentiment is the low-temperature JSON model for comment analysis.
func Sentiment(timeout time.Duration) ModelConfig {
	return ModelConfig{
		Task:              "sentiment",
		SystemInstruction: SentimentAnalyzerPrompt,
		Temperature:       0.1,
		TopP:              0.95,
		JSON:              true,
		Timeout:           timeout,
	}
}

// Categorizer classifies user queries.
func Categorizer(timeout time.Duration) ModelConfig {
	return ModelConfig{
		Task:              "categorize",
		SystemInstruction: QueryCategorizerPrompt,
		Temperature:       0.1,
		TopP:              0.95,
		MaxOutputTokens:   20,
		Timeout:           timeout,
	}
}

// Chat is the conversational analyst assistant.
func Chat(timeout time.Duration) ModelConfig {
	return ModelConfig{
		Task:              "chat",
		SystemInstruction: AnalystBotPrompt,
		Temperature:       0.7,
		TopP:              0.95,
		Timeout:           timeout,
	}
}

// Insights writes recommendations from aggregated analysis data.
func Insights(timeout time.Duration) ModelConfig {
	return ModelConfig{
		Task:              "insights",
		SystemInstruction: InsightGeneratorPrompt,
		Temperature:       0.7,
		TopP:              0.95,
		Timeout:           timeout,
	}
}
