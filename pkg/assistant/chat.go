// Package assistant implements the analyst chat assistant, query categorization and
// insight generation on top of the remote model.
package assistant

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tubepulse/tubepulse/pkg/faults"
	"github.com/tubepulse/tubepulse/pkg/llm"
	"github.com/tubepulse/tubepulse/pkg/models"
	"github.com/tubepulse/tubepulse/pkg/retry"
)

// EmptyMessageReply answers a message that is only whitespace.
const EmptyMessageReply = "I didn't catch that. Could you please type something?"

const (
	defaultMaxMessageLength = 5000
	defaultHistoryWindow    = 20
)

// Generator produces a model reply to a conversation.
type Generator interface {
	Generate(ctx context.Context, contents []llm.Content) (*llm.Response, error)
}

// Chat is one conversation with the analyst assistant. It is safe for concurrent use;
// messages are sent one at a time.
type Chat struct {
	mu        sync.Mutex
	model     Generator
	retrier   *retry.Retrier
	history   []llm.Content
	maxLength int
	window    int
	logger    *zap.Logger
}

// ChatOption configures a Chat.
type ChatOption func(*Chat)

// WithMaxLength sets the longest accepted message, in runes.
func WithMaxLength(n int) ChatOption {
	return func(c *Chat) { c.maxLength = n }
}

// WithHistoryWindow sets how many past messages are sent with each request.
func WithHistoryWindow(n int) ChatOption {
	return func(c *Chat) { c.window = n }
}

// WithChatLogger sets the logger.
func WithChatLogger(l *zap.Logger) ChatOption {
	return func(c *Chat) { c.logger = l }
}

// NewChat starts an empty conversation.
func NewChat(model Generator, r *retry.Retrier, opts ...ChatOption) *Chat {
	c := &Chat{
		model:     model,
		retrier:   r,
		maxLength: defaultMaxMessageLength,
		window:    defaultHistoryWindow,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send adds message to the conversation and returns the assistant's reply. Errors are
// *faults.Error values.
func (c *Chat) Send(ctx context.Context, message string) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return EmptyMessageReply, nil
	}
	if n := utf8.RuneCountInString(trimmed); n > c.maxLength {
		return "", faults.Invalid("Input too long. Maximum %d characters allowed.", c.maxLength)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	contents := make([]llm.Content, 0, len(c.history)+1)
	contents = append(contents, c.history...)
	contents = append(contents, llm.UserText(message))

	var resp *llm.Response
	err := c.retrier.Do(ctx, "chat", func(ctx context.Context) error {
		var genErr error
		resp, genErr = c.model.Generate(ctx, contents)
		return genErr
	})
	if err != nil {
		c.logger.Error("chat failed", zap.Error(err))
		return "", err
	}

	c.history = append(contents, llm.ModelText(resp.Text))
	if over := len(c.history) - c.window; c.window > 0 && over > 0 {
		c.history = append([]llm.Content(nil), c.history[over:]...)
	}
	return resp.Text, nil
}

// Reply is Send with failures rendered as their user-facing message.
func (c *Chat) Reply(ctx context.Context, message string) string {
	reply, err := c.Send(ctx, message)
	if err != nil {
		return faults.Classify(err).Message
	}
	return reply
}

// History returns a copy of the retained conversation.
func (c *Chat) History() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.ChatMessage, len(c.history))
	for i, m := range c.history {
		var text strings.Builder
		for _, p := range m.Parts {
			text.WriteString(p.Text)
		}
		out[i] = models.ChatMessage{Role: m.Role, Content: text.String()}
	}
	return out
}

// Clear forgets the conversation.
func (c *Chat) Clear() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}
