// Package llm is a client for the Gemini generateContent REST API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tubepulse/tubepulse/pkg/faults"
)

// DefaultBaseURL is the public Gemini endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Resolver returns the ordered models to try for a task.
type Resolver interface {
	Resolve(task string) ([]string, error)
}

// Observer is notified of every HTTP call to the model API.
type Observer interface {
	RemoteCall(outcome string, d time.Duration)
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	APIKey            string
	HTTPClient        *http.Client
	RequestsPerSecond float64
	Burst             int
	Breaker           BreakerSettings
	Resolver          Resolver
	DefaultModel      string
	Logger            *zap.Logger
	Observer          Observer
}

// Client talks to the model API. It is safe for concurrent use.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	resolver Resolver
	model    string
	logger   *zap.Logger
	observer Observer

	breakerCfg BreakerSettings
	mu         sync.Mutex
	breakers   map[string]*breaker
}

// NewClient creates a Client. A zero RequestsPerSecond disables client-side rate limiting.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		http:       opts.HTTPClient,
		resolver:   opts.Resolver,
		model:      opts.DefaultModel,
		logger:     opts.Logger,
		observer:   opts.Observer,
		breakerCfg: opts.Breaker,
		breakers:   make(map[string]*breaker),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// HasAPIKey reports whether an API key is configured.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// chain returns the models to try for task.
func (c *Client) chain(task string) ([]string, error) {
	if c.resolver != nil {
		return c.resolver.Resolve(task)
	}
	if c.model == "" {
		return nil, fmt.Errorf("no model configured for task %q", task)
	}
	return []string{c.model}, nil
}

// generate sends one generateContent request.
func (c *Client) generate(ctx context.Context, model string, req generateRequest, timeout time.Duration) (*Response, error) {
	start := time.Now()
	resp, err := c.doGenerate(ctx, model, req, timeout)
	if c.observer != nil {
		c.observer.RemoteCall(outcome(err), time.Since(start))
	}
	return resp, err
}

func (c *Client) doGenerate(ctx context.Context, model string, req generateRequest, timeout time.Duration) (*Response, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("rate limiter: %v: %w", err, faults.ErrRateLimited)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := c.baseURL + "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s after %s: %w", model, timeout, faults.ErrTimeout)
		}
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%s after %s: %w", model, timeout, faults.ErrTimeout)
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, parseAPIError(httpResp.StatusCode, respBody)
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("prompt blocked (%s): %w", gr.PromptFeedback.BlockReason, faults.ErrInvalidArgument)
	}

	out := &Response{Model: model}
	if gr.ModelVersion != "" {
		out.Model = gr.ModelVersion
	}
	if gr.UsageMetadata != nil {
		out.Usage = *gr.UsageMetadata
	}
	if len(gr.Candidates) > 0 {
		cand := gr.Candidates[0]
		out.FinishReason = cand.FinishReason
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		out.Text = sb.String()
	}
	return out, nil
}
