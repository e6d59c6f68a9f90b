package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/tubepulse/tubepulse/pkg/faults"
)

// BreakerSettings configures the per-model circuit breaker.
type BreakerSettings struct {
	Enabled      bool
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration
	OpenTimeout  time.Duration
}

type breaker struct {
	cb *gobreaker.CircuitBreaker
}

// breakerFor returns the breaker for model, creating it on first use. It returns nil
// when breakers are disabled.
func (c *Client) breakerFor(model string) *breaker {
	if !c.breakerCfg.Enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.breakers[model]; ok {
		return b
	}

	cfg := c.breakerCfg
	logger := c.logger
	b := &breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        model,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("model", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Rate limits are left to the retry policy; they say nothing about model health.
		IsSuccessful: func(err error) bool {
			return err == nil || clientFault(err) ||
				errors.Is(err, faults.ErrRateLimited) ||
				errors.Is(err, context.Canceled)
		},
	})}
	c.breakers[model] = b
	return b
}

// BreakerState returns the state name of the breaker for model.
func (c *Client) BreakerState(model string) string {
	b := c.breakerFor(model)
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
