// Package retry provides exponential backoff for remote model calls and maps their
// failures onto the domain error kinds.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tubepulse/tubepulse/pkg/faults"
)

// Config holds retry configuration.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries" validate:"gte=0"`
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay" validate:"gte=0"`
	// BackoffFactor multiplies the delay after every retry.
	BackoffFactor float64 `yaml:"backoff_factor" validate:"gte=1"`
	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration `yaml:"max_delay" validate:"gte=0"`
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		InitialDelay:  1 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      60 * time.Second,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer is notified of every retry.
type Observer interface {
	RetryAttempt(reason string)
}

// Retrier runs operations under a retry policy.
type Retrier struct {
	cfg      Config
	sleep    Sleeper
	logger   *zap.Logger
	observer Observer
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the sleep function.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retrier) { r.logger = l }
}

// WithObserver registers an observer for retries.
func WithObserver(o Observer) Option {
	return func(r *Retrier) { r.observer = o }
}

// New creates a Retrier.
func New(cfg Config, opts ...Option) *Retrier {
	r := &Retrier{cfg: cfg, sleep: sleepContext, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the policy in use.
func (r *Retrier) Config() Config {
	return r.cfg
}

// Do runs fn until it succeeds, fails permanently, or retries are exhausted. The
// returned error is nil or a *faults.Error.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := r.cfg.InitialDelay

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		switch {
		case faults.Retryable(err):
			if attempt >= r.cfg.MaxRetries {
				r.logger.Warn("retries exhausted",
					zap.String("op", op),
					zap.Int("attempts", attempt+1),
					zap.Error(err),
				)
				return faults.New(faults.KindQuotaExceeded, "API quota exceeded", err)
			}
		case errors.Is(err, faults.ErrUnauthenticated), errors.Is(err, faults.ErrPermissionDenied):
			return faults.New(faults.KindAuthenticationFailed, "authentication failed", err)
		case errors.Is(err, faults.ErrInvalidArgument):
			return faults.New(faults.KindAnalysisFailed, "invalid argument", err)
		case ctx.Err() != nil:
			return faults.New(faults.KindAnalysisFailed, "cancelled", ctx.Err())
		default:
			r.logger.Error("remote call failed", zap.String("op", op), zap.Error(err))
			return faults.New(faults.KindAnalysisFailed, "remote call failed", err)
		}

		reason := "rate_limited"
		if errors.Is(err, faults.ErrTimeout) {
			reason = "timeout"
		}
		r.logger.Warn("retrying remote call",
			zap.String("op", op),
			zap.String("reason", reason),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", r.cfg.MaxRetries),
			zap.Duration("delay", delay),
		)
		if r.observer != nil {
			r.observer.RetryAttempt(reason)
		}

		if err := r.sleep(ctx, delay); err != nil {
			return faults.New(faults.KindAnalysisFailed, "cancelled", err)
		}

		delay = time.Duration(float64(delay) * r.cfg.BackoffFactor)
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
