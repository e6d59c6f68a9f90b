package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tubepulse/tubepulse/pkg/models"
)

// ErrBudgetExceeded is returned when the remote call budget is used up.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Counter counts remote calls made since a point in time.
type Counter interface {
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

// Enforcer checks remote call counts against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	counter  Counter
	now      func() time.Time
}

// New creates an Enforcer with the given policies and call counter.
func New(policies []models.BudgetPolicy, c Counter) *Enforcer {
	return &Enforcer{policies: policies, counter: c, now: time.Now}
}

// Check returns ErrBudgetExceeded if any policy's call limit has been reached.
func (e *Enforcer) Check(ctx context.Context) error {
	for _, p := range e.policies {
		used, err := e.counter.CountSince(ctx, periodStart(p.Period, e.now()))
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxCalls {
			return fmt.Errorf("%s limit of %d calls reached: %w", periodName(p.Period), p.MaxCalls, ErrBudgetExceeded)
		}
	}
	return nil
}

// Status returns usage against every policy.
func (e *Enforcer) Status(ctx context.Context) ([]models.BudgetStatus, error) {
	statuses := make([]models.BudgetStatus, 0, len(e.policies))

	for _, p := range e.policies {
		used, err := e.counter.CountSince(ctx, periodStart(p.Period, e.now()))
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		remaining := p.MaxCalls - used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: remaining,
		})
	}
	return statuses, nil
}

func periodName(period models.BudgetPeriod) string {
	if period == models.BudgetMonthly {
		return "monthly"
	}
	return "daily"
}

func periodStart(period models.BudgetPeriod, now time.Time) time.Time {
	now = now.UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
