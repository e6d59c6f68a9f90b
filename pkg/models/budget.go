package models

// BudgetPeriod defines the time window for a budget policy.
type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "daily"
	BudgetMonthly BudgetPeriod = "monthly"
)

// BudgetPolicy caps remote model calls per period.
type BudgetPolicy struct {
	Name     string       `json:"name,omitempty" yaml:"name,omitempty"`
	MaxCalls int64        `json:"max_calls" yaml:"max_calls" validate:"gt=0"`
	Period   BudgetPeriod `json:"period" yaml:"period" validate:"omitempty,oneof=daily monthly"`
}

// BudgetStatus shows current usage against a policy.
type BudgetStatus struct {
	Policy    BudgetPolicy `json:"policy"`
	Used      int64        `json:"used"`
	Remaining int64        `json:"remaining"`
}
