package models

import "time"

// CallSuccess is the outcome label recorded for a successful remote call.
const CallSuccess = "success"

// CallRecord tracks one remote analyzer call sequence, retries included.
type CallRecord struct {
	ID          int64     `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Model       string    `json:"model"`
	Outcome     string    `json:"outcome"`
	Attempts    int       `json:"attempts"`
	LatencyMs   int64     `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// CallSummary aggregates calls by model and outcome.
type CallSummary struct {
	Model         string  `json:"model"`
	Outcome       string  `json:"outcome"`
	Calls         int64   `json:"calls"`
	TotalAttempts int64   `json:"total_attempts"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}
