package usecase

import (
	"time"

	"CPITracker/internal/domain"
)

// Outcome classifies a finished collection run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
)

// ProductFailure records why one product yielded no price this run.
type ProductFailure struct {
	Product domain.TrackedProduct
	Err     error
}

// RunReport summarises a collection pass.
type RunReport struct {
	StartedAt        time.Time
	FinishedAt       time.Time
	Collected        int
	AlreadyCollected int
	Invalid          int
	Failures         []ProductFailure
}

// Processed counts every entry the run looked at.
func (r RunReport) Processed() int {
	return r.Collected + r.AlreadyCollected + r.Invalid + len(r.Failures)
}

// Outcome is partial when any entry was invalid or failed.
func (r RunReport) Outcome() Outcome {
	if r.Invalid > 0 || len(r.Failures) > 0 {
		return OutcomePartial
	}
	return OutcomeSuccess
}
