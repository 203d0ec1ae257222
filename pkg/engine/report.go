package engine

import (
	"fmt"
	"time"
)

// Outcome is the per-resource result of one convergence run.
type Outcome string

const (
	// OutcomeUnchanged indicates the resource already satisfied its desired
	// state and no provider mutation was performed.
	OutcomeUnchanged Outcome = "unchanged"

	// OutcomeChanged indicates the provider applied the resource successfully.
	OutcomeChanged Outcome = "changed"

	// OutcomeFailed indicates the provider reported a failure for the resource.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkipped indicates the resource was not applied because a
	// dependency failed, directly or transitively.
	OutcomeSkipped Outcome = "skipped"
)

// IsFailure returns true for outcomes that mark the overall run as failed.
func (o Outcome) IsFailure() bool {
	return o == OutcomeFailed || o == OutcomeSkipped
}

// Validate checks if the outcome is valid.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeUnchanged, OutcomeChanged, OutcomeFailed, OutcomeSkipped:
		return nil
	default:
		return fmt.Errorf("invalid outcome: %s", o)
	}
}

// RunStatus is the overall status of one convergence run.
type RunStatus string

const (
	// RunStatusSuccess indicates every resource ended unchanged or changed.
	RunStatusSuccess RunStatus = "success"

	// RunStatusPartialFailure indicates at least one resource failed or was
	// skipped; unrelated resources were still processed.
	RunStatusPartialFailure RunStatus = "partial-failure"

	// RunStatusCompileFailure indicates compilation or resolution failed
	// before any host mutation occurred.
	RunStatusCompileFailure RunStatus = "compile-failure"
)

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusSuccess, RunStatusPartialFailure, RunStatusCompileFailure:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// ResourceReport is the outcome of one resource within a run, in apply order.
type ResourceReport struct {
	// Resource identifies the resource.
	Resource Reference `json:"resource"`

	// Outcome is the final outcome for the resource.
	Outcome Outcome `json:"outcome"`

	// Detail carries the provider error or skip reason, if any.
	Detail string `json:"detail,omitempty"`

	// Refreshed indicates a refresh event was delivered to this resource.
	Refreshed bool `json:"refreshed,omitempty"`

	// Duration is the time spent reading and applying the resource.
	Duration time.Duration `json:"duration"`
}

// RefreshEvent records one delivered refresh: the target and the changed
// resources whose notifications were folded into the single delivery.
type RefreshEvent struct {
	// Target is the refreshed resource.
	Target Reference `json:"target"`

	// Notifiers are the changed resources that requested the refresh.
	Notifiers []Reference `json:"notifiers"`
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	// Total is the number of resources in the plan.
	Total int `json:"total"`

	// Unchanged is the number of resources already in their desired state.
	Unchanged int `json:"unchanged"`

	// Changed is the number of resources the providers mutated.
	Changed int `json:"changed"`

	// Failed is the number of resources whose provider reported a failure.
	Failed int `json:"failed"`

	// Skipped is the number of resources skipped due to dependency failure.
	Skipped int `json:"skipped"`

	// Refreshed is the number of refresh events delivered.
	Refreshed int `json:"refreshed"`
}

// RunReport is the output of one convergence run.
type RunReport struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run completed.
	CompletedAt time.Time `json:"completed_at"`

	// Resources are the per-resource outcomes in apply order.
	Resources []ResourceReport `json:"resources"`

	// Refreshes are the refresh events delivered during the run.
	Refreshes []RefreshEvent `json:"refreshes,omitempty"`

	// Error carries the compile error for compile-failure reports.
	Error string `json:"error,omitempty"`

	// Summary provides statistics about the run.
	Summary RunSummary `json:"summary"`
}

// Failed returns true if the run must be reported as failed: a compile error
// occurred or any resource ended failed or skipped.
func (r *RunReport) Failed() bool {
	return r.Status != RunStatusSuccess
}

// Duration returns the total run duration.
func (r *RunReport) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Outcome returns the recorded outcome for a resource, if present in the report.
func (r *RunReport) Outcome(ref Reference) (Outcome, bool) {
	for i := range r.Resources {
		if r.Resources[i].Resource == ref {
			return r.Resources[i].Outcome, true
		}
	}
	return "", false
}

// NewCompileFailureReport builds a report for a run that failed before any
// host mutation occurred.
func NewCompileFailureReport(id string, err error) *RunReport {
	now := time.Now()
	report := &RunReport{
		ID:          id,
		Status:      RunStatusCompileFailure,
		StartedAt:   now,
		CompletedAt: now,
		Resources:   []ResourceReport{},
	}
	if err != nil {
		report.Error = err.Error()
	}
	return report
}
