package stores

import (
	"context"
	"time"

	"github.com/openconverge/openconverge/pkg/engine"
)

// RunRecord is the persisted form of one convergence run.
type RunRecord struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Total       int        `json:"total"`
	Unchanged   int        `json:"unchanged"`
	Changed     int        `json:"changed"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	Refreshed   int        `json:"refreshed"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ResourceRecord is the persisted outcome of one resource within a run.
type ResourceRecord struct {
	RunID        string  `json:"run_id"`
	Position     int     `json:"position"`
	ResourceType string  `json:"resource_type"`
	ResourceName string  `json:"resource_name"`
	Outcome      string  `json:"outcome"`
	Detail       *string `json:"detail,omitempty"`
	Refreshed    bool    `json:"refreshed"`
	DurationMS   int64   `json:"duration_ms"`
}

// Store defines the interface for run history persistence.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run history operations
	SaveReport(ctx context.Context, report *engine.RunReport) error
	GetReport(ctx context.Context, id string) (*engine.RunReport, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error)
	DeleteRun(ctx context.Context, id string) error

	// Utility
	HealthCheck(ctx context.Context) error
}
