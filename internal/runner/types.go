package runner

import (
	"time"

	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/store"
)

// RunSpec describes one feature build.
type RunSpec struct {
	Options features.Options
	// DryRun computes every table without writing any of them.
	DryRun    bool
	ExportDir string
	// TargetSeason and TargetWeek, when both set, also export a train/test
	// split per position for predicting that week.
	TargetSeason int
	TargetWeek   int
}

// HasTarget reports whether a train/test split was requested.
func (s RunSpec) HasTarget() bool {
	return s.TargetSeason > 0 && s.TargetWeek > 0
}

// Reporter receives lifecycle callbacks from the runner. It is also the
// pipeline's StageObserver.
type Reporter interface {
	OnRunStart(runID string, spec RunSpec)
	OnStageComplete(stage string, rows, columns int, elapsed time.Duration)
	OnTableWritten(table string, rows int)
	OnRunComplete(summary *Summary)
	OnRunError(runID string, err error)
}

// Summary is the outcome of a completed run.
type Summary struct {
	RunID       string                  `json:"run_id"`
	DryRun      bool                    `json:"dry_run"`
	Stats       []string                `json:"stats"`
	Windows     []int                   `json:"windows"`
	RowsIn      int                     `json:"rows_in"`
	RowsOut     int                     `json:"rows_out"`
	RowsDropped int                     `json:"rows_dropped"`
	Columns     int                     `json:"columns"`
	Tables      map[string]int          `json:"tables"`
	Exports     []string                `json:"exports,omitempty"`
	Assembly    features.AssembleReport `json:"assembly"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt time.Time               `json:"completed_at"`
}

// Duration returns how long the run took.
func (s *Summary) Duration() time.Duration {
	return s.CompletedAt.Sub(s.StartedAt)
}

// Request is a run submitted through the service. Empty fields take the
// service defaults.
type Request struct {
	Stats        []string `json:"stats,omitempty"`
	Windows      []int    `json:"windows,omitempty"`
	DryRun       bool     `json:"dry_run"`
	TargetSeason int      `json:"target_season,omitempty"`
	TargetWeek   int      `json:"target_week,omitempty"`
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveRun *store.PipelineRun   `json:"active_run,omitempty"`
	Queued    int                  `json:"queued"`
	LastRun   *Summary             `json:"last_run,omitempty"`
	History   []*store.PipelineRun `json:"recent_runs,omitempty"`
}
