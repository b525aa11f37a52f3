package websocket

import (
	"encoding/json"
	"time"

	"github.com/fortuna/gridiron/internal/runner"
	"github.com/sirupsen/logrus"
)

// Event types sent to /ws/runs subscribers.
const (
	EventRunStarted   = "run_started"
	EventStage        = "stage_complete"
	EventTableWritten = "table_written"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// Event is one progress message.
type Event struct {
	Type      string          `json:"type"`
	RunID     string          `json:"run_id,omitempty"`
	Stage     string          `json:"stage,omitempty"`
	Table     string          `json:"table,omitempty"`
	Rows      int             `json:"rows,omitempty"`
	Columns   int             `json:"columns,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms,omitempty"`
	Summary   *runner.Summary `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProgressReporter broadcasts run progress to every connected client.
// The runner calls it from a single goroutine per run.
type ProgressReporter struct {
	hub   *Hub
	runID string
	log   logrus.FieldLogger
}

// NewProgressReporter returns a reporter publishing through hub.
func NewProgressReporter(hub *Hub) *ProgressReporter {
	return &ProgressReporter{hub: hub, log: hub.log}
}

func (p *ProgressReporter) OnRunStart(runID string, _ runner.RunSpec) {
	p.runID = runID
	p.send(Event{Type: EventRunStarted})
}

func (p *ProgressReporter) OnStageComplete(stage string, rows, columns int, elapsed time.Duration) {
	p.send(Event{
		Type:      EventStage,
		Stage:     stage,
		Rows:      rows,
		Columns:   columns,
		ElapsedMS: elapsed.Milliseconds(),
	})
}

func (p *ProgressReporter) OnTableWritten(table string, rows int) {
	p.send(Event{Type: EventTableWritten, Table: table, Rows: rows})
}

func (p *ProgressReporter) OnRunComplete(summary *runner.Summary) {
	p.send(Event{Type: EventRunCompleted, RunID: summary.RunID, Rows: summary.RowsOut, Summary: summary})
}

func (p *ProgressReporter) OnRunError(runID string, err error) {
	p.send(Event{Type: EventRunFailed, RunID: runID, Error: err.Error()})
}

func (p *ProgressReporter) send(e Event) {
	if e.RunID == "" {
		e.RunID = p.runID
	}
	e.Timestamp = time.Now().UTC()

	data, err := json.Marshal(e)
	if err != nil {
		p.log.WithError(err).Warn("failed to encode progress event")
		return
	}
	p.hub.Broadcast(data)
}
