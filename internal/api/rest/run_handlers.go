package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/runner"
	"github.com/fortuna/gridiron/internal/store"
)

// RunHandler proxies API calls to the run service.
type RunHandler struct {
	service  RunService
	schedule ScheduleStatus
}

// NewRunHandler wires the REST layer to the run service.
func NewRunHandler(service RunService, schedule ScheduleStatus) *RunHandler {
	return &RunHandler{service: service, schedule: schedule}
}

// HandleRunRequest handles POST /api/v1/runs. An empty body queues a
// default rebuild.
func (h *RunHandler) HandleRunRequest(w http.ResponseWriter, r *http.Request) {
	var req runner.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	run, err := h.service.Enqueue(r.Context(), req)
	switch {
	case errors.Is(err, features.ErrInvalidOptions):
		respondError(w, http.StatusBadRequest, "Invalid run request", err)
		return
	case errors.Is(err, runner.ErrQueueFull):
		respondError(w, http.StatusServiceUnavailable, "Run queue is full, try again later", err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "Failed to enqueue run", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run": runPayload(run),
	})
}

// HandleRunStatus handles GET /api/v1/runs/status
func (h *RunHandler) HandleRunStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}

	respondJSON(w, http.StatusOK, buildStatusPayload(summary))
}

// HandleSchedule handles GET /api/v1/runs/schedule
func (h *RunHandler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	if h.schedule == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}

	payload := h.schedule.GetStatus()
	payload["enabled"] = true
	respondJSON(w, http.StatusOK, payload)
}

func buildStatusPayload(summary *runner.StatusSummary) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "idle",
		"message": "No active runs",
		"queued":  summary.Queued,
		"history": []map[string]interface{}{},
	}

	if summary.ActiveRun != nil {
		response["status"] = summary.ActiveRun.Status
		if summary.ActiveRun.StatusMessage.Valid {
			response["message"] = summary.ActiveRun.StatusMessage.String
		}
		response["active_run"] = runPayload(summary.ActiveRun)
	}
	if summary.LastRun != nil {
		response["last_run"] = summary.LastRun
	}

	history := make([]map[string]interface{}, 0, len(summary.History))
	for _, run := range summary.History {
		history = append(history, runPayload(run))
	}

	response["history"] = history
	return response
}

func runPayload(run *store.PipelineRun) map[string]interface{} {
	if run == nil {
		return nil
	}

	payload := map[string]interface{}{
		"run_id":       run.RunID,
		"status":       run.Status,
		"stats":        run.Stats,
		"windows":      run.Windows,
		"dry_run":      run.DryRun,
		"rows_in":      run.RowsIn,
		"rows_out":     run.RowsOut,
		"rows_dropped": run.RowsDropped,
		"created_at":   run.CreatedAt,
		"updated_at":   run.UpdatedAt,
	}

	if run.StatusMessage.Valid {
		payload["status_message"] = run.StatusMessage.String
	}
	if run.StartedAt.Valid {
		payload["started_at"] = run.StartedAt.Time
	}
	if run.CompletedAt.Valid {
		payload["completed_at"] = run.CompletedAt.Time
	}
	if run.LastError.Valid {
		payload["last_error"] = run.LastError.String
	}

	return payload
}
