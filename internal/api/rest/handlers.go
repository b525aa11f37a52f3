package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/runner"
	"github.com/fortuna/gridiron/internal/store"
	"github.com/fortuna/gridiron/internal/store/repository"
	"github.com/gorilla/mux"
)

// MaxFeatureLimit caps the rows one feature request may return.
const MaxFeatureLimit = 5000

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// FeatureReader reads built feature tables.
type FeatureReader interface {
	ReadFeatures(ctx context.Context, name string, q repository.FeatureQuery) ([]map[string]any, error)
	TableExists(ctx context.Context, name string) (bool, error)
}

// RunService queues runs and reports their status.
type RunService interface {
	Enqueue(ctx context.Context, req runner.Request) (*store.PipelineRun, error)
	GetStatus(ctx context.Context) (*runner.StatusSummary, error)
}

// ScheduleStatus describes the rebuild scheduler.
type ScheduleStatus interface {
	GetStatus() map[string]interface{}
}

// Dependencies are what the API serves from. Cache and Schedule may be nil.
type Dependencies struct {
	DB       HealthChecker
	Cache    HealthChecker
	Features FeatureReader
	Runs     RunService
	Schedule ScheduleStatus
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	db       HealthChecker
	cache    HealthChecker
	features FeatureReader
}

// NewHandler creates a new handler
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		db:       deps.DB,
		cache:    deps.Cache,
		features: deps.Features,
	}
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := map[string]string{"database": "ok"}

	if err := h.db.HealthCheck(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = err.Error()
	}
	if h.cache != nil {
		checks["redis"] = "ok"
		if err := h.cache.HealthCheck(r.Context()); err != nil {
			// the cache is optional; report it without failing the check
			checks["redis"] = err.Error()
		}
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":  state,
		"service": "gridiron",
		"checks":  checks,
	})
}

// ListFeatureTables reports each output table and whether it has been built.
func (h *Handler) ListFeatureTables(w http.ResponseWriter, r *http.Request) {
	tables := make([]map[string]interface{}, 0, len(features.OutputTables()))
	for _, name := range features.OutputTables() {
		exists, err := h.features.TableExists(r.Context(), name)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to inspect feature tables", err)
			return
		}
		tables = append(tables, map[string]interface{}{
			"table": name,
			"built": exists,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

// GetFeatures returns rows of one feature table
func (h *Handler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]

	q, err := parseFeatureQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}

	exists, err := h.features.TableExists(r.Context(), table)
	if errors.Is(err, repository.ErrUnknownTable) {
		respondError(w, http.StatusNotFound, "Unknown feature table", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to inspect feature table", err)
		return
	}
	if !exists {
		respondError(w, http.StatusNotFound, "Feature table has not been built yet", nil)
		return
	}

	rows, err := h.features.ReadFeatures(r.Context(), table, q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch features", err)
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"table": table,
		"count": len(rows),
		"rows":  rows,
	})
}

func parseFeatureQuery(r *http.Request) (repository.FeatureQuery, error) {
	q := repository.FeatureQuery{Limit: repository.DefaultFeatureLimit}
	params := r.URL.Query()

	for _, p := range []struct {
		key string
		dst *int
	}{{"season", &q.Season}, {"week", &q.Week}, {"limit", &q.Limit}} {
		raw := params.Get(p.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, fmt.Errorf("%s must be a positive integer, got %q", p.key, raw)
		}
		*p.dst = n
	}
	if q.Limit > MaxFeatureLimit {
		q.Limit = MaxFeatureLimit
	}

	if raw := params.Get("player_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			return q, fmt.Errorf("player_id must be a positive integer, got %q", raw)
		}
		q.PlayerID = id
	}

	return q, nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	respondJSON(w, status, response)
}
