package runner

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/store"
	"github.com/fortuna/gridiron/internal/store/repository"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunStore struct {
	mu       sync.Mutex
	runs     map[string]*store.PipelineRun
	order    []string
	messages []string
	resets   int
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[string]*store.PipelineRun)}
}

func (f *fakeRunStore) Create(_ context.Context, run *store.PipelineRun) (*store.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *run
	stored.Status = repository.RunQueued
	stored.CreatedAt = time.Now()
	f.runs[run.RunID] = &stored
	f.order = append(f.order, run.RunID)
	out := stored
	return &out, nil
}

func (f *fakeRunStore) update(runID string, fn func(*store.PipelineRun)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return errors.New("no such run")
	}
	fn(run)
	return nil
}

func (f *fakeRunStore) MarkRunning(_ context.Context, runID string) error {
	return f.update(runID, func(r *store.PipelineRun) { r.Status = repository.RunRunning })
}

func (f *fakeRunStore) UpdateMessage(_ context.Context, runID, message string) error {
	return f.update(runID, func(r *store.PipelineRun) {
		r.StatusMessage = sql.NullString{String: message, Valid: true}
		f.messages = append(f.messages, message)
	})
}

func (f *fakeRunStore) Complete(_ context.Context, runID string, rowsIn, rowsOut, rowsDropped int) error {
	return f.update(runID, func(r *store.PipelineRun) {
		r.Status = repository.RunCompleted
		r.RowsIn, r.RowsOut, r.RowsDropped = rowsIn, rowsOut, rowsDropped
	})
}

func (f *fakeRunStore) Fail(_ context.Context, runID string, runErr error) error {
	return f.update(runID, func(r *store.PipelineRun) {
		r.Status = repository.RunFailed
		r.LastError = sql.NullString{String: runErr.Error(), Valid: true}
	})
}

func (f *fakeRunStore) ResetStuckRuns(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return 0, nil
}

func (f *fakeRunStore) Active(context.Context) (*store.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		if f.runs[id].Status == repository.RunRunning {
			out := *f.runs[id]
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeRunStore) ListRecent(_ context.Context, limit int) ([]*store.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.PipelineRun
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		run := *f.runs[f.order[i]]
		out = append(out, &run)
	}
	return out, nil
}

func (f *fakeRunStore) status(runID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[runID].Status
}

type memoryCache struct {
	mu   sync.Mutex
	last *Summary
}

func (c *memoryCache) StoreRunSummary(_ context.Context, s *Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = s
	return nil
}

func (c *memoryCache) LastRunSummary(context.Context) (*Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, nil
}

type recordingEvents struct {
	mu   sync.Mutex
	runs []string
}

func (e *recordingEvents) PublishRunCompleted(_ context.Context, s *Summary) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, s.RunID)
	return nil
}

func (e *recordingEvents) published() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.runs...)
}

func newTestService(t *testing.T, sources SourceReader, opts ServiceOptions) (*Service, *fakeRunStore) {
	t.Helper()
	runs := newFakeRunStore()
	if opts.Defaults.Options.Stats == nil {
		opts.Defaults = defaultSpec()
	}
	svc := NewService(runs, NewRunner(sources, &fakeTables{}, quietLog()), opts, quietLog())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, runs
}

func TestServiceRunsQueuedRun(t *testing.T) {
	cache := &memoryCache{}
	events := &recordingEvents{}
	progress := &recordingReporter{complete: make(chan struct{})}
	svc, runs := newTestService(t, &fakeSources{src: sampleSources()}, ServiceOptions{
		Cache: cache, Events: events, Progress: progress,
	})
	svc.Start()
	assert.Equal(t, 1, runs.resets)

	run, err := svc.Enqueue(context.Background(), Request{Windows: []int{2, 4}})
	require.NoError(t, err)
	assert.Equal(t, repository.RunQueued, run.Status)
	assert.Equal(t, "2,4", run.Windows)
	assert.Len(t, run.RunID, 36)

	select {
	case <-progress.complete:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not complete")
	}

	require.Eventually(t, func() bool {
		return runs.status(run.RunID) == repository.RunCompleted && len(events.published()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status.ActiveRun)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, run.RunID, status.LastRun.RunID)
	assert.Equal(t, []int{2, 4}, status.LastRun.Windows)
	require.Len(t, status.History, 1)
	assert.Equal(t, 9, status.History[0].RowsOut)
	assert.Equal(t, 1, status.History[0].RowsDropped)

	runs.mu.Lock()
	assert.Contains(t, runs.messages, "✓ wrote qb_features (3 rows)")
	runs.mu.Unlock()
}

func TestServiceRecordsFailure(t *testing.T) {
	events := &recordingEvents{}
	svc, runs := newTestService(t, &fakeSources{err: errors.New("connection refused")}, ServiceOptions{Events: events})
	svc.Start()

	run, err := svc.Enqueue(context.Background(), Request{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return runs.status(run.RunID) == repository.RunFailed
	}, 5*time.Second, 10*time.Millisecond)

	runs.mu.Lock()
	assert.Contains(t, runs.runs[run.RunID].LastError.String, "connection refused")
	runs.mu.Unlock()
	assert.Empty(t, events.published())
}

func TestServiceSpec(t *testing.T) {
	svc, _ := newTestService(t, &fakeSources{}, ServiceOptions{})

	spec, err := svc.Spec(Request{Stats: []string{"targets"}, DryRun: true, TargetSeason: 2023, TargetWeek: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"targets"}, spec.Options.Stats)
	assert.Equal(t, features.DefaultWindows, spec.Options.Windows)
	assert.True(t, spec.DryRun)
	assert.True(t, spec.HasTarget())

	_, err = svc.Spec(Request{Stats: []string{"yards_after_catch"}})
	assert.ErrorIs(t, err, features.ErrInvalidOptions)

	_, err = svc.Spec(Request{TargetSeason: 2023})
	assert.ErrorIs(t, err, features.ErrInvalidOptions)
}

func TestServiceEnqueueRejectsInvalid(t *testing.T) {
	svc, runs := newTestService(t, &fakeSources{}, ServiceOptions{})

	_, err := svc.Enqueue(context.Background(), Request{Windows: []int{-1}})
	assert.ErrorIs(t, err, features.ErrInvalidOptions)
	assert.Empty(t, runs.order)
}

func TestServiceQueueFull(t *testing.T) {
	// worker not started, so the first run stays queued
	svc, runs := newTestService(t, &fakeSources{}, ServiceOptions{QueueSize: 1})

	first, err := svc.Enqueue(context.Background(), Request{})
	require.NoError(t, err)

	_, err = svc.Enqueue(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrQueueFull)

	assert.Equal(t, repository.RunQueued, runs.status(first.RunID))
	assert.Equal(t, repository.RunFailed, runs.status(runs.order[1]))

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.Queued)
	assert.Len(t, status.History, 2)
}

func TestRunReporterLogsMessageFailures(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	rep := &runReporter{ctx: context.Background(), repo: newFakeRunStore(), runID: "missing", log: log}
	rep.OnStageComplete(features.StageAssemble, 10, 4, time.Millisecond)
	rep.OnTableWritten(features.TableAllFeatures, 10)

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, logrus.DebugLevel, e.Level)
		assert.Equal(t, "missing", e.Data["run_id"])
		assert.EqualError(t, e.Data[logrus.ErrorKey].(error), "no such run")
	}
}
