package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned by Enqueue when too many runs are waiting.
var ErrQueueFull = errors.New("run queue is full")

// RunStore persists run records.
type RunStore interface {
	Create(ctx context.Context, run *store.PipelineRun) (*store.PipelineRun, error)
	MarkRunning(ctx context.Context, runID string) error
	UpdateMessage(ctx context.Context, runID, message string) error
	Complete(ctx context.Context, runID string, rowsIn, rowsOut, rowsDropped int) error
	Fail(ctx context.Context, runID string, runErr error) error
	ResetStuckRuns(ctx context.Context) (int64, error)
	Active(ctx context.Context) (*store.PipelineRun, error)
	ListRecent(ctx context.Context, limit int) ([]*store.PipelineRun, error)
}

// SummaryCache keeps the latest run summary for fast reads.
type SummaryCache interface {
	StoreRunSummary(ctx context.Context, summary *Summary) error
	LastRunSummary(ctx context.Context) (*Summary, error)
}

// EventPublisher announces completed runs to downstream consumers.
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, summary *Summary) error
}

// ServiceOptions configures a Service. Cache, Events and Progress are optional.
type ServiceOptions struct {
	Defaults  RunSpec
	Cache     SummaryCache
	Events    EventPublisher
	Progress  Reporter
	QueueSize int
}

type queuedRun struct {
	id   string
	spec RunSpec
}

// Service coordinates run persistence, execution, and status reporting.
// Runs execute one at a time on a single worker.
type Service struct {
	repo   RunStore
	runner *Runner
	opts   ServiceOptions

	historyLimit int
	queue        chan queuedRun

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log logrus.FieldLogger
}

// NewService constructs a Service. Call Start to launch the worker.
func NewService(repo RunStore, runner *Runner, opts ServiceOptions, log logrus.FieldLogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.QueueSize <= 0 {
		opts.QueueSize = 8
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Service{
		repo:         repo,
		runner:       runner,
		opts:         opts,
		historyLimit: 10,
		queue:        make(chan queuedRun, opts.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
		log:          log.WithField("component", "runs"),
	}
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if n, err := s.repo.ResetStuckRuns(s.ctx); err != nil {
		s.log.WithError(err).Warn("failed to reset interrupted runs")
	} else if n > 0 {
		s.log.WithField("runs", n).Info("marked interrupted runs as failed")
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops the worker and waits for it to exit.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Spec resolves req against the service defaults and validates it.
func (s *Service) Spec(req Request) (RunSpec, error) {
	spec := s.opts.Defaults
	spec.Options.Stats = append([]string(nil), spec.Options.Stats...)
	spec.Options.Windows = append([]int(nil), spec.Options.Windows...)

	if len(req.Stats) > 0 {
		spec.Options.Stats = req.Stats
	}
	if len(req.Windows) > 0 {
		spec.Options.Windows = req.Windows
	}
	spec.DryRun = req.DryRun
	spec.TargetSeason = req.TargetSeason
	spec.TargetWeek = req.TargetWeek

	if (spec.TargetSeason > 0) != (spec.TargetWeek > 0) {
		return spec, fmt.Errorf("%w: target_season and target_week must be set together", features.ErrInvalidOptions)
	}
	if err := spec.Options.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

// Enqueue records a queued run for req and hands it to the worker.
func (s *Service) Enqueue(ctx context.Context, req Request) (*store.PipelineRun, error) {
	spec, err := s.Spec(req)
	if err != nil {
		return nil, err
	}

	run := &store.PipelineRun{
		RunID:         uuid.NewString(),
		Stats:         strings.Join(spec.Options.Stats, ","),
		Windows:       joinInts(spec.Options.Windows),
		DryRun:        spec.DryRun,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
	}

	stored, err := s.repo.Create(ctx, run)
	if err != nil {
		return nil, err
	}

	select {
	case s.queue <- queuedRun{id: stored.RunID, spec: spec}:
	default:
		_ = s.repo.Fail(ctx, stored.RunID, ErrQueueFull)
		return nil, ErrQueueFull
	}

	s.log.WithField("run_id", stored.RunID).Info("run queued")
	return stored, nil
}

// GetStatus returns the running run, queue depth, the cached last summary
// and recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.Active(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListRecent(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	status := &StatusSummary{
		ActiveRun: active,
		Queued:    len(s.queue),
		History:   history,
	}
	if s.opts.Cache != nil {
		last, err := s.opts.Cache.LastRunSummary(ctx)
		if err != nil {
			s.log.WithError(err).Warn("failed to read cached run summary")
		}
		status.LastRun = last
	}
	return status, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case q := <-s.queue:
			s.execute(q)
		}
	}
}

func (s *Service) execute(q queuedRun) {
	if err := s.repo.MarkRunning(s.ctx, q.id); err != nil {
		s.log.WithError(err).WithField("run_id", q.id).Error("failed to start run")
		return
	}

	reporters := MultiReporter{&runReporter{ctx: s.ctx, repo: s.repo, runID: q.id, log: s.log}}
	if s.opts.Progress != nil {
		reporters = append(reporters, s.opts.Progress)
	}

	summary, err := s.runner.Run(s.ctx, q.id, q.spec, reporters)
	if err != nil {
		// the service context may be cancelled; record the failure regardless
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ferr := s.repo.Fail(ctx, q.id, err); ferr != nil {
			s.log.WithError(ferr).Error("failed to record run failure")
		}
		return
	}

	if err := s.repo.Complete(s.ctx, q.id, summary.RowsIn, summary.RowsOut, summary.RowsDropped); err != nil {
		s.log.WithError(err).Error("failed to record run completion")
	}
	if s.opts.Cache != nil {
		if err := s.opts.Cache.StoreRunSummary(s.ctx, summary); err != nil {
			s.log.WithError(err).Warn("failed to cache run summary")
		}
	}
	if s.opts.Events != nil {
		if err := s.opts.Events.PublishRunCompleted(s.ctx, summary); err != nil {
			s.log.WithError(err).Warn("failed to publish run event")
		}
	}
}

// runReporter mirrors progress into the run record.
type runReporter struct {
	ctx   context.Context
	repo  RunStore
	runID string
	log   logrus.FieldLogger
}

func (r *runReporter) OnRunStart(string, RunSpec) {}

func (r *runReporter) OnStageComplete(stage string, rows, _ int, _ time.Duration) {
	r.update(fmt.Sprintf("✓ %s (%d rows)", stage, rows))
}

func (r *runReporter) OnTableWritten(table string, rows int) {
	r.update(fmt.Sprintf("✓ wrote %s (%d rows)", table, rows))
}

func (r *runReporter) update(msg string) {
	if err := r.repo.UpdateMessage(r.ctx, r.runID, msg); err != nil && r.log != nil {
		r.log.WithError(err).WithField("run_id", r.runID).Debug("failed to update run message")
	}
}

func (r *runReporter) OnRunComplete(*Summary) {}

func (r *runReporter) OnRunError(string, error) {}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
