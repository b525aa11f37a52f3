package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/runner"
	"github.com/fortuna/gridiron/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RunQueue is the slice of the run service the scheduler drives.
type RunQueue interface {
	Enqueue(ctx context.Context, req runner.Request) (*store.PipelineRun, error)
	GetStatus(ctx context.Context) (*runner.StatusSummary, error)
}

// Config holds scheduler configuration
type Config struct {
	Schedule   string        // standard 5-field cron spec
	MaxRetries int           // Default: 3
	RetryDelay time.Duration // Default: 5s
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		Schedule:   "0 6 * * 2",
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
	}
}

// Orchestrator queues a full feature rebuild on a cron schedule.
type Orchestrator struct {
	runs   RunQueue
	config *Config
	cron   *cron.Cron
	entry  cron.EntryID

	mu      sync.Mutex
	lastRun string
	lastErr error

	ctx    context.Context
	cancel context.CancelFunc
	log    logrus.FieldLogger
}

// NewOrchestrator creates a new scheduler orchestrator
func NewOrchestrator(runs RunQueue, config *Config, log logrus.FieldLogger) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	o := &Orchestrator{
		runs:   runs,
		config: config,
		cron:   cron.New(),
		log:    log.WithField("component", "scheduler"),
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())

	entry, err := o.cron.AddFunc(config.Schedule, func() { o.runScheduled(o.ctx) })
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", config.Schedule, err)
	}
	o.entry = entry

	return o, nil
}

// Start begins the cron loop. It returns immediately.
func (o *Orchestrator) Start() {
	o.cron.Start()
	o.log.WithFields(logrus.Fields{
		"schedule": o.config.Schedule,
		"next_run": o.cron.Entry(o.entry).Next.Format(time.RFC3339),
	}).Info("✓ Rebuild scheduler started")
}

// Stop gracefully stops the scheduler, waiting for an in-flight trigger.
func (o *Orchestrator) Stop() {
	o.cancel()
	<-o.cron.Stop().Done()
	o.log.Info("✓ Rebuild scheduler stopped")
}

// runScheduled enqueues a default rebuild unless one is already in flight.
func (o *Orchestrator) runScheduled(ctx context.Context) {
	status, err := o.runs.GetStatus(ctx)
	if err == nil && (status.ActiveRun != nil || status.Queued > 0) {
		o.log.Info("run already in progress, skipping scheduled rebuild")
		return
	}

	if _, err := o.Trigger(ctx); err != nil {
		o.log.WithError(err).Error("❌ scheduled rebuild could not be queued")
	}
}

// Trigger queues a default rebuild now, retrying transient failures.
func (o *Orchestrator) Trigger(ctx context.Context) (*store.PipelineRun, error) {
	var (
		run *store.PipelineRun
		err error
	)

retry:
	for attempt := 1; attempt <= o.config.MaxRetries; attempt++ {
		run, err = o.runs.Enqueue(ctx, runner.Request{})
		if err == nil || errors.Is(err, runner.ErrQueueFull) || errors.Is(err, features.ErrInvalidOptions) {
			break
		}

		o.log.WithError(err).Warnf("⚠️  enqueue attempt %d/%d failed", attempt, o.config.MaxRetries)
		if attempt < o.config.MaxRetries {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				break retry
			case <-time.After(o.config.RetryDelay):
			}
		}
	}

	o.mu.Lock()
	o.lastErr = err
	if err == nil {
		o.lastRun = run.RunID
	}
	o.mu.Unlock()

	if err != nil {
		return nil, err
	}
	o.log.WithField("run_id", run.RunID).Info("✓ Rebuild queued")
	return run, nil
}

// GetStatus returns current scheduler status
func (o *Orchestrator) GetStatus() map[string]interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := map[string]interface{}{
		"schedule":    o.config.Schedule,
		"next_run":    o.cron.Entry(o.entry).Next,
		"last_run_id": o.lastRun,
		"max_retries": o.config.MaxRetries,
		"retry_delay": o.config.RetryDelay.String(),
	}
	if o.lastErr != nil {
		status["last_error"] = o.lastErr.Error()
	}
	return status
}
