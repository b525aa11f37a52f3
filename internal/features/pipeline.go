package features

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Stage names, in execution order.
const (
	StageAssemble         = "assemble"
	StagePlayerAggregates = "player_aggregates"
	StageOpportunity      = "opportunity_share"
	StagePassRushRate     = "pass_rush_rate"
	StageOpponent         = "opponent_strength"
	StageHomeAway         = "home_away"
	StagePartition        = "partition"
)

// Stages lists every stage in the order Run executes them.
var Stages = []string{
	StageAssemble,
	StagePlayerAggregates,
	StageOpportunity,
	StagePassRushRate,
	StageOpponent,
	StageHomeAway,
	StagePartition,
}

// ErrInvalidOptions is returned by Options.Validate.
var ErrInvalidOptions = errors.New("invalid pipeline options")

// Options selects which features a run computes. The home/away stage
// aggregates the same stats and windows as the player stage.
type Options struct {
	Stats   []string
	Windows []int
}

// DefaultOptions returns the full feature set.
func DefaultOptions() Options {
	return Options{
		Stats:   append([]string(nil), DefaultStats...),
		Windows: append([]int(nil), DefaultWindows...),
	}
}

// Validate checks that every stat is a box-score column and every window is
// a positive, distinct size.
func (o Options) Validate() error {
	if len(o.Stats) == 0 {
		return fmt.Errorf("%w: no stats", ErrInvalidOptions)
	}
	if len(o.Windows) == 0 {
		return fmt.Errorf("%w: no windows", ErrInvalidOptions)
	}
	base := make(map[string]struct{})
	for _, c := range BaseColumns() {
		base[c] = struct{}{}
	}
	seenStat := make(map[string]struct{}, len(o.Stats))
	for _, s := range o.Stats {
		if _, ok := base[s]; !ok {
			return fmt.Errorf("%w: unknown stat %q", ErrInvalidOptions, s)
		}
		if _, dup := seenStat[s]; dup {
			return fmt.Errorf("%w: stat %q listed twice", ErrInvalidOptions, s)
		}
		seenStat[s] = struct{}{}
	}
	seenWindow := make(map[int]struct{}, len(o.Windows))
	for _, w := range o.Windows {
		if w < 1 {
			return fmt.Errorf("%w: window %d must be positive", ErrInvalidOptions, w)
		}
		if _, dup := seenWindow[w]; dup {
			return fmt.Errorf("%w: window %d listed twice", ErrInvalidOptions, w)
		}
		seenWindow[w] = struct{}{}
	}
	return nil
}

// StageObserver is notified after each stage finishes.
type StageObserver interface {
	OnStageComplete(stage string, rows, columns int, elapsed time.Duration)
}

// Result is the output of one pipeline run.
type Result struct {
	Panel     *Panel
	Positions map[Position]*Panel
	Report    AssembleReport
}

// Pipeline runs the feature stages over a set of sources.
type Pipeline struct {
	opts Options
	log  logrus.FieldLogger
}

// New returns a pipeline for opts.
func New(opts Options, log logrus.FieldLogger) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{opts: opts, log: log}, nil
}

// Options returns the options the pipeline was built with.
func (p *Pipeline) Options() Options {
	return p.opts
}

type stageFunc func(*Panel) (*Panel, error)

// Run assembles the panel from src and applies every stage in order. Each
// stage works on a copy, so src and intermediate panels are never modified.
// ctx is checked between stages.
func (p *Pipeline) Run(ctx context.Context, src Sources, obs StageObserver) (*Result, error) {
	start := time.Now()
	panel, report, err := Assemble(src, p.log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageAssemble, err)
	}
	p.complete(obs, StageAssemble, panel, start)

	stages := []struct {
		name string
		fn   stageFunc
	}{
		{StagePlayerAggregates, func(in *Panel) (*Panel, error) {
			return AddPlayerAggregates(in, p.opts.Stats, p.opts.Windows)
		}},
		{StageOpportunity, func(in *Panel) (*Panel, error) {
			return AddOpportunityShare(in, p.opts.Windows)
		}},
		{StagePassRushRate, AddPassRushRate},
		{StageOpponent, AddOpponentStrength},
		{StageHomeAway, func(in *Panel) (*Panel, error) {
			return AddHomeAwayAggregates(in, p.opts.Stats, p.opts.Windows)
		}},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start = time.Now()
		out, err := s.fn(panel)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		if err := checkRowCount(s.name, panel.Len(), out.Len()); err != nil {
			return nil, err
		}
		panel = out
		p.complete(obs, s.name, panel, start)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start = time.Now()
	positions := SplitByPosition(panel)
	partitioned := 0
	for _, pos := range ModelPositions {
		partitioned += positions[pos].Len()
	}
	p.log.WithFields(logrus.Fields{
		"stage":    StagePartition,
		"rows":     partitioned,
		"excluded": panel.Len() - partitioned,
	}).Info("panel split by position")
	if obs != nil {
		obs.OnStageComplete(StagePartition, partitioned, len(panel.columns), time.Since(start))
	}

	return &Result{Panel: panel, Positions: positions, Report: report}, nil
}

func (p *Pipeline) complete(obs StageObserver, stage string, panel *Panel, start time.Time) {
	elapsed := time.Since(start)
	p.log.WithFields(logrus.Fields{
		"stage":   stage,
		"rows":    panel.Len(),
		"columns": len(panel.columns),
		"elapsed": elapsed.String(),
	}).Info("stage complete")
	if obs != nil {
		obs.OnStageComplete(stage, panel.Len(), len(panel.columns), elapsed)
	}
}
