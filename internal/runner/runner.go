package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/fortuna/gridiron/internal/export"
	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/store/repository"
	"github.com/sirupsen/logrus"
)

// SourceReader loads the raw source tables.
type SourceReader interface {
	LoadSources(ctx context.Context) (features.Sources, error)
}

// TableWriter replaces output tables. All tables of one call are replaced
// together or not at all.
type TableWriter interface {
	ReplaceTables(ctx context.Context, tables []repository.NamedTable) error
}

// Exporter writes a table to a file and returns its path.
type Exporter interface {
	Export(name string, t export.Table) (string, error)
}

// Runner executes run specs: load, build, persist and export.
type Runner struct {
	sources     SourceReader
	tables      TableWriter
	newExporter func(dir string) (Exporter, error)
	log         logrus.FieldLogger
}

// NewRunner constructs a runner writing parquet exports.
func NewRunner(sources SourceReader, tables TableWriter, log logrus.FieldLogger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		sources: sources,
		tables:  tables,
		newExporter: func(dir string) (Exporter, error) {
			return export.NewWriter(dir)
		},
		log: log.WithField("component", "runner"),
	}
}

type namedTable struct {
	name  string
	panel *features.Panel
}

// Run executes spec, reporting progress via the Reporter if provided.
func (r *Runner) Run(ctx context.Context, runID string, spec RunSpec, reporter Reporter) (*Summary, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	log := r.log.WithField("run_id", runID)
	reporter.OnRunStart(runID, spec)

	summary, err := r.run(ctx, runID, spec, reporter, log)
	if err != nil {
		log.WithError(err).Error("run failed")
		reporter.OnRunError(runID, err)
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"rows":     summary.RowsOut,
		"dropped":  summary.RowsDropped,
		"duration": summary.Duration().String(),
	}).Info("✓ run complete")
	reporter.OnRunComplete(summary)
	return summary, nil
}

func (r *Runner) run(ctx context.Context, runID string, spec RunSpec, reporter Reporter, log logrus.FieldLogger) (*Summary, error) {
	started := time.Now().UTC()

	pipe, err := features.New(spec.Options, log)
	if err != nil {
		return nil, err
	}

	src, err := r.sources.LoadSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	log.WithFields(logrus.Fields{
		"weekly_stats": len(src.Stats),
		"games":        len(src.Games),
		"weather":      len(src.Weather),
	}).Info("sources loaded")

	res, err := pipe.Run(ctx, src, reporter)
	if err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}

	outputs := []namedTable{{features.TableAllFeatures, res.Panel}}
	for _, pos := range features.ModelPositions {
		outputs = append(outputs, namedTable{features.PositionTable(pos), res.Positions[pos]})
	}

	summary := &Summary{
		RunID:       runID,
		DryRun:      spec.DryRun,
		Stats:       spec.Options.Stats,
		Windows:     spec.Options.Windows,
		RowsIn:      res.Report.StatRows,
		RowsOut:     res.Panel.Len(),
		RowsDropped: res.Report.StatRows - res.Panel.Len(),
		Columns:     len(res.Panel.Schema()),
		Tables:      make(map[string]int, len(outputs)),
		Assembly:    res.Report,
		StartedAt:   started,
	}
	for _, o := range outputs {
		summary.Tables[o.name] = o.panel.Len()
	}

	if spec.DryRun {
		log.Info("dry run, no tables written")
	} else {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tables := make([]repository.NamedTable, len(outputs))
		for i, o := range outputs {
			tables[i] = repository.NamedTable{Name: o.name, Table: o.panel}
		}
		if err := r.tables.ReplaceTables(ctx, tables); err != nil {
			return nil, fmt.Errorf("write feature tables: %w", err)
		}
		for _, o := range outputs {
			reporter.OnTableWritten(o.name, o.panel.Len())
		}
	}

	if spec.ExportDir != "" {
		paths, err := r.export(spec, outputs, res)
		if err != nil {
			return nil, err
		}
		summary.Exports = paths
	}

	summary.CompletedAt = time.Now().UTC()
	return summary, nil
}

func (r *Runner) export(spec RunSpec, outputs []namedTable, res *features.Result) ([]string, error) {
	exp, err := r.newExporter(spec.ExportDir)
	if err != nil {
		return nil, err
	}

	files := append([]namedTable(nil), outputs...)
	if spec.HasTarget() {
		for _, pos := range features.ModelPositions {
			train, test, err := features.TrainTestSplit(res.Positions[pos], spec.TargetSeason, spec.TargetWeek)
			if err != nil {
				return nil, err
			}
			base := features.PositionTable(pos)
			files = append(files,
				namedTable{fmt.Sprintf("%s_train_%d_w%d", base, spec.TargetSeason, spec.TargetWeek), train},
				namedTable{fmt.Sprintf("%s_test_%d_w%d", base, spec.TargetSeason, spec.TargetWeek), test},
			)
		}
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path, err := exp.Export(f.name, f.panel)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

type nopReporter struct{}

func (nopReporter) OnRunStart(string, RunSpec) {}
func (nopReporter) OnStageComplete(string, int, int, time.Duration) {}
func (nopReporter) OnTableWritten(string, int) {}
func (nopReporter) OnRunComplete(*Summary) {}
func (nopReporter) OnRunError(string, error) {}

// MultiReporter fans callbacks out to each reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) OnRunStart(runID string, spec RunSpec) {
	for _, r := range m {
		r.OnRunStart(runID, spec)
	}
}

func (m MultiReporter) OnStageComplete(stage string, rows, columns int, elapsed time.Duration) {
	for _, r := range m {
		r.OnStageComplete(stage, rows, columns, elapsed)
	}
}

func (m MultiReporter) OnTableWritten(table string, rows int) {
	for _, r := range m {
		r.OnTableWritten(table, rows)
	}
}

func (m MultiReporter) OnRunComplete(summary *Summary) {
	for _, r := range m {
		r.OnRunComplete(summary)
	}
}

func (m MultiReporter) OnRunError(runID string, err error) {
	for _, r := range m {
		r.OnRunError(runID, err)
	}
}
