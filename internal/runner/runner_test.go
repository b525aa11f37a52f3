package runner

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fortuna/gridiron/internal/export"
	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/store"
	"github.com/fortuna/gridiron/internal/store/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

type fakeSources struct {
	src features.Sources
	err error
}

func (f *fakeSources) LoadSources(context.Context) (features.Sources, error) {
	return f.src, f.err
}

// Two teams over three weeks; one stat row has no game.
func sampleSources() features.Sources {
	var src features.Sources
	for w := 1; w <= 3; w++ {
		src.Games = append(src.Games, store.Game{
			Season: 2023, Week: w, HomeTeam: "KC", AwayTeam: "DET",
			Stadium: sql.NullString{String: "Arrowhead", Valid: true},
		})
		for id, p := range []struct {
			pos, team, opp string
		}{{"QB", "KC", "DET"}, {"WR", "DET", "KC"}, {"K", "KC", "DET"}} {
			src.Stats = append(src.Stats, store.WeeklyStat{
				PlayerID: int64(id + 1), PlayerName: "P", Position: p.pos,
				TeamAbbreviation: p.team, OpponentTeam: p.opp, Season: 2023, Week: w,
				FantasyPoints: nf(float64(10 * w)), Attempts: nf(30), Carries: nf(4), Targets: nf(7),
			})
		}
	}
	src.Stats = append(src.Stats, store.WeeklyStat{
		PlayerID: 9, Position: "RB", TeamAbbreviation: "NYJ", Season: 2023, Week: 1,
	})
	return src
}

type fakeTables struct {
	mu      sync.Mutex
	written map[string]int
	calls   int
	err     error
}

func (f *fakeTables) ReplaceTables(_ context.Context, tables []repository.NamedTable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.written == nil {
		f.written = make(map[string]int)
	}
	for _, nt := range tables {
		f.written[nt.Name] = nt.Table.Len()
	}
	return nil
}

type fakeExporter struct {
	names []string
	rows  map[string]int
}

func (f *fakeExporter) Export(name string, t export.Table) (string, error) {
	f.names = append(f.names, name)
	if f.rows == nil {
		f.rows = make(map[string]int)
	}
	f.rows[name] = t.Len()
	return "/exports/" + name + ".parquet", nil
}

type recordingReporter struct {
	mu       sync.Mutex
	started  string
	stages   []string
	tables   []string
	summary  *Summary
	errs     []error
	complete chan struct{}
}

func (r *recordingReporter) OnRunStart(runID string, _ RunSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = runID
}

func (r *recordingReporter) OnStageComplete(stage string, _, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recordingReporter) OnTableWritten(table string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = append(r.tables, table)
}

func (r *recordingReporter) OnRunComplete(s *Summary) {
	r.mu.Lock()
	r.summary = s
	r.mu.Unlock()
	if r.complete != nil {
		close(r.complete)
	}
}

func (r *recordingReporter) OnRunError(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func defaultSpec() RunSpec {
	return RunSpec{Options: features.DefaultOptions()}
}

func TestRunnerRun(t *testing.T) {
	tables := &fakeTables{}
	r := NewRunner(&fakeSources{src: sampleSources()}, tables, quietLog())
	rep := &recordingReporter{}

	summary, err := r.Run(context.Background(), "run-1", defaultSpec(), rep)
	require.NoError(t, err)

	assert.Equal(t, "run-1", rep.started)
	assert.Equal(t, features.Stages, rep.stages)
	assert.Equal(t, features.OutputTables(), rep.tables)
	assert.Same(t, summary, rep.summary)
	assert.Empty(t, rep.errs)

	assert.Equal(t, 10, summary.RowsIn)
	assert.Equal(t, 9, summary.RowsOut)
	assert.Equal(t, 1, summary.RowsDropped)
	assert.Equal(t, 1, summary.Assembly.UnmatchedRows)
	assert.False(t, summary.CompletedAt.Before(summary.StartedAt))

	assert.Equal(t, map[string]int{
		"player_weekly_features": 9,
		"qb_features":            3,
		"rb_features":            0,
		"wr_features":            3,
		"te_features":            0,
	}, tables.written)
	assert.Equal(t, 1, tables.calls, "every output table is replaced in one call")
	assert.Equal(t, tables.written, summary.Tables)
}

func TestRunnerDryRunWritesNothing(t *testing.T) {
	tables := &fakeTables{}
	r := NewRunner(&fakeSources{src: sampleSources()}, tables, quietLog())
	rep := &recordingReporter{}

	spec := defaultSpec()
	spec.DryRun = true
	summary, err := r.Run(context.Background(), "dry", spec, rep)
	require.NoError(t, err)

	assert.Empty(t, tables.written)
	assert.Empty(t, rep.tables)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 9, summary.Tables[features.TableAllFeatures])
}

func TestRunnerExportsWithTarget(t *testing.T) {
	exp := &fakeExporter{}
	r := NewRunner(&fakeSources{src: sampleSources()}, &fakeTables{}, quietLog())
	r.newExporter = func(dir string) (Exporter, error) {
		assert.Equal(t, "/exports", dir)
		return exp, nil
	}

	spec := defaultSpec()
	spec.ExportDir = "/exports"
	spec.TargetSeason, spec.TargetWeek = 2023, 3
	summary, err := r.Run(context.Background(), "exp", spec, nil)
	require.NoError(t, err)

	assert.Len(t, summary.Exports, 5+2*len(features.ModelPositions))
	assert.Equal(t, 2, exp.rows["qb_features_train_2023_w3"])
	assert.Equal(t, 1, exp.rows["qb_features_test_2023_w3"])
	assert.Equal(t, 0, exp.rows["te_features_test_2023_w3"])

	names := append([]string(nil), exp.names[:5]...)
	sort.Strings(names)
	want := features.OutputTables()
	sort.Strings(want)
	assert.Equal(t, want, names)
}

func TestRunnerErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("sources", func(t *testing.T) {
		rep := &recordingReporter{}
		r := NewRunner(&fakeSources{err: boom}, &fakeTables{}, quietLog())
		_, err := r.Run(context.Background(), "x", defaultSpec(), rep)
		assert.ErrorIs(t, err, boom)
		assert.Len(t, rep.errs, 1)
		assert.Nil(t, rep.summary)
	})

	t.Run("write", func(t *testing.T) {
		rep := &recordingReporter{}
		r := NewRunner(&fakeSources{src: sampleSources()}, &fakeTables{err: boom}, quietLog())
		_, err := r.Run(context.Background(), "x", defaultSpec(), rep)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, rep.tables)
	})

	t.Run("invalid options", func(t *testing.T) {
		r := NewRunner(&fakeSources{src: sampleSources()}, &fakeTables{}, quietLog())
		spec := defaultSpec()
		spec.Options.Windows = []int{0}
		_, err := r.Run(context.Background(), "x", spec, nil)
		assert.ErrorIs(t, err, features.ErrInvalidOptions)
	})
}
