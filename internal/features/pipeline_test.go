package features

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fortuna/gridiron/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	stages []string
	rows   []int
}

func (o *recordingObserver) OnStageComplete(stage string, rows, _ int, _ time.Duration) {
	o.stages = append(o.stages, stage)
	o.rows = append(o.rows, rows)
}

func seasonFixture() *fixture {
	f := &fixture{}
	for w := 1; w <= 6; w++ {
		if w%2 == 1 {
			f.game(2023, w, "A", "B", "Stadium A").weatherAt(2023, w, "Stadium A", 40, 0, 10)
		} else {
			f.game(2023, w, "B", "A", "Stadium B").weatherAt(2023, w, "Stadium B", 20, 0.4, 30)
		}
		fw := float64(w)
		f.stat(1, QB, "A", "B", 2023, w, 18+fw, attempts(30+fw), carries(3))
		f.stat(2, RB, "A", "B", 2023, w, 12+fw, carries(15), targets(3))
		f.stat(3, WR, "B", "A", 2023, w, 9+fw, targets(8))
		f.stat(4, TE, "B", "A", 2023, w, 5+fw, targets(4))
		f.stat(5, Position("K"), "B", "A", 2023, w, 7)
	}
	return f
}

func TestPipelineRun(t *testing.T) {
	pipe, err := New(DefaultOptions(), quietLog())
	require.NoError(t, err)

	obs := &recordingObserver{}
	res, err := pipe.Run(context.Background(), seasonFixture().sources(), obs)
	require.NoError(t, err)

	assert.Equal(t, Stages, obs.stages)
	for i, stage := range Stages[:len(Stages)-1] {
		assert.Equal(t, 30, obs.rows[i], stage)
	}
	assert.Equal(t, 24, obs.rows[len(obs.rows)-1])

	assert.Equal(t, 30, res.Panel.Len())
	assert.Equal(t, 30, res.Report.Rows)
	for _, pos := range ModelPositions {
		assert.Equal(t, 6, res.Positions[pos].Len(), pos)
	}

	want := []string{
		"fantasy_points_3wk_avg", "receiving_tds_5wk_avg", "carries_std_avg",
		"opportunity_share_lag1", "opportunity_share_5wk_avg",
		"pass_rate_lag1", "rush_rate_lag1",
		"fantasy_points_allowed_avg", "fantasy_points_allowed_TE_3wk_avg",
		"fantasy_points_home_3wk_avg", "carries_away_std_avg",
	}
	for _, c := range want {
		assert.True(t, res.Panel.HasColumn(c), c)
	}

	requireValue(t, res.Panel, 1, 2023, 4, "fantasy_points_3wk_avg", 20)
	requireNull(t, res.Panel, 1, 2023, 3, "fantasy_points_3wk_avg")
}

func TestPipelineRunHomeAwayUsesPlayerStatsAndWindows(t *testing.T) {
	f := &fixture{}
	for w := 1; w <= 12; w++ {
		if w%2 == 1 {
			f.game(2023, w, "A", "B", "Stadium A")
		} else {
			f.game(2023, w, "B", "A", "Stadium B")
		}
		fw := float64(w)
		f.stat(1, WR, "A", "B", 2023, w, fw*10, targets(fw))
		f.stat(2, WR, "B", "A", 2023, w, 8, targets(5))
	}

	pipe, err := New(DefaultOptions(), quietLog())
	require.NoError(t, err)
	res, err := pipe.Run(context.Background(), f.sources(), nil)
	require.NoError(t, err)

	for _, stat := range DefaultStats {
		for _, side := range []string{"home", "away"} {
			for _, w := range DefaultWindows {
				c := fmt.Sprintf("%s_%s_%dwk_avg", stat, side, w)
				assert.True(t, res.Panel.HasColumn(c), c)
			}
			assert.True(t, res.Panel.HasColumn(fmt.Sprintf("%s_%s_std_avg", stat, side)))
		}
	}

	// five earlier home games: weeks 1, 3, 5, 7, 9
	requireNull(t, res.Panel, 1, 2023, 9, "fantasy_points_home_5wk_avg")
	requireValue(t, res.Panel, 1, 2023, 11, "fantasy_points_home_5wk_avg", 50)
	requireNull(t, res.Panel, 1, 2023, 11, "fantasy_points_away_5wk_avg")

	// five earlier away games: weeks 2, 4, 6, 8, 10
	requireNull(t, res.Panel, 1, 2023, 10, "targets_away_5wk_avg")
	requireValue(t, res.Panel, 1, 2023, 12, "targets_away_5wk_avg", 6)
	requireNull(t, res.Panel, 1, 2023, 12, "targets_home_5wk_avg")
}

func TestPipelineRunFollowsWindowOverride(t *testing.T) {
	opts := DefaultOptions()
	opts.Windows = []int{2}
	pipe, err := New(opts, quietLog())
	require.NoError(t, err)
	res, err := pipe.Run(context.Background(), seasonFixture().sources(), nil)
	require.NoError(t, err)

	assert.True(t, res.Panel.HasColumn("fantasy_points_home_2wk_avg"))
	assert.True(t, res.Panel.HasColumn("carries_away_2wk_avg"))
	assert.False(t, res.Panel.HasColumn("fantasy_points_home_3wk_avg"))
}

func TestPipelineRunDoesNotModifySources(t *testing.T) {
	src := seasonFixture().sources()
	before := append([]store.WeeklyStat(nil), src.Stats...)

	pipe, err := New(DefaultOptions(), quietLog())
	require.NoError(t, err)
	_, err = pipe.Run(context.Background(), src, nil)
	require.NoError(t, err)

	assert.Equal(t, before, src.Stats)
}

func TestPipelineRunCancelled(t *testing.T) {
	pipe, err := New(DefaultOptions(), quietLog())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pipe.Run(ctx, seasonFixture().sources(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
		ok     bool
	}{
		{"defaults", func(*Options) {}, true},
		{"no stats", func(o *Options) { o.Stats = nil }, false},
		{"unknown stat", func(o *Options) { o.Stats = []string{"sacks"} }, false},
		{"duplicate stat", func(o *Options) { o.Stats = []string{"targets", "targets"} }, false},
		{"zero window", func(o *Options) { o.Windows = []int{0} }, false},
		{"duplicate window", func(o *Options) { o.Windows = []int{3, 3} }, false},
		{"no windows", func(o *Options) { o.Windows = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			err := opts.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidOptions)
			}
		})
	}
}
