package features

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrInvalidAggregate is returned for aggregates that would read the current row.
var ErrInvalidAggregate = errors.New("invalid aggregate")

// SeasonToDate is the Window value for an expanding (season-to-date) mean.
const SeasonToDate = 0

// Aggregate is the single lagged-mean primitive every derived feature is
// built from. The series is shifted by Lag rows before any window is taken,
// so a row never sees its own value or anything after it.
type Aggregate struct {
	Stat   string
	Window int // rows in the rolling window; SeasonToDate for expanding
	Lag    int
	Column string // output name override
}

// Validate rejects aggregates that break lag discipline.
func (a Aggregate) Validate() error {
	if a.Lag < 1 {
		return fmt.Errorf("%w: %s lag %d must be at least 1", ErrInvalidAggregate, a.Stat, a.Lag)
	}
	if a.Window < 0 {
		return fmt.Errorf("%w: %s window %d is negative", ErrInvalidAggregate, a.Stat, a.Window)
	}
	return nil
}

// Name returns the output column: {stat}[_{scope}]_{N}wk_avg for rolling
// windows and {stat}[_{scope}]_std_avg for season-to-date.
func (a Aggregate) Name(scope string) string {
	if a.Column != "" {
		return a.Column
	}
	base := a.Stat
	if scope != "" {
		base += "_" + scope
	}
	if a.Window == SeasonToDate {
		return base + "_std_avg"
	}
	return fmt.Sprintf("%s_%dwk_avg", base, a.Window)
}

// Apply computes the aggregate over series, which must be ordered by week
// within one group. Rolling windows need Window non-null observations
// (min_periods = window); season-to-date needs at least one. Anything short
// of that is null.
func (a Aggregate) Apply(series []sql.NullFloat64) []sql.NullFloat64 {
	shifted := shift(series, a.Lag)
	out := make([]sql.NullFloat64, len(shifted))

	if a.Window == SeasonToDate {
		var sum float64
		var n int
		for i, v := range shifted {
			if v.Valid {
				sum += v.Float64
				n++
			}
			if n > 0 {
				out[i] = nullFloat(sum / float64(n))
			}
		}
		return out
	}

	window := make([]float64, 0, a.Window)
	for i := range shifted {
		if i+1 < a.Window {
			continue
		}
		window = window[:0]
		for _, v := range shifted[i+1-a.Window : i+1] {
			if v.Valid {
				window = append(window, v.Float64)
			}
		}
		if len(window) < a.Window {
			continue
		}
		out[i] = nullFloat(stat.Mean(window, nil))
	}
	return out
}

// shift moves every value lag rows later; the first lag rows become null.
func shift(series []sql.NullFloat64, lag int) []sql.NullFloat64 {
	out := make([]sql.NullFloat64, len(series))
	for i := lag; i < len(series); i++ {
		out[i] = series[i-lag]
	}
	return out
}

// Aggregates expands stats × windows into rolling aggregates plus one
// season-to-date aggregate per stat, all lagged one row.
func Aggregates(stats []string, windows []int) []Aggregate {
	aggs := make([]Aggregate, 0, len(stats)*(len(windows)+1))
	for _, s := range stats {
		for _, w := range windows {
			aggs = append(aggs, Aggregate{Stat: s, Window: w, Lag: 1})
		}
		aggs = append(aggs, Aggregate{Stat: s, Window: SeasonToDate, Lag: 1})
	}
	return aggs
}

type playerSeason struct {
	PlayerID int64
	Season   int
}

func playerSeasonKey(r *Record) playerSeason {
	return playerSeason{PlayerID: r.PlayerID, Season: r.Season}
}

// groupRows partitions row indices of p by key, each group ordered by week.
// Groups come back in order of first appearance.
func groupRows[K comparable](p *Panel, key func(*Record) K) [][]int {
	pos := make(map[K]int)
	var groups [][]int
	for i := range p.rows {
		k := key(&p.rows[i])
		g, ok := pos[k]
		if !ok {
			g = len(groups)
			pos[k] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(a, b int) bool {
			return p.rows[g[a]].Week < p.rows[g[b]].Week
		})
	}
	return groups
}

// applyGrouped adds one column per aggregate to a copy of p, computed within
// the groups produced by key.
func applyGrouped[K comparable](p *Panel, aggs []Aggregate, scope string, key func(*Record) K) (*Panel, error) {
	names := make([]string, len(aggs))
	for i, a := range aggs {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if err := p.requireColumns(a.Stat); err != nil {
			return nil, err
		}
		names[i] = a.Name(scope)
	}

	out, err := p.withColumns(names...)
	if err != nil {
		return nil, err
	}

	groups := groupRows(out, key)
	series := make([]sql.NullFloat64, 0, 32)
	for _, g := range groups {
		for ai, a := range aggs {
			series = series[:0]
			for _, i := range g {
				series = append(series, out.rows[i].values[a.Stat])
			}
			for j, v := range a.Apply(series) {
				out.rows[g[j]].set(names[ai], v)
			}
		}
	}
	return out, nil
}
