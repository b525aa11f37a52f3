package features

import (
	"database/sql"
	"fmt"
	"sort"
)

// TeamWeekAggregate is one (team, season, week) row of team-level sums. It
// only exists to derive team- and opponent-relative features and is never
// persisted.
type TeamWeekAggregate struct {
	Team   string
	Season int
	Week   int
	Values map[string]sql.NullFloat64
}

type teamWeekTable struct {
	rows  []TeamWeekAggregate
	index map[teamWeek]int
}

func newTeamWeekTable() *teamWeekTable {
	return &teamWeekTable{index: make(map[teamWeek]int)}
}

// row returns the aggregate for k, creating it with zeroed sums of cols.
func (t *teamWeekTable) row(k teamWeek, cols ...string) *TeamWeekAggregate {
	if i, ok := t.index[k]; ok {
		return &t.rows[i]
	}
	vals := make(map[string]sql.NullFloat64, len(cols))
	for _, c := range cols {
		vals[c] = nullFloat(0)
	}
	t.index[k] = len(t.rows)
	t.rows = append(t.rows, TeamWeekAggregate{Team: k.Team, Season: k.Season, Week: k.Week, Values: vals})
	return &t.rows[len(t.rows)-1]
}

// add sums v into col, skipping nulls the way a SQL SUM does.
func (a *TeamWeekAggregate) add(col string, v sql.NullFloat64) {
	if !v.Valid {
		return
	}
	cur := a.Values[col]
	a.Values[col] = nullFloat(cur.Float64 + v.Float64)
}

// lag computes aggs within (team, season), ordered by week, writing each
// result into the aggregate's Name.
func (t *teamWeekTable) lag(aggs ...Aggregate) error {
	for _, a := range aggs {
		if err := a.Validate(); err != nil {
			return err
		}
	}

	type teamSeason struct {
		Team   string
		Season int
	}
	pos := make(map[teamSeason]int)
	var groups [][]int
	for i := range t.rows {
		k := teamSeason{Team: t.rows[i].Team, Season: t.rows[i].Season}
		g, ok := pos[k]
		if !ok {
			g = len(groups)
			pos[k] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}

	series := make([]sql.NullFloat64, 0, 32)
	for _, g := range groups {
		sort.SliceStable(g, func(a, b int) bool { return t.rows[g[a]].Week < t.rows[g[b]].Week })
		for _, a := range aggs {
			series = series[:0]
			for _, i := range g {
				series = append(series, t.rows[i].Values[a.Stat])
			}
			name := a.Name("")
			for j, v := range a.Apply(series) {
				t.rows[g[j]].Values[name] = v
			}
		}
	}
	return nil
}

// joinTeamWeek copies cols from t onto a copy of p, matching each panel row
// through key. Rows without a match get nulls. The row count is asserted
// after the join.
func joinTeamWeek(p *Panel, t *teamWeekTable, key func(*Record) teamWeek, cols ...string) (*Panel, error) {
	if len(t.index) != len(t.rows) {
		return nil, fmt.Errorf("%w: team-week table has %d rows for %d keys", ErrFanOut, len(t.rows), len(t.index))
	}

	out, err := p.withColumns(cols...)
	if err != nil {
		return nil, err
	}
	for i := range out.rows {
		r := &out.rows[i]
		j, ok := t.index[key(r)]
		if !ok {
			continue
		}
		for _, c := range cols {
			r.set(c, t.rows[j].Values[c])
		}
	}
	if err := checkRowCount("team-week join", p.Len(), out.Len()); err != nil {
		return nil, err
	}
	return out, nil
}

func ownTeamWeek(r *Record) teamWeek {
	return teamWeek{Team: r.Team, Season: r.Season, Week: r.Week}
}

func opponentTeamWeek(r *Record) teamWeek {
	return teamWeek{Team: r.Opponent, Season: r.Season, Week: r.Week}
}
