package features

import (
	"database/sql"
	"io"
	"testing"

	"github.com/fortuna/gridiron/internal/store"
	"github.com/sirupsen/logrus"
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

func ns(v string) sql.NullString {
	return sql.NullString{String: v, Valid: true}
}

// fixture builds source tables for tests.
type fixture struct {
	stats   []store.WeeklyStat
	games   []store.Game
	weather []store.Weather
}

func (f *fixture) game(season, week int, home, away, stadium string) *fixture {
	g := store.Game{Season: season, Week: week, HomeTeam: home, AwayTeam: away}
	if stadium != "" {
		g.Stadium = ns(stadium)
	}
	f.games = append(f.games, g)
	return f
}

func (f *fixture) weatherAt(season, week int, stadium string, temp, precip, wind float64) *fixture {
	f.weather = append(f.weather, store.Weather{
		Season:        season,
		Week:          week,
		Stadium:       stadium,
		Temperature:   nf(temp),
		Precipitation: nf(precip),
		WindSpeed:     nf(wind),
		Dome:          sql.NullBool{Bool: false, Valid: true},
	})
	return f
}

func (f *fixture) stat(id int64, pos Position, team, opp string, season, week int, fp float64, opts ...func(*store.WeeklyStat)) *fixture {
	s := store.WeeklyStat{
		PlayerID:         id,
		PlayerName:       "P" + string(rune('A'+id%26)),
		Position:         string(pos),
		TeamAbbreviation: team,
		OpponentTeam:     opp,
		Season:           season,
		Week:             week,
		FantasyPoints:    nf(fp),
		Attempts:         nf(0),
		Carries:          nf(0),
		Targets:          nf(0),
	}
	for _, o := range opts {
		o(&s)
	}
	f.stats = append(f.stats, s)
	return f
}

func (f *fixture) sources() Sources {
	return Sources{Stats: f.stats, Games: f.games, Weather: f.weather}
}

func (f *fixture) panel(t *testing.T) *Panel {
	t.Helper()
	p, _, err := Assemble(f.sources(), quietLog())
	require.NoError(t, err)
	return p
}

func carries(v float64) func(*store.WeeklyStat) {
	return func(s *store.WeeklyStat) { s.Carries = nf(v) }
}

func targets(v float64) func(*store.WeeklyStat) {
	return func(s *store.WeeklyStat) { s.Targets = nf(v) }
}

func attempts(v float64) func(*store.WeeklyStat) {
	return func(s *store.WeeklyStat) { s.Attempts = nf(v) }
}

// rowOf returns the index of the row for (id, season, week).
func rowOf(t *testing.T, p *Panel, id int64, season, week int) int {
	t.Helper()
	for i := 0; i < p.Len(); i++ {
		r := p.Row(i)
		if r.PlayerID == id && r.Season == season && r.Week == week {
			return i
		}
	}
	t.Fatalf("no row for player %d season %d week %d", id, season, week)
	return -1
}

func valueAt(t *testing.T, p *Panel, id int64, season, week int, col string) sql.NullFloat64 {
	t.Helper()
	require.True(t, p.HasColumn(col), "missing column %s", col)
	return p.Value(rowOf(t, p, id, season, week), col)
}

func requireValue(t *testing.T, p *Panel, id int64, season, week int, col string, want float64) {
	t.Helper()
	v := valueAt(t, p, id, season, week, col)
	require.True(t, v.Valid, "%s at player %d week %d is null", col, id, week)
	require.InDelta(t, want, v.Float64, 1e-9, "%s at player %d week %d", col, id, week)
}

func requireNull(t *testing.T, p *Panel, id int64, season, week int, col string) {
	t.Helper()
	v := valueAt(t, p, id, season, week, col)
	require.False(t, v.Valid, "%s at player %d week %d = %v, want null", col, id, week, v.Float64)
}
