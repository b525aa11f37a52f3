package features

import "database/sql"

// ColumnKind is the storage type of a persisted column.
type ColumnKind int

const (
	KindInt ColumnKind = iota
	KindText
	KindFloat
	KindBool
)

// Column describes one column of a persisted feature table.
type Column struct {
	Name string
	Kind ColumnKind
}

var leadingColumns = []Column{
	{"player_id", KindInt},
	{"player_name", KindText},
	{"player_display_name", KindText},
	{"position", KindText},
	{"team_abbreviation", KindText},
	{"opponent_team", KindText},
	{"season", KindInt},
	{"week", KindInt},
	{"stadium", KindText},
	{"dome", KindBool},
	{"home_game", KindBool},
}

var trailingColumns = []Column{
	{"cold_game", KindBool},
	{"windy_game", KindBool},
	{"rain_game", KindBool},
	{"extreme_weather", KindBool},
}

// IdentityColumns are never model inputs.
var IdentityColumns = []string{
	"player_id", "player_name", "player_display_name", "position",
	"team_abbreviation", "opponent_team", "season", "week", "stadium",
}

// Schema returns the full persisted layout: descriptive columns, then the
// numeric columns in panel order, then the weather flags.
func (p *Panel) Schema() []Column {
	cols := make([]Column, 0, len(leadingColumns)+len(p.columns)+len(trailingColumns))
	cols = append(cols, leadingColumns...)
	for _, c := range p.columns {
		cols = append(cols, Column{Name: c, Kind: KindFloat})
	}
	return append(cols, trailingColumns...)
}

// RowValues returns row i laid out like Schema. Nulls are sql.Null* values
// so the slice can be handed to database/sql directly.
func (p *Panel) RowValues(i int) []any {
	r := &p.rows[i]
	vals := make([]any, 0, len(leadingColumns)+len(p.columns)+len(trailingColumns))
	vals = append(vals,
		r.PlayerID,
		r.PlayerName,
		r.PlayerDisplayName,
		string(r.Position),
		r.Team,
		r.Opponent,
		int64(r.Season),
		int64(r.Week),
		r.Stadium,
		r.Dome,
		r.HomeGame,
	)
	for _, c := range p.columns {
		vals = append(vals, r.values[c])
	}
	return append(vals, r.ColdGame, r.WindyGame, r.RainGame, r.ExtremeWeather)
}

// nullFloat builds a valid sql.NullFloat64.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}
