package features

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrColumnExists is returned when a stage would overwrite an existing column.
	ErrColumnExists = errors.New("column already exists")
	// ErrUnknownColumn is returned when a stage reads a column the panel lacks.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrFanOut is returned when a join's right side has more than one row per key.
	ErrFanOut = errors.New("join key is not unique")
	// ErrRowCount is returned when a stage changes the number of rows it was given.
	ErrRowCount = errors.New("unexpected row count")
)

// Position is an offensive roster position.
type Position string

const (
	QB Position = "QB"
	RB Position = "RB"
	WR Position = "WR"
	TE Position = "TE"
)

// ModelPositions are the positions that get their own feature table.
var ModelPositions = []Position{QB, RB, WR, TE}

// IsModeled reports whether p is one of QB/RB/WR/TE.
func (p Position) IsModeled() bool {
	for _, m := range ModelPositions {
		if p == m {
			return true
		}
	}
	return false
}

// Record is one player-week row of the panel.
type Record struct {
	PlayerID          int64
	PlayerName        string
	PlayerDisplayName string
	Position          Position
	Team              string
	Opponent          string
	Season            int
	Week              int

	Stadium  sql.NullString
	Dome     sql.NullBool
	HomeGame bool

	ColdGame       sql.NullBool
	WindyGame      sql.NullBool
	RainGame       sql.NullBool
	ExtremeWeather sql.NullBool

	values map[string]sql.NullFloat64
}

// Value returns the numeric column col. Absent columns read as null.
func (r *Record) Value(col string) sql.NullFloat64 {
	return r.values[col]
}

func (r *Record) set(col string, v sql.NullFloat64) {
	if r.values == nil {
		r.values = make(map[string]sql.NullFloat64)
	}
	r.values[col] = v
}

func (r Record) clone() Record {
	cpy := r
	cpy.values = make(map[string]sql.NullFloat64, len(r.values))
	for k, v := range r.values {
		cpy.values[k] = v
	}
	return cpy
}

// Panel is a table with one row per (player, season, week). Numeric columns
// are named and ordered; stages never mutate a panel they receive, they
// return an enriched copy.
type Panel struct {
	columns []string
	known   map[string]struct{}
	rows    []Record
}

// NewPanel returns an empty panel with the given numeric columns.
func NewPanel(columns ...string) (*Panel, error) {
	p := &Panel{known: make(map[string]struct{})}
	if err := p.addColumns(columns...); err != nil {
		return nil, err
	}
	return p, nil
}

// Len returns the number of rows.
func (p *Panel) Len() int {
	return len(p.rows)
}

// Columns returns the numeric column names in order.
func (p *Panel) Columns() []string {
	out := make([]string, len(p.columns))
	copy(out, p.columns)
	return out
}

// HasColumn reports whether col is a numeric column of the panel.
func (p *Panel) HasColumn(col string) bool {
	_, ok := p.known[col]
	return ok
}

// Row returns a copy of row i.
func (p *Panel) Row(i int) Record {
	return p.rows[i].clone()
}

// Value returns column col of row i.
func (p *Panel) Value(i int, col string) sql.NullFloat64 {
	return p.rows[i].values[col]
}

// Clone returns a deep copy that shares no state with p.
func (p *Panel) Clone() *Panel {
	out := &Panel{
		columns: make([]string, len(p.columns)),
		known:   make(map[string]struct{}, len(p.known)),
		rows:    make([]Record, len(p.rows)),
	}
	copy(out.columns, p.columns)
	for k := range p.known {
		out.known[k] = struct{}{}
	}
	for i := range p.rows {
		out.rows[i] = p.rows[i].clone()
	}
	return out
}

// Filter returns a copy holding only the rows keep accepts, in order.
func (p *Panel) Filter(keep func(*Record) bool) *Panel {
	out := &Panel{
		columns: make([]string, len(p.columns)),
		known:   make(map[string]struct{}, len(p.known)),
	}
	copy(out.columns, p.columns)
	for k := range p.known {
		out.known[k] = struct{}{}
	}
	for i := range p.rows {
		if keep(&p.rows[i]) {
			out.rows = append(out.rows, p.rows[i].clone())
		}
	}
	return out
}

func (p *Panel) append(r Record) {
	p.rows = append(p.rows, r)
}

func (p *Panel) addColumns(cols ...string) error {
	for _, c := range cols {
		if _, ok := p.known[c]; ok {
			return fmt.Errorf("%w: %s", ErrColumnExists, c)
		}
		p.known[c] = struct{}{}
		p.columns = append(p.columns, c)
	}
	return nil
}

// withColumns returns a deep copy of p extended with cols, which start null.
func (p *Panel) withColumns(cols ...string) (*Panel, error) {
	out := p.Clone()
	if err := out.addColumns(cols...); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Panel) requireColumns(cols ...string) error {
	for _, c := range cols {
		if !p.HasColumn(c) {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, c)
		}
	}
	return nil
}

func checkRowCount(stage string, want, got int) error {
	if want != got {
		return fmt.Errorf("%w: %s produced %d rows from %d", ErrRowCount, stage, got, want)
	}
	return nil
}
