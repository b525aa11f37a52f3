package features

import "strings"

// Output table names.
const (
	TableAllFeatures = "player_weekly_features"
)

// PositionTable returns the output table for pos, e.g. "qb_features".
func PositionTable(pos Position) string {
	return strings.ToLower(string(pos)) + "_features"
}

// OutputTables lists every table a run replaces.
func OutputTables() []string {
	tables := []string{TableAllFeatures}
	for _, pos := range ModelPositions {
		tables = append(tables, PositionTable(pos))
	}
	return tables
}

// SplitByPosition returns one panel per modeled position. Rows of any other
// position appear in none of them.
func SplitByPosition(p *Panel) map[Position]*Panel {
	out := make(map[Position]*Panel, len(ModelPositions))
	for _, pos := range ModelPositions {
		out[pos] = p.Filter(func(r *Record) bool { return r.Position == pos })
	}
	return out
}
