package features

// DefaultStats are the box-score columns aggregated per player.
var DefaultStats = []string{
	"fantasy_points",
	"targets",
	"receptions",
	"carries",
	"attempts",
	"completions",
	"passing_yards",
	"passing_tds",
	"rushing_yards",
	"rushing_tds",
	"receiving_yards",
	"receiving_tds",
}

// DefaultWindows are the rolling window sizes, in weeks.
var DefaultWindows = []int{3, 5}

// AddPlayerAggregates adds, for every stat and window, the lagged rolling
// average {stat}_{N}wk_avg and the season-to-date average {stat}_std_avg.
// Groups are (player_id, season), so history resets every season.
func AddPlayerAggregates(p *Panel, stats []string, windows []int) (*Panel, error) {
	return applyGrouped(p, Aggregates(stats, windows), "", playerSeasonKey)
}
