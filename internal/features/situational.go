package features

import "fmt"

// Situation names a subset of a player's games.
type Situation struct {
	Name  string
	Match func(*Record) bool
}

// HomeAway splits games by venue.
var HomeAway = []Situation{
	{Name: "home", Match: func(r *Record) bool { return r.HomeGame }},
	{Name: "away", Match: func(r *Record) bool { return !r.HomeGame }},
}

// AddSituationalAggregates computes the player aggregates of stats and
// windows separately inside each situation. A home-game average only reads
// the player's earlier home games of the season, skipping away games
// entirely. Rows outside a situation get null for its columns.
func AddSituationalAggregates(p *Panel, situations []Situation, stats []string, windows []int) (*Panel, error) {
	aggs := Aggregates(stats, windows)
	out := p
	for _, s := range situations {
		subset := p.Filter(s.Match)
		scored, err := applyGrouped(subset, aggs, s.Name, playerSeasonKey)
		if err != nil {
			return nil, fmt.Errorf("%s aggregates: %w", s.Name, err)
		}

		names := make([]string, len(aggs))
		for i, a := range aggs {
			names[i] = a.Name(s.Name)
		}
		out, err = mergeOnPlayerWeek(out, scored, names...)
		if err != nil {
			return nil, fmt.Errorf("merge %s aggregates: %w", s.Name, err)
		}
	}
	return out, nil
}

// AddHomeAwayAggregates is AddSituationalAggregates over HomeAway.
func AddHomeAwayAggregates(p *Panel, stats []string, windows []int) (*Panel, error) {
	return AddSituationalAggregates(p, HomeAway, stats, windows)
}

// mergeOnPlayerWeek copies cols from src onto a copy of dst by
// (player_id, season, week). src must hold at most one row per key.
func mergeOnPlayerWeek(dst, src *Panel, cols ...string) (*Panel, error) {
	index := make(map[playerWeek]int, src.Len())
	for i := range src.rows {
		r := &src.rows[i]
		k := playerWeek{PlayerID: r.PlayerID, Season: r.Season, Week: r.Week}
		if _, dup := index[k]; dup {
			return nil, fmt.Errorf("%w: player %d season %d week %d", ErrFanOut, k.PlayerID, k.Season, k.Week)
		}
		index[k] = i
	}

	out, err := dst.withColumns(cols...)
	if err != nil {
		return nil, err
	}
	for i := range out.rows {
		r := &out.rows[i]
		j, ok := index[playerWeek{PlayerID: r.PlayerID, Season: r.Season, Week: r.Week}]
		if !ok {
			continue
		}
		for _, c := range cols {
			r.set(c, src.rows[j].values[c])
		}
	}
	if err := checkRowCount("player-week merge", dst.Len(), out.Len()); err != nil {
		return nil, err
	}
	return out, nil
}
