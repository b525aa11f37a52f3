package features

import "fmt"

// OpponentWindow is the rolling window for position-level points allowed.
const OpponentWindow = 3

const pointsAllowed = "fantasy_points_allowed"

// OpponentColumns returns the columns AddOpponentStrength adds.
func OpponentColumns() []string {
	cols := []string{pointsAllowed + "_avg"}
	for _, pos := range ModelPositions {
		cols = append(cols, positionAllowed(pos)+"_avg")
	}
	for _, pos := range ModelPositions {
		cols = append(cols, fmt.Sprintf("%s_%dwk_avg", positionAllowed(pos), OpponentWindow))
	}
	return cols
}

func positionAllowed(pos Position) string {
	return pointsAllowed + "_" + string(pos)
}

// AddOpponentStrength attaches how many fantasy points the row's opponent
// has allowed in prior weeks of the season, overall and per position.
//
// Points allowed by a defense in a week are the summed fantasy_points of
// every offensive player whose opponent_team was that defense. Those weekly
// sums are lagged within (team, season) and joined back on the row's
// opponent_team, never its own team.
func AddOpponentStrength(p *Panel) (*Panel, error) {
	if err := p.requireColumns("fantasy_points"); err != nil {
		return nil, err
	}

	overall := newTeamWeekTable()
	byPosition := newTeamWeekTable()
	posCols := make([]string, len(ModelPositions))
	for i, pos := range ModelPositions {
		posCols[i] = positionAllowed(pos)
	}

	for i := range p.rows {
		r := &p.rows[i]
		if r.Opponent == "" {
			continue
		}
		k := opponentTeamWeek(r)
		fp := r.Value("fantasy_points")
		overall.row(k, pointsAllowed).add(pointsAllowed, fp)
		if r.Position.IsModeled() {
			// positions absent in a week stay at zero: nothing allowed is a real zero
			byPosition.row(k, posCols...).add(positionAllowed(r.Position), fp)
		}
	}

	if err := overall.lag(Aggregate{Stat: pointsAllowed, Window: SeasonToDate, Lag: 1, Column: pointsAllowed + "_avg"}); err != nil {
		return nil, err
	}

	var aggs []Aggregate
	for _, c := range posCols {
		aggs = append(aggs, Aggregate{Stat: c, Window: SeasonToDate, Lag: 1, Column: c + "_avg"})
	}
	for _, c := range posCols {
		aggs = append(aggs, Aggregate{Stat: c, Window: OpponentWindow, Lag: 1})
	}
	if err := byPosition.lag(aggs...); err != nil {
		return nil, err
	}

	out, err := joinTeamWeek(p, overall, opponentTeamWeek, pointsAllowed+"_avg")
	if err != nil {
		return nil, fmt.Errorf("join points allowed: %w", err)
	}

	names := make([]string, len(aggs))
	for i, a := range aggs {
		names[i] = a.Name("")
	}
	out, err = joinTeamWeek(out, byPosition, opponentTeamWeek, names...)
	if err != nil {
		return nil, fmt.Errorf("join points allowed by position: %w", err)
	}
	return out, nil
}
