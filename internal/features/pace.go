package features

import (
	"database/sql"
	"fmt"
)

// PaceColumns are the columns AddPassRushRate adds.
var PaceColumns = []string{"pass_rate_lag1", "rush_rate_lag1"}

// AddPassRushRate adds the team's previous-game pass rate,
// attempts / (attempts + carries), and its complement as the rush rate.
func AddPassRushRate(p *Panel) (*Panel, error) {
	if err := p.requireColumns("attempts", "carries"); err != nil {
		return nil, err
	}

	teams := newTeamWeekTable()
	for i := range p.rows {
		r := &p.rows[i]
		t := teams.row(ownTeamWeek(r), "team_attempts", "team_carries")
		t.add("team_attempts", r.Value("attempts"))
		t.add("team_carries", r.Value("carries"))
	}
	for i := range teams.rows {
		v := teams.rows[i].Values
		att := v["team_attempts"]
		v["pass_rate"] = safeDiv(att, nullFloat(att.Float64+v["team_carries"].Float64))
	}

	if err := teams.lag(Aggregate{Stat: "pass_rate", Window: 1, Lag: 1, Column: "pass_rate_lag1"}); err != nil {
		return nil, err
	}
	for i := range teams.rows {
		v := teams.rows[i].Values
		v["rush_rate_lag1"] = complement(v["pass_rate_lag1"])
	}

	out, err := joinTeamWeek(p, teams, ownTeamWeek, PaceColumns...)
	if err != nil {
		return nil, fmt.Errorf("join pass/rush rate: %w", err)
	}
	return out, nil
}

func complement(v sql.NullFloat64) sql.NullFloat64 {
	if !v.Valid {
		return v
	}
	return nullFloat(1 - v.Float64)
}
