package features

import (
	"database/sql"
	"fmt"
)

const (
	opportunities  = "opportunities"
	teamTotalOpps  = "team_total_opps"
	shareColumn    = "opportunity_share"
	shareLagColumn = "opportunity_share_lag1"
)

// OpportunityColumns returns the columns AddOpportunityShare adds for windows.
func OpportunityColumns(windows []int) []string {
	cols := []string{shareLagColumn}
	for _, w := range windows {
		cols = append(cols, fmt.Sprintf("%s_%dwk_avg", shareColumn, w))
	}
	return append(cols, shareColumn+"_std_avg")
}

// AddOpportunityShare adds a player's share of team opportunities
// (carries + targets) over prior weeks.
//
// The team total for the row's week is attached first, then both the
// player's opportunities and the team total are lagged and averaged over the
// same rows before dividing. Same-week totals never reach a feature. A zero
// or missing team total yields null.
func AddOpportunityShare(p *Panel, windows []int) (*Panel, error) {
	if err := p.requireColumns("carries", "targets"); err != nil {
		return nil, err
	}

	totals := newTeamWeekTable()
	for i := range p.rows {
		r := &p.rows[i]
		t := totals.row(ownTeamWeek(r), teamTotalOpps)
		t.add(teamTotalOpps, r.Value("carries"))
		t.add(teamTotalOpps, r.Value("targets"))
	}

	// intermediate columns live on a scratch copy only
	work, err := joinTeamWeek(p, totals, ownTeamWeek, teamTotalOpps)
	if err != nil {
		return nil, fmt.Errorf("join team opportunities: %w", err)
	}
	if err := work.addColumns(opportunities); err != nil {
		return nil, err
	}
	for i := range work.rows {
		r := &work.rows[i]
		opp := addNullable(r.Value("carries"), r.Value("targets"))
		r.set(opportunities, opp)
		if !opp.Valid {
			// pair the series so both means cover the same weeks
			r.set(teamTotalOpps, sql.NullFloat64{})
		}
	}

	aggs := []Aggregate{{Stat: opportunities, Window: 1, Lag: 1, Column: shareLagColumn}}
	for _, w := range windows {
		aggs = append(aggs, Aggregate{Stat: opportunities, Window: w, Lag: 1, Column: fmt.Sprintf("%s_%dwk_avg", shareColumn, w)})
	}
	aggs = append(aggs, Aggregate{Stat: opportunities, Window: SeasonToDate, Lag: 1, Column: shareColumn + "_std_avg"})

	out, err := p.withColumns(OpportunityColumns(windows)...)
	if err != nil {
		return nil, err
	}

	groups := groupRows(work, playerSeasonKey)
	playerSeries := make([]sql.NullFloat64, 0, 32)
	teamSeries := make([]sql.NullFloat64, 0, 32)
	for _, g := range groups {
		playerSeries, teamSeries = playerSeries[:0], teamSeries[:0]
		for _, i := range g {
			playerSeries = append(playerSeries, work.rows[i].values[opportunities])
			teamSeries = append(teamSeries, work.rows[i].values[teamTotalOpps])
		}
		for _, a := range aggs {
			teamAgg := a
			teamAgg.Stat = teamTotalOpps
			num := a.Apply(playerSeries)
			den := teamAgg.Apply(teamSeries)
			for j, i := range g {
				out.rows[i].set(a.Name(""), safeDiv(num[j], den[j]))
			}
		}
	}

	if err := checkRowCount("opportunity share", p.Len(), out.Len()); err != nil {
		return nil, err
	}
	return out, nil
}

// addNullable adds two nullable values; either null makes the sum null.
func addNullable(a, b sql.NullFloat64) sql.NullFloat64 {
	if !a.Valid || !b.Valid {
		return sql.NullFloat64{}
	}
	return nullFloat(a.Float64 + b.Float64)
}

// safeDiv divides nullable values, returning null for a null operand or a
// zero denominator.
func safeDiv(num, den sql.NullFloat64) sql.NullFloat64 {
	if !num.Valid || !den.Valid || den.Float64 == 0 {
		return sql.NullFloat64{}
	}
	return nullFloat(num.Float64 / den.Float64)
}
