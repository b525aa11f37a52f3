package store

import (
	"database/sql"
	"time"
)

// Source table names read by the feature pipeline.
const (
	TableWeeklyStats = "weekly_stats"
	TableGames       = "games"
	TableWeather     = "weather"
)

// StatColumns lists the numeric box-score columns of weekly_stats, in the
// order they appear in feature tables.
var StatColumns = []string{
	"attempts",
	"completions",
	"passing_yards",
	"passing_tds",
	"targets",
	"receptions",
	"carries",
	"rushing_yards",
	"rushing_tds",
	"receiving_yards",
	"receiving_tds",
	"fantasy_points",
}

// WeatherColumns lists the numeric weather measurements carried into the panel.
var WeatherColumns = []string{"temperature", "precipitation", "wind_speed"}

// WeeklyStatsColumns are the weekly_stats columns the pipeline requires.
var WeeklyStatsColumns = append([]string{
	"player_id", "player_name", "player_display_name", "position",
	"team_abbreviation", "opponent_team", "season", "week",
}, StatColumns...)

// GamesColumns are the games columns the pipeline requires.
var GamesColumns = []string{
	"season", "week", "home_team", "away_team", "stadium", "game_date",
}

// WeatherTableColumns are the weather columns the pipeline requires.
var WeatherTableColumns = append([]string{"season", "week", "stadium"}, append(WeatherColumns, "dome")...)

// WeeklyStat is one row of weekly_stats: a player's box score for a week.
type WeeklyStat struct {
	PlayerID          int64          `json:"player_id" db:"player_id"`
	PlayerName        string         `json:"player_name" db:"player_name"`
	PlayerDisplayName sql.NullString `json:"player_display_name,omitempty" db:"player_display_name"`
	Position          string         `json:"position" db:"position"`
	TeamAbbreviation  string         `json:"team_abbreviation" db:"team_abbreviation"`
	OpponentTeam      string         `json:"opponent_team" db:"opponent_team"`
	Season            int            `json:"season" db:"season"`
	Week              int            `json:"week" db:"week"`

	Attempts       sql.NullFloat64 `json:"attempts,omitempty" db:"attempts"`
	Completions    sql.NullFloat64 `json:"completions,omitempty" db:"completions"`
	PassingYards   sql.NullFloat64 `json:"passing_yards,omitempty" db:"passing_yards"`
	PassingTDs     sql.NullFloat64 `json:"passing_tds,omitempty" db:"passing_tds"`
	Targets        sql.NullFloat64 `json:"targets,omitempty" db:"targets"`
	Receptions     sql.NullFloat64 `json:"receptions,omitempty" db:"receptions"`
	Carries        sql.NullFloat64 `json:"carries,omitempty" db:"carries"`
	RushingYards   sql.NullFloat64 `json:"rushing_yards,omitempty" db:"rushing_yards"`
	RushingTDs     sql.NullFloat64 `json:"rushing_tds,omitempty" db:"rushing_tds"`
	ReceivingYards sql.NullFloat64 `json:"receiving_yards,omitempty" db:"receiving_yards"`
	ReceivingTDs   sql.NullFloat64 `json:"receiving_tds,omitempty" db:"receiving_tds"`
	FantasyPoints  sql.NullFloat64 `json:"fantasy_points,omitempty" db:"fantasy_points"`
}

// StatValues returns the box-score counts keyed by column name.
func (s *WeeklyStat) StatValues() map[string]sql.NullFloat64 {
	return map[string]sql.NullFloat64{
		"attempts":        s.Attempts,
		"completions":     s.Completions,
		"passing_yards":   s.PassingYards,
		"passing_tds":     s.PassingTDs,
		"targets":         s.Targets,
		"receptions":      s.Receptions,
		"carries":         s.Carries,
		"rushing_yards":   s.RushingYards,
		"rushing_tds":     s.RushingTDs,
		"receiving_yards": s.ReceivingYards,
		"receiving_tds":   s.ReceivingTDs,
		"fantasy_points":  s.FantasyPoints,
	}
}

// Game is one scheduled matchup from the games table.
type Game struct {
	Season     int            `json:"season" db:"season"`
	Week       int            `json:"week" db:"week"`
	HomeTeam   string         `json:"home_team" db:"home_team"`
	AwayTeam   string         `json:"away_team" db:"away_team"`
	Stadium    sql.NullString `json:"stadium,omitempty" db:"stadium"`
	GameDate   sql.NullTime   `json:"game_date,omitempty" db:"game_date"`
	HomeTeamID sql.NullInt64  `json:"home_team_id,omitempty" db:"home_team_id"`
	AwayTeamID sql.NullInt64  `json:"away_team_id,omitempty" db:"away_team_id"`
}

// Weather holds game-day conditions for a stadium in a given week.
type Weather struct {
	Season        int             `json:"season" db:"season"`
	Week          int             `json:"week" db:"week"`
	Stadium       string          `json:"stadium" db:"stadium"`
	Temperature   sql.NullFloat64 `json:"temperature,omitempty" db:"temperature"`
	Precipitation sql.NullFloat64 `json:"precipitation,omitempty" db:"precipitation"`
	WindSpeed     sql.NullFloat64 `json:"wind_speed,omitempty" db:"wind_speed"`
	Dome          sql.NullBool    `json:"dome,omitempty" db:"dome"`
}

// PipelineRun is the persisted record of one feature build.
type PipelineRun struct {
	RunID         string         `json:"run_id" db:"run_id"`
	Status        string         `json:"status" db:"status"`
	Stats         string         `json:"stats" db:"stats"`
	Windows       string         `json:"windows" db:"windows"`
	DryRun        bool           `json:"dry_run" db:"dry_run"`
	RowsIn        int            `json:"rows_in" db:"rows_in"`
	RowsOut       int            `json:"rows_out" db:"rows_out"`
	RowsDropped   int            `json:"rows_dropped" db:"rows_dropped"`
	StatusMessage sql.NullString `json:"status_message,omitempty" db:"status_message"`
	LastError     sql.NullString `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
	StartedAt     sql.NullTime   `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   sql.NullTime   `json:"completed_at,omitempty" db:"completed_at"`
}
