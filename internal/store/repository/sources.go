package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/store"
	"github.com/lib/pq"
)

// SourceRepository reads the raw tables the feature pipeline is built from.
type SourceRepository struct {
	db *store.Database
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *store.Database) *SourceRepository {
	return &SourceRepository{db: db}
}

// LoadSources reads weekly_stats, games and weather in full. Every table is
// checked for its required columns before any row is read.
func (r *SourceRepository) LoadSources(ctx context.Context) (features.Sources, error) {
	var src features.Sources

	stats, err := r.WeeklyStats(ctx)
	if err != nil {
		return src, err
	}
	games, err := r.Games(ctx)
	if err != nil {
		return src, err
	}
	weather, err := r.Weather(ctx)
	if err != nil {
		return src, err
	}

	src.Stats, src.Games, src.Weather = stats, games, weather
	return src, nil
}

// columns returns the column names of table without reading rows.
func (r *SourceRepository) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.DB().QueryContext(ctx, "SELECT * FROM "+pq.QuoteIdentifier(table)+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", table, err)
	}
	return cols, nil
}

func (r *SourceRepository) requireColumns(ctx context.Context, table string, want []string) ([]string, error) {
	have, err := r.columns(ctx, table)
	if err != nil {
		return nil, err
	}
	if err := store.RequireColumns(table, have, want); err != nil {
		return nil, err
	}
	return have, nil
}

// WeeklyStats returns every row of weekly_stats.
func (r *SourceRepository) WeeklyStats(ctx context.Context) ([]store.WeeklyStat, error) {
	if _, err := r.requireColumns(ctx, store.TableWeeklyStats, store.WeeklyStatsColumns); err != nil {
		return nil, err
	}

	query := `
		SELECT player_id, player_name, player_display_name, position, team_abbreviation,
			opponent_team, season, week, ` + strings.Join(store.StatColumns, ", ") + `
		FROM weekly_stats
		ORDER BY player_id, season, week
	`

	rows, err := r.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying weekly stats: %w", err)
	}
	defer rows.Close()

	var stats []store.WeeklyStat
	for rows.Next() {
		var s store.WeeklyStat
		var name, position, team, opponent sql.NullString
		err := rows.Scan(
			&s.PlayerID, &name, &s.PlayerDisplayName, &position, &team,
			&opponent, &s.Season, &s.Week,
			&s.Attempts, &s.Completions, &s.PassingYards, &s.PassingTDs,
			&s.Targets, &s.Receptions, &s.Carries, &s.RushingYards,
			&s.RushingTDs, &s.ReceivingYards, &s.ReceivingTDs, &s.FantasyPoints,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning weekly stats: %w", err)
		}
		s.PlayerName = name.String
		s.Position = position.String
		s.TeamAbbreviation = team.String
		s.OpponentTeam = opponent.String
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// Games returns every row of games. home_team_id and away_team_id are read
// when the table has them.
func (r *SourceRepository) Games(ctx context.Context) ([]store.Game, error) {
	have, err := r.requireColumns(ctx, store.TableGames, store.GamesColumns)
	if err != nil {
		return nil, err
	}
	withIDs := store.RequireColumns(store.TableGames, have, []string{"home_team_id", "away_team_id"}) == nil

	cols := "season, week, home_team, away_team, stadium, game_date"
	if withIDs {
		cols += ", home_team_id, away_team_id"
	}
	rows, err := r.db.DB().QueryContext(ctx, "SELECT "+cols+" FROM games ORDER BY season, week, home_team")
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}
	defer rows.Close()

	var games []store.Game
	for rows.Next() {
		var g store.Game
		dest := []any{&g.Season, &g.Week, &g.HomeTeam, &g.AwayTeam, &g.Stadium, &g.GameDate}
		if withIDs {
			dest = append(dest, &g.HomeTeamID, &g.AwayTeamID)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning games: %w", err)
		}
		games = append(games, g)
	}

	return games, rows.Err()
}

// Weather returns every row of weather.
func (r *SourceRepository) Weather(ctx context.Context) ([]store.Weather, error) {
	if _, err := r.requireColumns(ctx, store.TableWeather, store.WeatherTableColumns); err != nil {
		return nil, err
	}

	query := `
		SELECT season, week, stadium, temperature, precipitation, wind_speed, dome
		FROM weather
		ORDER BY season, week, stadium
	`

	rows, err := r.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying weather: %w", err)
	}
	defer rows.Close()

	var out []store.Weather
	for rows.Next() {
		var w store.Weather
		var stadium sql.NullString
		if err := rows.Scan(&w.Season, &w.Week, &stadium, &w.Temperature, &w.Precipitation, &w.WindSpeed, &w.Dome); err != nil {
			return nil, fmt.Errorf("scanning weather: %w", err)
		}
		w.Stadium = stadium.String
		out = append(out, w)
	}

	return out, rows.Err()
}
