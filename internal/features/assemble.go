package features

import (
	"database/sql"
	"sort"

	"github.com/fortuna/gridiron/internal/store"
	"github.com/sirupsen/logrus"
)

// Sources are the raw tables the panel is assembled from.
type Sources struct {
	Stats   []store.WeeklyStat
	Games   []store.Game
	Weather []store.Weather
}

// AssembleReport counts what the assembler resolved or dropped.
type AssembleReport struct {
	StatRows        int `json:"stat_rows"`
	DuplicateRows   int `json:"duplicate_rows"`
	ConflictingRows int `json:"conflicting_rows"`
	UnmatchedRows   int `json:"unmatched_rows"`
	AmbiguousGames  int `json:"ambiguous_games"`
	MissingWeather  int `json:"missing_weather"`
	Rows            int `json:"rows"`
}

type playerWeek struct {
	PlayerID int64
	Season   int
	Week     int
}

type teamWeek struct {
	Team   string
	Season int
	Week   int
}

type stadiumWeek struct {
	Stadium string
	Season  int
	Week    int
}

// BaseColumns are the numeric columns of a freshly assembled panel.
func BaseColumns() []string {
	cols := make([]string, 0, len(store.StatColumns)+len(store.WeatherColumns))
	cols = append(cols, store.StatColumns...)
	return append(cols, store.WeatherColumns...)
}

// Assemble joins weekly stats with their game and that game's weather,
// producing one row per (player_id, season, week). A stat row matches the
// game of its season/week in which its team is home or away; rows with no
// such game are dropped. Weather is optional and joins on (season, week,
// stadium).
func Assemble(src Sources, log logrus.FieldLogger) (*Panel, AssembleReport, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("stage", StageAssemble)

	report := AssembleReport{StatRows: len(src.Stats)}

	stats := dedupeStats(src.Stats, &report)
	games := indexGames(src.Games, &report)
	weather := indexWeather(src.Weather, log)

	panel, err := NewPanel(BaseColumns()...)
	if err != nil {
		return nil, report, err
	}

	for i := range stats {
		s := &stats[i]
		game, ok := games[teamWeek{Team: s.TeamAbbreviation, Season: s.Season, Week: s.Week}]
		if !ok {
			report.UnmatchedRows++
			log.WithFields(logrus.Fields{
				"player_id": s.PlayerID,
				"team":      s.TeamAbbreviation,
				"season":    s.Season,
				"week":      s.Week,
			}).Debug("no game for player-week, dropping row")
			continue
		}

		rec := Record{
			PlayerID:          s.PlayerID,
			PlayerName:        s.PlayerName,
			PlayerDisplayName: s.PlayerDisplayName.String,
			Position:          Position(s.Position),
			Team:              s.TeamAbbreviation,
			Opponent:          s.OpponentTeam,
			Season:            s.Season,
			Week:              s.Week,
			Stadium:           game.Stadium,
			HomeGame:          s.TeamAbbreviation == game.HomeTeam,
			values:            s.StatValues(),
		}
		if rec.Opponent == "" {
			rec.Opponent = game.AwayTeam
			if !rec.HomeGame {
				rec.Opponent = game.HomeTeam
			}
		}

		if w, ok := weather[stadiumWeek{Stadium: game.Stadium.String, Season: s.Season, Week: s.Week}]; ok && game.Stadium.Valid {
			rec.set("temperature", w.Temperature)
			rec.set("precipitation", w.Precipitation)
			rec.set("wind_speed", w.WindSpeed)
			rec.Dome = w.Dome
		} else {
			report.MissingWeather++
		}
		applyWeatherFlags(&rec)

		panel.append(rec)
	}

	report.Rows = panel.Len()
	if report.UnmatchedRows > 0 {
		log.WithField("dropped", report.UnmatchedRows).Info("dropped player-weeks without a matching game")
	}
	if report.ConflictingRows > 0 {
		log.WithField("conflicts", report.ConflictingRows).Warn("weekly_stats has conflicting rows for the same player-week, kept first")
	}
	if report.AmbiguousGames > 0 {
		log.WithField("team_weeks", report.AmbiguousGames).Warn("team scheduled in more than one game in a week, kept first")
	}
	log.WithFields(logrus.Fields{"rows": report.Rows, "columns": len(panel.columns)}).Info("panel assembled")

	return panel, report, nil
}

// dedupeStats sorts stat rows by (player_id, season, week) and keeps one row
// per key. Exact copies are counted as duplicates, differing rows as conflicts.
func dedupeStats(in []store.WeeklyStat, report *AssembleReport) []store.WeeklyStat {
	stats := make([]store.WeeklyStat, len(in))
	copy(stats, in)
	sort.SliceStable(stats, func(i, j int) bool {
		a, b := &stats[i], &stats[j]
		if a.PlayerID != b.PlayerID {
			return a.PlayerID < b.PlayerID
		}
		if a.Season != b.Season {
			return a.Season < b.Season
		}
		return a.Week < b.Week
	})

	out := stats[:0]
	seen := make(map[playerWeek]int, len(stats))
	for _, s := range stats {
		k := playerWeek{PlayerID: s.PlayerID, Season: s.Season, Week: s.Week}
		if idx, ok := seen[k]; ok {
			if out[idx] == s {
				report.DuplicateRows++
			} else {
				report.ConflictingRows++
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, s)
	}
	return out
}

// indexGames keys every game by both participating teams.
func indexGames(in []store.Game, report *AssembleReport) map[teamWeek]store.Game {
	games := make([]store.Game, len(in))
	copy(games, in)
	sort.SliceStable(games, func(i, j int) bool {
		a, b := &games[i], &games[j]
		if a.Season != b.Season {
			return a.Season < b.Season
		}
		if a.Week != b.Week {
			return a.Week < b.Week
		}
		return a.HomeTeam < b.HomeTeam
	})

	idx := make(map[teamWeek]store.Game, len(games)*2)
	for _, g := range games {
		for _, team := range []string{g.HomeTeam, g.AwayTeam} {
			k := teamWeek{Team: team, Season: g.Season, Week: g.Week}
			if prev, ok := idx[k]; ok {
				if !sameGame(prev, g) {
					report.AmbiguousGames++
				}
				continue
			}
			idx[k] = g
		}
	}
	return idx
}

func sameGame(a, b store.Game) bool {
	return a.Season == b.Season && a.Week == b.Week &&
		a.HomeTeam == b.HomeTeam && a.AwayTeam == b.AwayTeam &&
		a.Stadium == b.Stadium
}

func indexWeather(in []store.Weather, log logrus.FieldLogger) map[stadiumWeek]store.Weather {
	idx := make(map[stadiumWeek]store.Weather, len(in))
	conflicts := 0
	for _, w := range in {
		k := stadiumWeek{Stadium: w.Stadium, Season: w.Season, Week: w.Week}
		if prev, ok := idx[k]; ok {
			if prev != w {
				conflicts++
			}
			continue
		}
		idx[k] = w
	}
	if conflicts > 0 {
		log.WithField("conflicts", conflicts).Warn("weather has conflicting rows for the same stadium-week, kept first")
	}
	return idx
}

// Weather thresholds for the game-condition flags.
const (
	ColdGameMaxTemp   = 32.0
	WindyGameMinSpeed = 20.0
	RainGameMinPrecip = 0.3
)

// applyWeatherFlags derives the game-condition flags. A flag is null when its
// measurement is; extreme_weather is true once any flag is true and false
// only when all three are known.
func applyWeatherFlags(r *Record) {
	r.ColdGame = compare(r.Value("temperature"), func(v float64) bool { return v < ColdGameMaxTemp })
	r.WindyGame = compare(r.Value("wind_speed"), func(v float64) bool { return v > WindyGameMinSpeed })
	r.RainGame = compare(r.Value("precipitation"), func(v float64) bool { return v > RainGameMinPrecip })

	known := 0
	for _, f := range []sql.NullBool{r.ColdGame, r.WindyGame, r.RainGame} {
		if !f.Valid {
			continue
		}
		if f.Bool {
			r.ExtremeWeather = sql.NullBool{Bool: true, Valid: true}
			return
		}
		known++
	}
	r.ExtremeWeather = sql.NullBool{Valid: known == 3}
}

func compare(v sql.NullFloat64, pred func(float64) bool) sql.NullBool {
	if !v.Valid {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: pred(v.Float64), Valid: true}
}
