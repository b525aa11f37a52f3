package features

import "fmt"

// Target is the column models are trained to predict.
const Target = "fantasy_points"

// FeatureColumns lists the model inputs of p: every numeric column except
// the raw box score of the row's own week. Only lagged columns survive, so
// nothing a model sees was known after kickoff.
func FeatureColumns(p *Panel) []string {
	raw := make(map[string]struct{}, len(BaseColumns()))
	for _, c := range BaseColumns() {
		raw[c] = struct{}{}
	}
	// weather is forecastable before the game
	for _, c := range []string{"temperature", "precipitation", "wind_speed"} {
		delete(raw, c)
	}

	var cols []string
	for _, c := range p.columns {
		if _, skip := raw[c]; skip {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// TrainTestSplit splits p for predicting (season, week): training rows come
// strictly before it, test rows are that week exactly. Later weeks are in
// neither.
func TrainTestSplit(p *Panel, season, week int) (train, test *Panel, err error) {
	if week < 1 {
		return nil, nil, fmt.Errorf("target week %d must be at least 1", week)
	}
	train = p.Filter(func(r *Record) bool {
		return r.Season < season || (r.Season == season && r.Week < week)
	})
	test = p.Filter(func(r *Record) bool {
		return r.Season == season && r.Week == week
	})
	return train, test, nil
}
