package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainTestSplit(t *testing.T) {
	f := weeklyGames(&fixture{}, 2022, 2)
	weeklyGames(f, 2023, 4)
	for w := 1; w <= 2; w++ {
		f.stat(1, WR, "A", "B", 2022, w, 1)
	}
	for w := 1; w <= 4; w++ {
		f.stat(1, WR, "A", "B", 2023, w, 1)
	}

	train, test, err := TrainTestSplit(f.panel(t), 2023, 3)
	require.NoError(t, err)

	assert.Equal(t, 4, train.Len())
	require.Equal(t, 1, test.Len())
	assert.Equal(t, 3, test.Row(0).Week)
	for i := 0; i < train.Len(); i++ {
		r := train.Row(i)
		assert.True(t, r.Season < 2023 || r.Week < 3)
	}

	_, _, err = TrainTestSplit(f.panel(t), 2023, 0)
	assert.Error(t, err)
}

func TestFeatureColumns(t *testing.T) {
	f := weeklyGames(&fixture{}, 2023, 2)
	f.stat(1, WR, "A", "B", 2023, 1, 1).stat(1, WR, "A", "B", 2023, 2, 1)
	p, err := AddPlayerAggregates(f.panel(t), []string{"fantasy_points"}, []int{3})
	require.NoError(t, err)

	cols := FeatureColumns(p)
	assert.NotContains(t, cols, Target)
	assert.NotContains(t, cols, "targets")
	assert.Contains(t, cols, "temperature")
	assert.Contains(t, cols, "fantasy_points_3wk_avg")
	assert.Contains(t, cols, "fantasy_points_std_avg")
}
