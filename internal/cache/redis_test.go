package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fortuna/gridiron/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	rc, err := NewRedisCache(url)
	require.NoError(t, err)
	t.Cleanup(func() {
		rc.Client().Del(context.Background(), LastRunKey)
		rc.Close()
	})
	return rc
}

func TestNewRedisCacheBadURL(t *testing.T) {
	_, err := NewRedisCache("not a url")
	assert.Error(t, err)
}

func TestRunSummaryRoundTrip(t *testing.T) {
	rc := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, rc.Client().Del(ctx, LastRunKey).Err())

	last, err := rc.LastRunSummary(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	started := time.Date(2024, 1, 9, 6, 0, 0, 0, time.UTC)
	require.NoError(t, rc.StoreRunSummary(ctx, &runner.Summary{
		RunID:       "r1",
		RowsOut:     120,
		Tables:      map[string]int{"qb_features": 30},
		StartedAt:   started,
		CompletedAt: started.Add(2 * time.Second),
	}))

	last, err = rc.LastRunSummary(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "r1", last.RunID)
	assert.Equal(t, 30, last.Tables["qb_features"])
	assert.Equal(t, 2*time.Second, last.Duration())

	ttl, err := rc.Client().TTL(ctx, LastRunKey).Result()
	require.NoError(t, err)
	assert.InDelta(t, LastRunTTL.Seconds(), ttl.Seconds(), 5)
}
