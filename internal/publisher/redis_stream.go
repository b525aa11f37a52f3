package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fortuna/gridiron/internal/runner"
	"github.com/redis/go-redis/v9"
)

// RunsStream receives one entry per completed feature run.
const RunsStream = "features.runs"

// RedisStreamPublisher publishes events to Redis streams
type RedisStreamPublisher struct {
	client *redis.Client
	maxLen int64
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client
func NewRedisStreamPublisher(client *redis.Client) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		maxLen: 1000,
	}
}

// PublishRunCompleted appends a run summary to the runs stream.
func (rsp *RedisStreamPublisher) PublishRunCompleted(ctx context.Context, summary *runner.Summary) error {
	args, err := runCompletedArgs(summary, rsp.maxLen)
	if err != nil {
		return err
	}
	return rsp.client.XAdd(ctx, args).Err()
}

func runCompletedArgs(summary *runner.Summary, maxLen int64) (*redis.XAddArgs, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}

	return &redis.XAddArgs{
		Stream: RunsStream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"run_id":    summary.RunID,
			"rows":      summary.RowsOut,
			"dry_run":   summary.DryRun,
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}, nil
}
