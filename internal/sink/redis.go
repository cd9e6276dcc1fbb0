package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher is the slice of *redis.Client the Redis sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes each line as JSON on a pub/sub channel so a remote
// console can follow a run live.  Nothing is stored server-side.
type Redis struct {
	client  Publisher
	channel string
	timeout time.Duration
}

// NewRedis returns a sink publishing on channel.  Each publish is
// bounded by timeout (default 2s) so a stalled server cannot block a run
// indefinitely.
func NewRedis(client Publisher, channel string, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Redis{client: client, channel: channel, timeout: timeout}
}

// Channel returns the channel lines are published on.
func (r *Redis) Channel() string { return r.channel }

// Emit publishes l.
func (r *Redis) Emit(l Line) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal line: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// RedisChannel builds the per-run channel name.
func RedisChannel(prefix, runID string) string {
	if prefix == "" {
		prefix = "connprobe"
	}
	return prefix + ":" + runID
}
