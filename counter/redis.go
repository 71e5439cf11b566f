/*
Package counter provides sequence counters outside the document store.

PURPOSE:
  Sequential claim and EMR ids need one atomic increment-and-read per
  issued number. Redis INCR does exactly that, so a deployment with
  several API processes can share one counter without touching the
  database's write lock.

KEYS:
  Each counter name maps to "<prefix><name>", e.g.
  "rdc:counter:claims/Conference". The value is the last issued number.

SEE ALSO:
  - claim/store.go: Counter contract
  - store/sqlite/claims.go: The SQLite counter used when Redis is not configured
*/
package counter

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rdc/incentive-engine/config"
)

const DefaultPrefix = "rdc:counter:"

// incrementer is the slice of the Redis client the counter needs.
type incrementer interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// Redis implements claim.Counter with INCR.
type Redis struct {
	client incrementer
	prefix string
}

func NewRedis(client incrementer, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (r *Redis) Next(ctx context.Context, name string) (int64, error) {
	v, err := r.client.Incr(ctx, r.prefix+name).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
	}
	return v, nil
}
