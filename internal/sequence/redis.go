package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "budgetsmart:seq:"

// Redis is a Sequencer shared by every API instance, backed by INCR.
type Redis struct {
	client redis.Cmdable
	prefix string
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client, prefix: defaultRedisPrefix}
}

func (r *Redis) Next(ctx context.Context, key string) (uint64, error) {
	n, err := r.client.Incr(ctx, r.prefix+key).Uint64()
	if err != nil {
		return 0, fmt.Errorf("incr sequence %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) Latest(ctx context.Context, key string) (uint64, error) {
	n, err := r.client.Get(ctx, r.prefix+key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get sequence %s: %w", key, err)
	}
	return n, nil
}
