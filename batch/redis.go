package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisAPI is the subset of *redis.Client used by RedisStore.
type redisAPI interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps pending lines in a Redis list so the batch survives host loss.
type RedisStore struct {
	client redisAPI
	key    string
}

// NewRedisStore creates a RedisStore on key.
func NewRedisStore(client redisAPI, key string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("batch: redis client must not be nil")
	}
	if key == "" {
		return nil, errors.New("batch: redis key is required")
	}
	return &RedisStore{client: client, key: key}, nil
}

func (r *RedisStore) Append(ctx context.Context, lines [][]byte) error {
	if len(lines) == 0 {
		return nil
	}
	if err := validate(lines); err != nil {
		return err
	}
	values := make([]interface{}, len(lines))
	for i, l := range lines {
		values[i] = string(l)
	}
	if err := r.client.RPush(ctx, r.key, values...).Err(); err != nil {
		return fmt.Errorf("batch: rpush %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("batch: llen %s: %w", r.key, err)
	}
	return int(n), nil
}

func (r *RedisStore) Contents(ctx context.Context) ([]byte, error) {
	lines, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("batch: lrange %s: %w", r.key, err)
	}
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (r *RedisStore) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("batch: del %s: %w", r.key, err)
	}
	return nil
}
