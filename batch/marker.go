package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// setAPI is the subset of *redis.Client used by Marker.
type setAPI interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
}

// Marker remembers reconciled output artifacts in a Redis set.
type Marker struct {
	client setAPI
	key    string
}

// NewMarker creates a Marker on the set key.
func NewMarker(client setAPI, key string) (*Marker, error) {
	if client == nil {
		return nil, errors.New("batch: redis client must not be nil")
	}
	if key == "" {
		return nil, errors.New("batch: redis key is required")
	}
	return &Marker{client: client, key: key}, nil
}

func (m *Marker) IsReconciled(ctx context.Context, artifact string) (bool, error) {
	ok, err := m.client.SIsMember(ctx, m.key, artifact).Result()
	if err != nil {
		return false, fmt.Errorf("batch: sismember %s: %w", m.key, err)
	}
	return ok, nil
}

func (m *Marker) MarkReconciled(ctx context.Context, artifact string) error {
	if err := m.client.SAdd(ctx, m.key, artifact).Err(); err != nil {
		return fmt.Errorf("batch: sadd %s: %w", m.key, err)
	}
	return nil
}
