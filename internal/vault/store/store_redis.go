package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"treasury/pkg/platform/sentinel"
)

// Redis stores each vault key as a plain string value under prefix.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

// Apply sends the batch as one MULTI/EXEC transaction. Read keys are WATCHed
// and compared first, so a concurrent change aborts the batch.
func (r *Redis) Apply(ctx context.Context, writes []Write, reads ...Read) error {
	if len(writes) == 0 {
		return nil
	}
	queue := func(pipe redis.Pipeliner) error {
		for _, w := range writes {
			if w.Delete {
				pipe.Del(ctx, r.key(w.Key))
				continue
			}
			pipe.Set(ctx, r.key(w.Key), w.Value, 0)
		}
		return nil
	}
	if len(reads) == 0 {
		if _, err := r.client.TxPipelined(ctx, queue); err != nil {
			return fmt.Errorf("redis apply %d writes: %w", len(writes), errors.Join(sentinel.ErrUnavailable, err))
		}
		return nil
	}

	watched := make([]string, 0, len(reads))
	for _, rd := range reads {
		watched = append(watched, r.key(rd.Key))
	}
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		for _, rd := range reads {
			v, err := tx.Get(ctx, r.key(rd.Key)).Bytes()
			found := true
			if errors.Is(err, redis.Nil) {
				found = false
			} else if err != nil {
				return err
			}
			if !rd.Holds(v, found) {
				return fmt.Errorf("%s changed: %w", rd.Key, sentinel.ErrConflict)
			}
		}
		_, err := tx.TxPipelined(ctx, queue)
		return err
	}, watched...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrConflict):
		return fmt.Errorf("redis apply %d writes: %w", len(writes), err)
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("redis apply %d writes: %w", len(writes), errors.Join(sentinel.ErrConflict, err))
	default:
		return fmt.Errorf("redis apply %d writes: %w", len(writes), errors.Join(sentinel.ErrUnavailable, err))
	}
}
