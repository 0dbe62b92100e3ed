// Package redisstore archives session history in capped Redis lists.
//
// Each session has two lists, newest entry at the head, trimmed to the
// configured capacity on every write and optionally expired after a TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/and161185/biasmeter/internal/utils"
	"github.com/and161185/biasmeter/model"
	"github.com/and161185/biasmeter/storage"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix   = "biasmeter"
	DefaultCapacity = 10000
)

type Options struct {
	Prefix   string
	Capacity int
	TTL      time.Duration // zero keeps lists forever
}

type RedisStorage struct {
	client *redis.Client
	opts   Options
}

// New wraps an existing client.
func New(client *redis.Client, opts Options) *RedisStorage {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	return &RedisStorage{client: client, opts: opts}
}

// Open accepts either a redis:// URL or a plain host:port address.
func Open(ctx context.Context, addr string, opts Options) (*RedisStorage, error) {
	ro, err := redis.ParseURL(addr)
	if err != nil {
		ro = &redis.Options{Addr: addr}
	}
	store := New(redis.NewClient(ro), opts)
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return store, nil
}

func (store *RedisStorage) samplesKey(sessionID string) string {
	return store.opts.Prefix + ":samples:" + sessionID
}

func (store *RedisStorage) alertsKey(sessionID string) string {
	return store.opts.Prefix + ":alerts:" + sessionID
}

func (store *RedisStorage) push(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return utils.WithRetry(ctx, func() error {
		_, err := store.client.Pipelined(ctx, func(p redis.Pipeliner) error {
			p.LPush(ctx, key, string(data))
			p.LTrim(ctx, key, 0, int64(store.opts.Capacity-1))
			if store.opts.TTL > 0 {
				p.Expire(ctx, key, store.opts.TTL)
			}
			return nil
		})
		return err
	})
}

func (store *RedisStorage) SaveSample(ctx context.Context, sessionID string, s model.Sample) error {
	if err := store.push(ctx, store.samplesKey(sessionID), s); err != nil {
		return fmt.Errorf("push sample: %w", err)
	}
	return nil
}

func (store *RedisStorage) SaveAlert(ctx context.Context, sessionID string, ev model.AlertEvent) error {
	if err := store.push(ctx, store.alertsKey(sessionID), ev); err != nil {
		return fmt.Errorf("push alert: %w", err)
	}
	return nil
}

// latest decodes up to limit newest entries of key, oldest first.
func latest[T any](ctx context.Context, c *redis.Client, key string, limit int) ([]T, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidLimit
	}
	raw, err := c.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, item := range raw {
		var v T
		if err := json.Unmarshal([]byte(item), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, v)
	}
	slices.Reverse(out)
	return out, nil
}

func (store *RedisStorage) Samples(ctx context.Context, sessionID string, limit int) ([]model.Sample, error) {
	return latest[model.Sample](ctx, store.client, store.samplesKey(sessionID), limit)
}

func (store *RedisStorage) Alerts(ctx context.Context, sessionID string, limit int) ([]model.AlertEvent, error) {
	return latest[model.AlertEvent](ctx, store.client, store.alertsKey(sessionID), limit)
}

func (store *RedisStorage) Ping(ctx context.Context) error {
	return store.client.Ping(ctx).Err()
}

func (store *RedisStorage) Close() error {
	return store.client.Close()
}

var _ storage.Archive = (*RedisStorage)(nil)
