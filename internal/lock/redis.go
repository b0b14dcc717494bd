package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one key per variant. The key TTL equals the staleness
// ceiling, so an abandoned lock expires on its own.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects lazily to the configured Redis instance.
func NewRedisStore(cfg *RedisConfig, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreFromClient(client, cfg.Prefix, ttl)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Compare-and-swap on the exact payload so a late holder never deletes or
// replaces a record it no longer owns.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	replaceScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0`)
)

func (s *RedisStore) key(variant string) string {
	return s.prefix + variant
}

func (s *RedisStore) TryAcquire(ctx context.Context, rec Record, staleBefore time.Time) (bool, Record, error) {
	payload, err := encode(rec)
	if err != nil {
		return false, Record{}, err
	}

	ok, err := s.client.SetNX(ctx, s.key(rec.Variant), payload, s.ttl).Result()
	if err != nil {
		return false, Record{}, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return true, rec, nil
	}

	raw, err := s.client.Get(ctx, s.key(rec.Variant)).Result()
	if errors.Is(err, redis.Nil) {
		return false, Record{Variant: rec.Variant}, nil
	}
	if err != nil {
		return false, Record{}, fmt.Errorf("redis get: %w", err)
	}

	current, err := decode(raw)
	if err != nil {
		return false, Record{}, err
	}
	if !current.AcquiredAt.Before(staleBefore) {
		return false, current, nil
	}

	n, err := replaceScript.Run(ctx, s.client, []string{s.key(rec.Variant)}, raw, payload, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, Record{}, fmt.Errorf("redis replace stale lock: %w", err)
	}
	if n == 0 {
		return false, current, nil
	}
	return true, rec, nil
}

func (s *RedisStore) Release(ctx context.Context, rec Record) error {
	payload, err := encode(rec)
	if err != nil {
		return err
	}

	n, err := releaseScript.Run(ctx, s.client, []string{s.key(rec.Variant)}, payload).Int()
	if err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (s *RedisStore) Current(ctx context.Context, variant string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, s.key(variant)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("redis get: %w", err)
	}

	rec, err := decode(raw)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *RedisStore) ForceRelease(ctx context.Context, variant string) error {
	if err := s.client.Del(ctx, s.key(variant)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func encode(rec Record) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode lock record: %w", err)
	}
	return string(b), nil
}

func decode(raw string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("decode lock record: %w", err)
	}
	return rec, nil
}
