// Package cache memoizes list queries. Redis backs it when REDIS_URL is set;
// otherwise every lookup misses.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const KeyPrefix = "requests:"

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	// Invalidate drops every key under KeyPrefix.
	Invalidate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()
}

// Key renders requests:{project}:{days}:{source}:{status}:{priority}; empty parts become "all".
func Key(project string, days int, parts ...string) string {
	fields := []string{orAll(project), fmt.Sprint(days)}
	for _, p := range parts {
		fields = append(fields, orAll(p))
	}
	return KeyPrefix + strings.Join(fields, ":")
}

func orAll(v string) string {
	if v == "" {
		return "all"
	}
	return v
}

// New returns a Redis cache for a non-empty url and a no-op cache otherwise.
func New(ctx context.Context, url string, logger zerolog.Logger) (Cache, error) {
	if url == "" {
		return Noop{}, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("unable to reach redis")
	} else {
		logger.Info().Str("addr", opts.Addr).Msg("connected to redis")
	}
	return &Redis{Client: client}, nil
}

type Redis struct {
	Client *redis.Client
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key, raw, ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context) error {
	iter := r.Client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.Client.Del(ctx, keys...).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

type Noop struct{}

func (Noop) Get(context.Context, string, any) (bool, error)        { return false, nil }
func (Noop) Set(context.Context, string, any, time.Duration) error { return nil }
func (Noop) Invalidate(context.Context) error                      { return nil }
func (Noop) Ping(context.Context) error                            { return nil }
func (Noop) Close()                                                {}
