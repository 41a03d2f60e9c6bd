package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AggregateStore is an externally owned cache of platform-wide aggregates
// (solved-problem rankings, run counts). Callers only compute and invalidate.
type AggregateStore interface {
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, error)
	Invalidate(ctx context.Context, keys ...string) error
}

// Aggregates implements AggregateStore on top of a Cache.
type Aggregates struct {
	cache  Cache
	prefix string
}

// NewAggregates creates an aggregate store; prefix namespaces every key.
func NewAggregates(c Cache, prefix string) *Aggregates {
	return &Aggregates{cache: c, prefix: prefix}
}

func (a *Aggregates) key(k string) string {
	return a.prefix + k
}

// GetOrCompute returns the cached payload for key or stores the result of compute.
func (a *Aggregates) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	raw, err := GetWithCached(ctx, a.cache, a.key(key), JitterTTL(ttl), 0,
		func(s string) bool { return s == "" },
		func(s string) (string, error) { return s, nil },
		func(s string) (string, error) { return s, nil },
		func(ctx context.Context) (string, error) {
			data, err := compute(ctx)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	)
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

// Invalidate drops the given aggregate keys.
func (a *Aggregates) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, a.key(k))
	}
	return a.cache.Del(ctx, full...)
}

// GetOrComputeJSON is a typed convenience over AggregateStore using JSON encoding.
func GetOrComputeJSON[T any](ctx context.Context, store AggregateStore, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var out T
	raw, err := store.GetOrCompute(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(value)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode aggregate %s: %w", key, err)
	}
	return out, nil
}
