package vin

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedDecoder wraps a Decoder with a Redis read-through cache.
// Decode results are stable per VIN, so a long TTL is safe; cache
// failures degrade to the wrapped decoder.
type CachedDecoder struct {
	inner Decoder
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedDecoder builds a read-through cache in front of inner.
func NewCachedDecoder(inner Decoder, rdb *redis.Client, ttl time.Duration) *CachedDecoder {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &CachedDecoder{inner: inner, rdb: rdb, ttl: ttl}
}

func cacheKey(vin string) string { return "vinledger:decode:" + vin }

func (c *CachedDecoder) Decode(ctx context.Context, vin string) (map[string]string, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(vin)).Bytes()
	if err == nil {
		var decoded map[string]string
		if jsonErr := json.Unmarshal(raw, &decoded); jsonErr == nil {
			return decoded, nil
		}
	} else if err != redis.Nil {
		slog.Warn("decode cache read failed", "vin", vin, "error", err)
	}

	decoded, err := c.inner.Decode(ctx, vin)
	if err != nil {
		return nil, err
	}

	// Only cache successful decodes; empty maps may be transient
	// upstream failures and should be retried.
	if len(decoded) > 0 {
		if raw, jsonErr := json.Marshal(decoded); jsonErr == nil {
			if setErr := c.rdb.Set(ctx, cacheKey(vin), raw, c.ttl).Err(); setErr != nil {
				slog.Warn("decode cache write failed", "vin", vin, "error", setErr)
			}
		}
	}
	return decoded, nil
}
