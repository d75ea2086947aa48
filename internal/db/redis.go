package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/geocoding"
)

// RedisStore wraps a redis client used as the reverse-geocode result cache.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
	logger *zap.Logger
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string, cacheTTL time.Duration, logger *zap.Logger) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		TTL:    cacheTTL,
		logger: logger,
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// GetAddress returns the cached address for key, if present. Fallback
// addresses are never cached, so a hit is always a real provider result.
func (r *RedisStore) GetAddress(ctx context.Context, key string) (geocoding.Address, bool) {
	raw, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		return geocoding.Address{}, false
	}
	var addr geocoding.Address
	if err := json.Unmarshal(raw, &addr); err != nil {
		r.logger.Warn("corrupt geocode cache entry", zap.String("key", key), zap.Error(err))
		r.Client.Del(ctx, key)
		return geocoding.Address{}, false
	}
	return addr, true
}

// SetAddress caches a resolved address under key with the configured TTL.
func (r *RedisStore) SetAddress(ctx context.Context, key string, addr geocoding.Address) {
	if addr.IsFallback {
		return
	}
	raw, err := json.Marshal(addr)
	if err != nil {
		return
	}
	if err := r.Client.Set(ctx, key, raw, r.TTL).Err(); err != nil {
		r.logger.Warn("geocode cache set failed", zap.Error(err))
	}
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			r.logger.Error("redis close", zap.Error(err))
		}
	}
}
