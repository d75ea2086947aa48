package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/geocoding"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	ms, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	store := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: ms.Addr()}),
		TTL:    time.Hour,
		logger: zap.NewNop(),
	}
	return ms, store
}

func TestRedisStore_SetAndGetAddress(t *testing.T) {
	ms, store := setupTestRedis(t)
	defer ms.Close()

	ctx := context.Background()
	addr := geocoding.Address{
		FormattedAddress: "MG Road, Bengaluru, Karnataka, India",
		Street:           "MG Road",
		City:             "Bengaluru",
		State:            "Karnataka",
		Country:          "India",
	}

	store.SetAddress(ctx, "geocode:12.97160:77.59460", addr)

	got, ok := store.GetAddress(ctx, "geocode:12.97160:77.59460")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != addr {
		t.Errorf("got %+v, want %+v", got, addr)
	}
}

func TestRedisStore_MissReturnsFalse(t *testing.T) {
	ms, store := setupTestRedis(t)
	defer ms.Close()

	if _, ok := store.GetAddress(context.Background(), "geocode:0.00000:0.00000"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestRedisStore_FallbackAddressesNotCached(t *testing.T) {
	ms, store := setupTestRedis(t)
	defer ms.Close()

	ctx := context.Background()
	store.SetAddress(ctx, "geocode:1.00000:1.00000", geocoding.Address{
		FormattedAddress: "Location: 1.00000°N, 1.00000°E",
		IsFallback:       true,
	})

	if _, ok := store.GetAddress(ctx, "geocode:1.00000:1.00000"); ok {
		t.Error("fallback addresses must not be cached")
	}
}

func TestRedisStore_CorruptEntryEvicted(t *testing.T) {
	ms, store := setupTestRedis(t)
	defer ms.Close()

	ctx := context.Background()
	if err := ms.Set("geocode:2.00000:2.00000", "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	if _, ok := store.GetAddress(ctx, "geocode:2.00000:2.00000"); ok {
		t.Fatal("corrupt entry should be a miss")
	}
	if ms.Exists("geocode:2.00000:2.00000") {
		t.Error("corrupt entry should be deleted")
	}
}

func TestRedisStore_EntriesExpire(t *testing.T) {
	ms, store := setupTestRedis(t)
	defer ms.Close()

	ctx := context.Background()
	store.SetAddress(ctx, "geocode:3.00000:3.00000", geocoding.Address{FormattedAddress: "somewhere"})

	ms.FastForward(2 * time.Hour)

	if _, ok := store.GetAddress(ctx, "geocode:3.00000:3.00000"); ok {
		t.Error("entry should expire after the TTL")
	}
}
