package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryTokenStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()

	if _, err := store.Get(ctx); !errors.Is(err, ErrMiss) {
		t.Errorf("Get() on empty store error = %v, want ErrMiss", err)
	}

	if err := store.Set(ctx, "token-a"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	token, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if token != "token-a" {
		t.Errorf("Get() = %q, want %q", token, "token-a")
	}

	// A refreshed token replaces the old one.
	if err := store.Set(ctx, "token-b"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	token, _ = store.Get(ctx)
	if token != "token-b" {
		t.Errorf("Get() after refresh = %q, want %q", token, "token-b")
	}
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestRedisTokenStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client, _ := setupRedis(t)
	store := NewRedisTokenStore(client)

	if _, err := store.Get(ctx); !errors.Is(err, ErrMiss) {
		t.Errorf("Get() on empty store error = %v, want ErrMiss", err)
	}

	if err := store.Set(ctx, "shared-token"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	token, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if token != "shared-token" {
		t.Errorf("Get() = %q, want %q", token, "shared-token")
	}

	// A second store over the same Redis sees the token.
	other := NewRedisTokenStore(client)
	token, err = other.Get(ctx)
	if err != nil {
		t.Fatalf("Get() via second store error = %v", err)
	}
	if token != "shared-token" {
		t.Errorf("Get() via second store = %q, want %q", token, "shared-token")
	}
}

func TestRedisTokenStore_Expiry(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)
	store := NewRedisTokenStore(client)

	if err := store.Set(ctx, "short-lived"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	mr.FastForward(DefaultTokenTTL + time.Second)

	if _, err := store.Get(ctx); !errors.Is(err, ErrMiss) {
		t.Errorf("Get() after TTL error = %v, want ErrMiss", err)
	}
}

func TestRedisTokenStore_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)
	store := NewRedisTokenStore(client)

	mr.Set(DefaultTokenKey, "not msgpack")

	if _, err := store.Get(ctx); err == nil || errors.Is(err, ErrMiss) {
		t.Errorf("Get() on corrupt entry error = %v, want decode error", err)
	}
}

func TestNewRedisTokenStore_NilClient(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisTokenStore(nil) did not panic")
		}
	}()
	NewRedisTokenStore(nil)
}
