package cache

import (
	"context"
	"testing"
	"time"

	"github.com/chao7150/wpmastodon/internal/config"
	"github.com/chao7150/wpmastodon/internal/testutil"
)

func exerciseCache(t *testing.T, c Cache, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = %v, %v, want miss", ok, err)
	}
	if err := c.Set(ctx, "k", []byte("v1"), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	v, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("Get(k) = %q, %v, %v, want v1", v, ok, err)
	}
	if err := c.Set(ctx, "k", []byte("v2"), time.Hour); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if v, _, _ := c.Get(ctx, "k"); string(v) != "v2" {
		t.Errorf("Get(k) = %q after overwrite, want v2", v)
	}

	advance(2 * time.Hour)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("Get(k) hit after ttl elapsed")
	}

	if err := c.Set(ctx, "d", []byte("x"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "d"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "d"); ok {
		t.Error("Get(d) hit after Delete")
	}
}

func TestMemory(t *testing.T) {
	clock := testutil.FixedClock()
	exerciseCache(t, NewMemory(clock), clock.Advance)
}

func TestDatabase(t *testing.T) {
	s, clock := testutil.NewTestStore(t)
	exerciseCache(t, NewDatabase(s), clock.Advance)
}

func TestNewFromConfig(t *testing.T) {
	s, _ := testutil.NewTestStore(t)
	if c, err := NewFromConfig(config.CacheConfig{Type: "memory"}, s); err != nil || c == nil {
		t.Errorf("memory: %v", err)
	}
	if _, err := NewFromConfig(config.CacheConfig{Type: "redis"}, s); err == nil {
		t.Error("redis without address returned nil error")
	}
	if _, err := NewFromConfig(config.CacheConfig{Type: "memcached"}, s); err == nil {
		t.Error("unknown type returned nil error")
	}
}
