package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, prefix string) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := New(Config{Client: client, KeyPrefix: prefix})
	if err != nil {
		t.Fatalf("Failed to create Redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without client")
	}
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, "")

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "movies", []byte(`[1,2]`), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		data, ok, err := c.Get(ctx, "movies")
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		if string(data) != `[1,2]` {
			t.Fatalf("Get returned %q", data)
		}
		if !mr.Exists("moviecat:query:movies") {
			t.Fatal("expected default prefix on stored key")
		}
	})

	t.Run("Missing", func(t *testing.T) {
		_, ok, err := c.Get(ctx, "nope")
		if ok || err != nil {
			t.Fatalf("Get missing: ok=%v err=%v", ok, err)
		}
	})

	t.Run("TTL", func(t *testing.T) {
		if err := c.Set(ctx, "quote", []byte(`{}`), time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
		mr.FastForward(2 * time.Minute)
		if _, ok, _ := c.Get(ctx, "quote"); ok {
			t.Fatal("expected entry to expire")
		}
	})

	t.Run("Invalidate", func(t *testing.T) {
		_ = c.Set(ctx, "a", []byte("1"), 0)
		_ = c.Set(ctx, "b", []byte("2"), 0)
		if err := c.Invalidate(ctx, "a", "missing"); err != nil {
			t.Fatalf("Invalidate: %v", err)
		}
		if _, ok, _ := c.Get(ctx, "a"); ok {
			t.Fatal("a survived invalidation")
		}
		if _, ok, _ := c.Get(ctx, "b"); !ok {
			t.Fatal("b should remain")
		}
		if err := c.Invalidate(ctx); err != nil {
			t.Fatalf("empty Invalidate: %v", err)
		}
	})
}

func TestClearOnlyTouchesPrefix(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, "app1:")
	if err := mr.Set("app2:movies", "keep"); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"movies", "movie:1", "favorites"} {
		if err := c.Set(ctx, k, []byte("x"), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, k := range []string{"movies", "movie:1", "favorites"} {
		if _, ok, _ := c.Get(ctx, k); ok {
			t.Fatalf("%s survived Clear", k)
		}
	}
	if !mr.Exists("app2:movies") {
		t.Fatal("Clear removed a key outside its prefix")
	}

	// Clearing an empty cache is fine.
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}
