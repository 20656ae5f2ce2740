package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips when none is running.
// The integration suite runs the same scenarios against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	runManagerScenarios(t, setupTestRedis(t))
}

// runManagerScenarios is shared with the container-backed integration test.
func runManagerScenarios(t *testing.T, client *redis.Client) {
	t.Helper()

	manager := NewManager(client)
	ctx := context.Background()
	key := Key{Endpoint: "/customers/filter", Query: url.Values{"q": {"ahmed"}, "page": {"1"}}}

	t.Run("miss", func(t *testing.T) {
		if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get() error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("hit", func(t *testing.T) {
		entry := &Entry{
			Body:       []byte(`{"status":"success"}`),
			ETag:       `"v1"`,
			Expires:    time.Now().Add(time.Minute),
			StatusCode: 200,
		}
		if err := manager.Set(ctx, key, entry); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		got, err := manager.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got.Body) != string(entry.Body) || got.ETag != entry.ETag {
			t.Errorf("Get() = %+v, want %+v", got, entry)
		}
	})

	t.Run("expired without validator is not stored", func(t *testing.T) {
		stale := Key{Endpoint: "/blogs"}
		entry := &Entry{Body: []byte("x"), Expires: time.Now().Add(-time.Second), StatusCode: 200}
		if err := manager.Set(ctx, stale, entry); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if _, err := manager.Get(ctx, stale); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get() error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("expired with validator is kept for revalidation", func(t *testing.T) {
		stale := Key{Endpoint: "/property-owners"}
		entry := &Entry{Body: []byte("x"), ETag: `"v2"`, Expires: time.Now().Add(-time.Second), StatusCode: 200}
		if err := manager.Set(ctx, stale, entry); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := manager.Get(ctx, stale)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !got.IsExpired() {
			t.Error("entry should still be expired")
		}

		if err := manager.Refresh(ctx, stale, got, time.Now().Add(time.Minute)); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		got, err = manager.Get(ctx, stale)
		if err != nil {
			t.Fatalf("Get() after Refresh error = %v", err)
		}
		if got.IsExpired() {
			t.Error("entry should be fresh after Refresh")
		}
	})

	t.Run("invalidate endpoint", func(t *testing.T) {
		for _, page := range []string{"1", "2", "3"} {
			k := Key{Endpoint: "/customers", Query: url.Values{"page": {page}}}
			entry := &Entry{Body: []byte(page), Expires: time.Now().Add(time.Minute), StatusCode: 200}
			if err := manager.Set(ctx, k, entry); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
		}

		removed, err := manager.InvalidateEndpoint(ctx, "/customers")
		if err != nil {
			t.Fatalf("InvalidateEndpoint() error = %v", err)
		}
		if removed != 3 {
			t.Errorf("removed = %d, want 3", removed)
		}
		// the filtered endpoint shares a prefix but is a different list
		if _, err := manager.Get(ctx, key); err != nil {
			t.Errorf("Get(%s) error = %v, want hit", key, err)
		}
	})
}
