package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/crm-client/internal/testutil"
	"github.com/Sternrassler/crm-client/pkg/ratelimit"
)

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

func TestRedisBackedClient(t *testing.T) {
	runRedisScenarios(t, setupTestRedis(t))
}

func newRedisClient(t *testing.T, baseURL string, rdb *redis.Client) *Client {
	t.Helper()

	cfg := DefaultConfig(baseURL)
	cfg.RateLimit = 0
	cfg.InitialBackoff = time.Millisecond
	cfg.Redis = rdb

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// runRedisScenarios is shared with the container-backed integration test.
func runRedisScenarios(t *testing.T, rdb *redis.Client) {
	t.Helper()
	ctx := context.Background()

	t.Run("fresh responses are served from cache", func(t *testing.T) {
		rdb.FlushDB(ctx)
		mock := testutil.NewMockBackend()
		defer mock.Close()
		mock.SetResponse("/blogs", testutil.NewListResponse(testutil.Envelope([]testutil.Row{{"id": 1}}, 1, 1, 1, 15)))

		c := newRedisClient(t, mock.URL(), rdb)
		q := url.Values{"page": {"1"}, "per_page": {"15"}}

		for i := 0; i < 3; i++ {
			resp, err := c.Get(ctx, "/blogs", q)
			if err != nil {
				t.Fatalf("Get() #%d error = %v", i, err)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if i > 0 && resp.Header.Get("X-Cache") != "HIT" {
				t.Errorf("Get() #%d X-Cache = %q, want HIT", i, resp.Header.Get("X-Cache"))
			}
		}

		if got := mock.RequestCount(); got != 1 {
			t.Errorf("RequestCount = %d, want 1", got)
		}
	})

	t.Run("different queries are cached separately", func(t *testing.T) {
		rdb.FlushDB(ctx)
		mock := testutil.NewMockBackend()
		defer mock.Close()
		mock.SetResponse("/blogs", testutil.NewListResponse(testutil.Envelope([]testutil.Row{}, 1, 1, 0, 15)))

		c := newRedisClient(t, mock.URL(), rdb)
		for _, page := range []string{"1", "2", "1"} {
			resp, err := c.Get(ctx, "/blogs", url.Values{"page": {page}})
			if err != nil {
				t.Fatalf("Get(page=%s) error = %v", page, err)
			}
			resp.Body.Close()
		}

		if got := mock.RequestCount(); got != 2 {
			t.Errorf("RequestCount = %d, want 2", got)
		}
	})

	t.Run("expired entries revalidate with etag", func(t *testing.T) {
		rdb.FlushDB(ctx)
		mock := testutil.NewMockBackend()
		defer mock.Close()
		body := testutil.Envelope([]testutil.Row{{"id": 7, "name": "Sara"}}, 1, 1, 1, 15)
		mock.SetHandler("/customers", testutil.NewConditionalHandler(`"v1"`, body))

		c := newRedisClient(t, mock.URL(), rdb)
		src := NewListSource[owner](c)

		for i := 0; i < 2; i++ {
			page, err := src.List(ctx, "/customers", url.Values{"page": {"1"}})
			if err != nil {
				t.Fatalf("List() #%d error = %v", i, err)
			}
			if len(page.Items) != 1 || page.Items[0].Name != "Sara" {
				t.Errorf("List() #%d items = %+v", i, page.Items)
			}
		}

		if got := mock.ConditionalCount(); got != 1 {
			t.Errorf("ConditionalCount = %d, want 1", got)
		}
	})

	t.Run("invalidate forces a refetch", func(t *testing.T) {
		rdb.FlushDB(ctx)
		mock := testutil.NewMockBackend()
		defer mock.Close()
		mock.SetResponse("/property-owners", testutil.NewListResponse(testutil.Envelope([]testutil.Row{}, 1, 1, 0, 15)))

		c := newRedisClient(t, mock.URL(), rdb)
		get := func() {
			resp, err := c.Get(ctx, "/property-owners", url.Values{"page": {"1"}})
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			resp.Body.Close()
		}

		get()
		if err := c.Invalidate(ctx, "/property-owners"); err != nil {
			t.Fatalf("Invalidate() error = %v", err)
		}
		get()

		if got := mock.RequestCount(); got != 2 {
			t.Errorf("RequestCount = %d, want 2", got)
		}
	})

	t.Run("exhausted throttle window blocks requests", func(t *testing.T) {
		rdb.FlushDB(ctx)
		mock := testutil.NewMockBackend()
		defer mock.Close()

		state := ratelimit.State{
			Limit:      60,
			Remaining:  0,
			RetryAt:    time.Now().Add(time.Minute),
			LastUpdate: time.Now(),
		}
		data, _ := json.Marshal(state)
		rdb.Set(ctx, ratelimit.RedisKeyState, data, time.Minute)

		c := newRedisClient(t, mock.URL(), rdb)
		_, err := c.Get(ctx, "/blogs", nil)
		if !errors.Is(err, ErrRequestBlocked) {
			t.Errorf("Get() error = %v, want ErrRequestBlocked", err)
		}
		if got := mock.RequestCount(); got != 0 {
			t.Errorf("RequestCount = %d, want 0", got)
		}
	})

	t.Run("throttle headers are tracked", func(t *testing.T) {
		rdb.FlushDB(ctx)
		mock := testutil.NewMockBackend()
		defer mock.Close()
		mock.SetHandler("/blogs", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(ratelimit.HeaderLimit, "60")
			w.Header().Set(ratelimit.HeaderRemaining, "41")
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(testutil.Envelope([]testutil.Row{}, 1, 1, 0, 15)))
		})

		c := newRedisClient(t, mock.URL(), rdb)
		resp, err := c.Get(ctx, "/blogs", nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		resp.Body.Close()

		got, err := c.tracker.GetState(ctx)
		if err != nil {
			t.Fatalf("GetState() error = %v", err)
		}
		if got.Remaining != 41 {
			t.Errorf("Remaining = %d, want 41", got.Remaining)
		}
	})
}
