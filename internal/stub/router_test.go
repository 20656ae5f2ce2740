package stub

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/crm-client/internal/store"
	"github.com/Sternrassler/crm-client/pkg/client"
	"github.com/Sternrassler/crm-client/pkg/crm"
	"github.com/Sternrassler/crm-client/pkg/query"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type decoded struct {
	Status     string            `json:"status"`
	Message    string            `json:"message"`
	Data       []json.RawMessage `json:"data"`
	Pagination client.Pagination `json:"pagination"`
}

func newTestRouter(t *testing.T, cfg Config) *gin.Engine {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg.Logger = zerolog.Nop()
	return NewRouter(s, cfg)
}

func get(t *testing.T, h http.Handler, target string, header map[string]string) (*httptest.ResponseRecorder, decoded) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body decoded
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w, body
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, Config{})

	w, body := get(t, r, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body.Status)
}

func TestList_Envelope(t *testing.T) {
	r := newTestRouter(t, Config{})

	w, body := get(t, r, "/api/customers?page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "success", body.Status)
	assert.Len(t, body.Data, 15)
	assert.Equal(t, client.Pagination{
		CurrentPage: 2, LastPage: 3, Total: store.SeedCustomers, PerPage: 15, From: 16, To: 30,
	}, body.Pagination)
}

func TestList_EmptyPageBeyondEnd(t *testing.T) {
	r := newTestRouter(t, Config{})

	w, body := get(t, r, "/api/blogs?page=9&per_page=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body.Data)
	assert.Equal(t, 3, body.Pagination.LastPage)
	assert.Zero(t, body.Pagination.From)
}

func TestList_SearchFilters(t *testing.T) {
	r := newTestRouter(t, Config{})

	w, body := get(t, r, "/api/property-owners/search?city_id=1&district_id=all&q=", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 8, body.Pagination.Total)

	_, body = get(t, r, "/api/customers/filter?city_id=1&district_id=1", nil)
	assert.Equal(t, 7, body.Pagination.Total)
}

func TestList_PerPageCapped(t *testing.T) {
	r := newTestRouter(t, Config{})

	_, body := get(t, r, "/api/customers?per_page=1000", nil)
	assert.Equal(t, MaxPerPage, body.Pagination.PerPage)
	assert.Len(t, body.Data, store.SeedCustomers)
}

func TestList_InvalidPage(t *testing.T) {
	r := newTestRouter(t, Config{})

	for _, target := range []string{"/api/blogs?page=0", "/api/blogs?page=x", "/api/blogs?per_page=-1"} {
		w, body := get(t, r, target, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, target)
		assert.Equal(t, "error", body.Status)
	}
}

func TestList_NotModified(t *testing.T) {
	r := newTestRouter(t, Config{})

	w, _ := get(t, r, "/api/blogs", nil)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-cache")

	req := httptest.NewRequest(http.MethodGet, "/api/blogs", nil)
	req.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusNotModified, w2.Code)
	assert.Zero(t, w2.Body.Len())
}

func TestNoRoute(t *testing.T) {
	r := newTestRouter(t, Config{})

	w, body := get(t, r, "/api/invoices", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "route not found", body.Message)
}

func TestRequestID(t *testing.T) {
	r := newTestRouter(t, Config{})

	w, _ := get(t, r, "/health", map[string]string{HeaderRequestID: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))

	w, _ = get(t, r, "/health", nil)
	assert.Len(t, w.Header().Get(HeaderRequestID), 26)
}

func TestRequireBearer(t *testing.T) {
	secret := []byte("test-secret")
	r := newTestRouter(t, Config{JWTSecret: string(secret)})

	w, body := get(t, r, "/api/blogs", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing bearer token", body.Message)

	w, _ = get(t, r, "/api/blogs", map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := IssueToken(secret, "staff-1", -time.Minute)
	require.NoError(t, err)
	w, body = get(t, r, "/api/blogs", map[string]string{"Authorization": "Bearer " + expired})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token expired", body.Message)

	forged, err := IssueToken([]byte("other-secret"), "staff-1", time.Minute)
	require.NoError(t, err)
	w, _ = get(t, r, "/api/blogs", map[string]string{"Authorization": "Bearer " + forged})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	valid, err := IssueToken(secret, "staff-1", time.Minute)
	require.NoError(t, err)
	w, _ = get(t, r, "/api/blogs", map[string]string{"Authorization": "Bearer " + valid})
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays public.
	w, _ = get(t, r, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestThrottle(t *testing.T) {
	r := newTestRouter(t, Config{Throttle: 2})

	w, _ := get(t, r, "/api/blogs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	w, _ = get(t, r, "/api/blogs?page=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w, body := get(t, r, "/api/blogs?page=3", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, "error", body.Status)
}

func TestCORS(t *testing.T) {
	r := newTestRouter(t, Config{CORSOrigins: []string{"http://app.test"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/blogs", nil)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.test", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, Config{})
	get(t, r, "/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `crm_stub_requests_total{route="/health",status="200"}`)
}

func TestControllerAgainstStub(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, Config{}))
	defer srv.Close()

	cfg := client.DefaultConfig(srv.URL + APIPrefix)
	cfg.RateLimit = 0
	c, err := client.New(cfg)
	require.NoError(t, err)
	defer c.Close()

	ctrl, err := crm.NewCustomers(client.NewListSource[crm.Customer](c), crm.WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer ctrl.Close()

	ctrl.Dispatch()
	ctrl.Wait()
	state := ctrl.State()
	require.False(t, state.Failed(), "%v", state.Err)
	assert.Equal(t, store.SeedCustomers, state.Page.Total)
	assert.Equal(t, 3, state.Page.LastPage)

	require.NoError(t, ctrl.SetFilterNow(query.FilterCity, "1"))
	ctrl.Wait()
	state = ctrl.State()
	assert.Equal(t, 14, state.Page.Total)
	for _, cust := range state.Page.Items {
		assert.Equal(t, 1, cust.CityID)
	}

	require.NoError(t, ctrl.SetSearch("sara"))
	ctrl.FlushSearch()
	ctrl.Wait()
	assert.Equal(t, 2, ctrl.State().Page.Total)
}

func TestServeShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveListener(ctx, ln, newTestRouter(t, Config{}), zerolog.Nop())
	}()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/health")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}
