// Package testutil provides a mock CRM backend and disposable containers
// for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Row is one record served by PagedHandler.
type Row map[string]any

// MockBackend is a configurable mock of the CRM list API.
type MockBackend struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requestCount      int
	conditionalCount  int
	pathCounts        map[string]int
	lastRequestHeader http.Header
	lastQuery         url.Values
}

// NewMockBackend starts a mock backend.
func NewMockBackend() *MockBackend {
	mock := &MockBackend{
		handlers:   make(map[string]http.HandlerFunc),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastRequestHeader = r.Header.Clone()
		mock.lastQuery = r.URL.Query()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"error","message":"not found"}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.pathCounts = make(map[string]int)
	m.lastRequestHeader = nil
	m.lastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBackend) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockBackend) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockBackend) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made to path.
func (m *MockBackend) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// ConditionalCount returns the number of conditional requests.
func (m *MockBackend) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockBackend) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader.Clone()
}

// LastQuery returns the query of the most recent request.
func (m *MockBackend) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := url.Values{}
	for k, v := range m.lastQuery {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Envelope renders a list body in the backend's response shape.
func Envelope(items any, currentPage, lastPage, total, perPage int) string {
	from, to := 0, 0
	if n := lenOf(items); n > 0 {
		from = (currentPage-1)*perPage + 1
		to = from + n - 1
	}
	body, err := json.Marshal(map[string]any{
		"status": "success",
		"data":   items,
		"pagination": map[string]int{
			"current_page": currentPage,
			"last_page":    lastPage,
			"total":        total,
			"per_page":     perPage,
			"from":         from,
			"to":           to,
		},
	})
	if err != nil {
		panic(fmt.Sprintf("encode envelope: %v", err))
	}
	return string(body)
}

// PagedHandler serves rows with backend-style filtering and pagination.
// "q" matches any string field case-insensitively; other filters compare
// the field's string form. Rows lacking a filtered field never match.
func PagedHandler(rows []Row) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		perPage := atoiDefault(q.Get("per_page"), 15)

		var matched []Row
		for _, row := range rows {
			if rowMatches(row, q) {
				matched = append(matched, row)
			}
		}

		total := len(matched)
		lastPage := max(1, (total+perPage-1)/perPage)
		start := min((page-1)*perPage, total)
		end := min(start+perPage, total)
		items := matched[start:end]
		if items == nil {
			items = []Row{}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "59")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(Envelope(items, page, lastPage, total, perPage)))
	}
}

// NewListResponse creates a 200 response with a list body and validators.
func NewListResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "60",
			"X-RateLimit-Remaining": "59",
			"ETag":                  `"list-etag-1"`,
			"Cache-Control":         "max-age=60",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"status":"error","message":"Too Many Attempts."}`,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "60",
			"X-RateLimit-Remaining": "0",
			"Retry-After":           "1",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"status":"error","message":"Server Error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewConditionalHandler answers 304 when the request carries etag.
// The body expires immediately so every request revalidates.
func NewConditionalHandler(etag string, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

func rowMatches(row Row, q url.Values) bool {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := strings.TrimSpace(q.Get(key))
		switch key {
		case "page", "per_page":
			continue
		case "q":
			if want != "" && !anyFieldContains(row, want) {
				return false
			}
		default:
			if v, ok := row[key]; !ok || fmt.Sprint(v) != want {
				return false
			}
		}
	}
	return true
}

func anyFieldContains(row Row, needle string) bool {
	needle = strings.ToLower(needle)
	for _, v := range row {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func lenOf(items any) int {
	switch v := items.(type) {
	case []Row:
		return len(v)
	case []any:
		return len(v)
	case []map[string]any:
		return len(v)
	default:
		raw, err := json.Marshal(items)
		if err != nil {
			return 0
		}
		var arr []json.RawMessage
		if json.Unmarshal(raw, &arr) != nil {
			return 0
		}
		return len(arr)
	}
}
