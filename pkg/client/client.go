// Package client provides the HTTP client for the CRM backend with request
// pacing, throttle tracking, response caching and retry handling.
package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/crm-client/pkg/cache"
	"github.com/Sternrassler/crm-client/pkg/ratelimit"
)

// Prometheus metrics for backend requests.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_requests_total",
		Help: "Total backend requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_request_duration_seconds",
		Help:    "Backend request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_errors_total",
		Help: "Total backend errors by class",
	}, []string{"class"})
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client talks to the CRM backend.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *rate.Limiter
	tracker    *ratelimit.Tracker
	cache      *cache.Manager
	principal  string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the backend API, e.g. "https://crm.example.com/api".
	BaseURL string

	// Token is sent as a Bearer token when set.
	Token string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// RateLimit paces outgoing requests (requests per second, 0 disables).
	RateLimit float64

	// MaxRetries is the number of attempts including the first one.
	MaxRetries     int
	InitialBackoff time.Duration

	// Redis enables shared throttle tracking and, with CacheEnabled, the
	// response cache. Optional.
	Redis        *redis.Client
	CacheEnabled bool
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		UserAgent:      "crm-client/1.0",
		Timeout:        15 * time.Second,
		RateLimit:      10,
		MaxRetries:     3,
		InitialBackoff: 250 * time.Millisecond,
		CacheEnabled:   true,
	}
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max_retries must be >= 1 (got %d)", cfg.MaxRetries)
	}

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	logger := log.With().Str("component", "crm-client").Logger()

	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(cfg.RateLimit))
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   base,
		limiter:   rate.NewLimiter(limit, burst),
		principal: principalOf(cfg.Token),
		config:    cfg,
		logger:    logger,
	}

	if cfg.Redis != nil {
		c.tracker = ratelimit.NewTracker(cfg.Redis, logger)
		if cfg.CacheEnabled {
			c.cache = cache.NewManager(cfg.Redis)
		}
	}

	return c, nil
}

// Do performs an HTTP request with pacing, caching and error handling.
//
// 4xx responses other than 429 are returned to the caller without an error;
// retryable failures that persist return ErrRetryExhausted.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Respect the backend's throttle window
	if c.tracker != nil {
		allowed, err := c.tracker.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Rate limit check failed, continuing")
		} else if !allowed {
			c.logger.Warn().
				Str("endpoint", endpoint).
				Msg("Request blocked by rate limiter")
			apiRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, &APIError{
				StatusCode: http.StatusTooManyRequests,
				ErrorClass: ErrorClassRateLimit,
				Message:    "throttle window exhausted",
				Err:        ErrRequestBlocked,
			}
		}
	}

	// Step 2: Client-side pacing
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}

	// Step 3: Cache lookup
	var (
		cacheKey    cache.Key
		cachedEntry *cache.Entry
	)
	cacheable := c.cache != nil && req.Method == http.MethodGet
	if cacheable {
		cacheKey = cache.Key{
			Endpoint:  endpoint,
			Query:     req.URL.Query(),
			Principal: c.principal,
		}

		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
		if entry != nil && !entry.IsExpired() {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("ttl", entry.TTL()).
				Msg("Serving from cache")
			apiRequestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
			return cache.EntryToResponse(entry, req), nil
		}
		if entry != nil {
			cachedEntry = entry
			cache.AddConditionalHeaders(req, entry)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", entry.ETag).
				Msg("Making conditional request")
		}
	}

	// Step 4: Headers
	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = ulid.Make().String()
		req.Header.Set(HeaderRequestID, requestID)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("request_id", requestID).
		Msg("Executing backend request")

	// Step 5: Execute with retry
	retryCfg := DefaultRetryConfig()
	retryCfg.MaxAttempts = c.config.MaxRetries
	if c.config.InitialBackoff > 0 {
		retryCfg.InitialBackoff = c.config.InitialBackoff
	}

	var resp *http.Response
	retryErr := retryWithBackoff(ctx, retryCfg, func() (ErrorClass, error) {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			resp = nil
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			}
			errClass := ErrorClassNetwork
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			apiErrorsTotal.WithLabelValues(string(errClass)).Inc()
			apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return errClass, &APIError{
				ErrorClass: errClass,
				Message:    "request failed",
				RequestID:  requestID,
				Err:        reqErr,
			}
		}

		if c.tracker != nil {
			if err := c.tracker.UpdateFromHeaders(ctx, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		if resp.StatusCode == http.StatusNotModified {
			return "", nil
		}

		if resp.StatusCode >= 400 {
			errClass := classifyStatus(resp.StatusCode)
			apiErrorsTotal.WithLabelValues(string(errClass)).Inc()
			apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status_code", resp.StatusCode).
				Str("error_class", string(errClass)).
				Str("request_id", requestID).
				Msg("Backend request error")

			if shouldRetry(errClass) {
				apiErr := &APIError{
					StatusCode: resp.StatusCode,
					ErrorClass: errClass,
					Message:    resp.Status,
					RequestID:  requestID,
				}
				resp.Body.Close()
				resp = nil
				return errClass, apiErr
			}

			// Client errors are the caller's to interpret.
			return "", nil
		}

		apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		return "", nil
	})

	if retryErr != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		c.logger.Error().
			Err(retryErr).
			Str("endpoint", endpoint).
			Str("request_id", requestID).
			Msg("Backend request failed")
		return nil, retryErr
	}

	// Step 6: 304 Not Modified refreshes the cached entry
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		apiRequestsTotal.WithLabelValues(endpoint, "304").Inc()
		cache.NotModifiedResponses.Inc()

		expires := cache.Expiry(resp.Header, time.Now())
		if err := c.cache.Refresh(ctx, cacheKey, cachedEntry, expires); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}

		resp.Body.Close()
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	// Step 7: Store successful responses
	if cacheable && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	return resp, nil
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// URL resolves endpoint and q against the base URL.
func (c *Client) URL(endpoint string, q url.Values) string {
	u := *c.baseURL
	u.Path = c.endpointPath(endpoint)
	u.RawQuery = q.Encode()
	return u.String()
}

// Get performs a GET request to a backend endpoint.
func (c *Client) Get(ctx context.Context, endpoint string, q url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(endpoint, q), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// Invalidate drops cached responses of an endpoint. It is a no-op without a cache.
func (c *Client) Invalidate(ctx context.Context, endpoint string) error {
	if c.cache == nil {
		return nil
	}
	n, err := c.cache.InvalidateEndpoint(ctx, c.endpointPath(endpoint))
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", endpoint, err)
	}
	c.logger.Debug().Str("endpoint", endpoint).Int("keys", n).Msg("Cache invalidated")
	return nil
}

// Close releases idle connections. The Redis client is owned by the caller.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, or nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// endpointPath is the request path the cache keys an endpoint under.
func (c *Client) endpointPath(endpoint string) string {
	return strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// principalOf derives a stable cache partition from the bearer token so
// users never share cached listings.
func principalOf(token string) string {
	if token == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
