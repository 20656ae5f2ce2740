package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	remainingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crm_rate_limit_remaining",
		Help: "Requests remaining in the current backend throttle window",
	})

	blocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the throttle window was exhausted",
	})

	throttlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_rate_limit_throttles_total",
		Help: "Total number of requests paced because the throttle window was low",
	})
)

// ThrottleDelay is the pause applied while the window is low.
const ThrottleDelay = 200 * time.Millisecond

// Tracker persists the throttle window in Redis and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	delay  time.Duration
}

// NewTracker creates a tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		delay:  ThrottleDelay,
	}
}

// GetState returns the stored window, or DefaultState when none is stored.
func (t *Tracker) GetState(ctx context.Context) (State, error) {
	data, err := t.redis.Get(ctx, RedisKeyState).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultState(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("get rate limit state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decode rate limit state: %w", err)
	}
	return state, nil
}

// UpdateFromHeaders stores the window reported by a response.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	now := time.Now()
	state, ok, err := ParseHeaders(headers, now)
	if err != nil || !ok {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode rate limit state: %w", err)
	}

	// keep the state at least until the window reopens
	ttl := time.Minute + state.WaitDuration(now)
	if err := t.redis.Set(ctx, RedisKeyState, data, ttl).Err(); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	remainingGauge.Set(float64(state.Remaining))

	switch {
	case state.Exhausted(now):
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("retry_at", state.RetryAt).
			Msg("Backend throttle window exhausted")
	case state.Low():
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Msg("Backend throttle window low")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now. While the
// window is low it pauses briefly before allowing the request.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	now := time.Now()
	if state.Exhausted(now) {
		t.logger.Warn().
			Dur("wait_duration", state.WaitDuration(now)).
			Msg("Backend throttle window exhausted - blocking request")
		blocksTotal.Inc()
		return false, nil
	}

	if state.Low() {
		throttlesTotal.Inc()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(t.delay):
		}
	}

	return true, nil
}
