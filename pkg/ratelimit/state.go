// Package ratelimit tracks the backend's request throttle window.
// It reads the X-RateLimit-Limit, X-RateLimit-Remaining and Retry-After
// headers the CRM API sends and gates requests while the window is exhausted,
// so a burst of list refreshes cannot lock the staff account out.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RedisKeyState holds the JSON-encoded State shared by all clients of one account.
const RedisKeyState = "crm:rate_limit:state"

// Header names sent by the backend throttle middleware.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// LowWatermark is the remaining-request count below which requests are paced.
const LowWatermark = 5

// State is the last observed throttle window.
type State struct {
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	RetryAt    time.Time `json:"retry_at,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// DefaultState is assumed until the backend reports otherwise.
func DefaultState() State {
	return State{Limit: 60, Remaining: 60, LastUpdate: time.Now()}
}

// Exhausted reports whether requests must wait until RetryAt.
func (s State) Exhausted(now time.Time) bool {
	return s.Remaining <= 0 && now.Before(s.RetryAt)
}

// Low reports whether the window is close to exhaustion.
func (s State) Low() bool {
	return s.Remaining > 0 && s.Remaining < LowWatermark
}

// WaitDuration returns the time left until RetryAt.
func (s State) WaitDuration(now time.Time) time.Duration {
	if d := s.RetryAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// IsStale returns true if the state is older than maxAge.
func (s State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// ParseHeaders extracts a State from response headers. ok is false when the
// response carries no throttle headers.
func ParseHeaders(h http.Header, now time.Time) (state State, ok bool, err error) {
	remainStr := strings.TrimSpace(h.Get(HeaderRemaining))
	retryStr := strings.TrimSpace(h.Get(HeaderRetryAfter))
	if remainStr == "" && retryStr == "" {
		return State{}, false, nil
	}

	state = State{LastUpdate: now}

	if remainStr != "" {
		if state.Remaining, err = strconv.Atoi(remainStr); err != nil {
			return State{}, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}
	}

	if limitStr := strings.TrimSpace(h.Get(HeaderLimit)); limitStr != "" {
		if state.Limit, err = strconv.Atoi(limitStr); err != nil {
			return State{}, false, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	if retryStr != "" {
		retryAt, err := parseRetryAfter(retryStr, now)
		if err != nil {
			return State{}, false, err
		}
		state.RetryAt = retryAt
		// Retry-After without a remaining count only appears on 429
		if remainStr == "" {
			state.Remaining = 0
		}
	}

	return state, true, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Time, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return now.Add(time.Duration(secs) * time.Second), nil
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s header: %q", HeaderRetryAfter, v)
	}
	return t, nil
}
