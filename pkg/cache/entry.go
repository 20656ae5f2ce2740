package cache

import (
	"net/http"
	"time"
)

// Entry is a cached list response.
type Entry struct {
	Body         []byte      `json:"body"`
	ETag         string      `json:"etag,omitempty"`
	Expires      time.Time   `json:"expires"`
	LastModified time.Time   `json:"last_modified,omitempty"`
	StatusCode   int         `json:"status_code"`
	Header       http.Header `json:"header"`
	StoredAt     time.Time   `json:"stored_at"`
}

// IsExpired returns true once Expires has passed.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the remaining freshness, 0 when already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Revalidatable reports whether a conditional request can be made for the entry.
func (e *Entry) Revalidatable() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}
