// Package limiter keeps the remote quota in view and decides how long to wait before the
// next call is allowed.
package limiter

import (
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// QuotaState is the quota as last reported by the remote service.
type QuotaState struct {
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Known      bool
}

// Exhausted reports whether the last response left no calls in the window.
func (s QuotaState) Exhausted() bool {
	return s.Known && s.Remaining <= 0
}

// parseHeaders reads the quota headers. ok is false when the response carried none.
func parseHeaders(h http.Header, now time.Time) (QuotaState, bool) {
	var state QuotaState
	found := false

	if v := h.Get(HeaderRemaining); v != "" {
		if remaining, err := strconv.Atoi(v); err == nil {
			state.Remaining = remaining
			state.Known = true
			found = true
		}
	}
	if v := h.Get(HeaderReset); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			state.ResetAt = time.Unix(epoch, 0).UTC()
			found = true
		}
	}
	if v := h.Get(HeaderRetryAfter); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			state.RetryAfter = time.Duration(seconds) * time.Second
			found = true
		} else if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(now); d > 0 {
				state.RetryAfter = d
			}
			found = true
		}
	}
	return state, found
}
