// Package ratelimit throttles requests to the listing API.
// A fixed one-second request window is counted in Redis so every storefront
// instance shares the same budget, and a 429 answer carrying Retry-After blocks
// all instances until the upstream is ready again.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// Redis keys for rate limit state storage.
const (
	// RedisKeyWindowPrefix is suffixed with the unix second of the window.
	RedisKeyWindowPrefix = "storefront:ratelimit:window"

	// RedisKeyBlockedUntil holds the unix millisecond until which requests are refused.
	RedisKeyBlockedUntil = "storefront:ratelimit:blocked_until"
)

// windowKey returns the counter key for the one-second window containing t.
func windowKey(t time.Time) string {
	return RedisKeyWindowPrefix + ":" + strconv.FormatInt(t.Unix(), 10)
}

// State represents the current shared request budget.
type State struct {
	// Limit is the number of requests allowed per one-second window (0 = unlimited).
	Limit int `json:"limit"`

	// RequestsInWindow is how many requests the current window has counted.
	RequestsInWindow int `json:"requests_in_window"`

	// WindowStart is the start of the current window.
	WindowStart time.Time `json:"window_start"`

	// BlockedUntil is set after a 429 with Retry-After; zero when not blocked.
	BlockedUntil time.Time `json:"blocked_until"`
}

// IsBlocked reports whether the upstream asked us to back off until after now.
func (s *State) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilUnblocked returns how long the block lasts from now.
// Returns 0 when not blocked.
func (s *State) TimeUntilUnblocked(now time.Time) time.Duration {
	if !s.IsBlocked(now) {
		return 0
	}
	return s.BlockedUntil.Sub(now)
}

// Remaining returns the requests left in the current window.
// Returns -1 when the budget is unlimited.
func (s *State) Remaining() int {
	if s.Limit <= 0 {
		return -1
	}
	if s.RequestsInWindow >= s.Limit {
		return 0
	}
	return s.Limit - s.RequestsInWindow
}

// NeedsThrottling returns true if the window budget is used up.
func (s *State) NeedsThrottling() bool {
	return s.Limit > 0 && s.RequestsInWindow > s.Limit
}

// TimeUntilNextWindow returns the wait until the window after WindowStart opens.
func (s *State) TimeUntilNextWindow(now time.Time) time.Duration {
	d := s.WindowStart.Add(time.Second).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ParseRetryAfter parses a Retry-After header value, either delay-seconds or an
// HTTP date, relative to now.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := when.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
