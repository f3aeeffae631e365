// Package ratelimit gates backend requests while the backend asks clients to
// back off. It follows the X-RateLimit-Remaining and X-RateLimit-Reset
// headers and the Retry-After of 429 responses. With a Redis client the
// state is shared by every process talking to the same backend.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining    = "pager:rate_limit:remaining"
	RedisKeyResetAt      = "pager:rate_limit:reset_at"
	RedisKeyBlockedUntil = "pager:rate_limit:blocked_until"
)

// ThresholdWarning applies throttling when the remaining budget falls below
// this value before the window resets.
const ThresholdWarning = 5

// DefaultThrottleDelay is the pause before each request while throttled.
const DefaultThrottleDelay = 250 * time.Millisecond

// State is the rate limit state reported by the backend.
type State struct {
	// Remaining requests in the current window, -1 when the backend never
	// reported a budget
	Remaining int `json:"remaining"`

	// ResetAt is when the current window ends
	ResetAt time.Time `json:"reset_at"`

	// BlockedUntil is when the last Retry-After ends
	BlockedUntil time.Time `json:"blocked_until"`
}

// unknownState is the state before any backend response was seen.
func unknownState() *State {
	return &State{Remaining: -1}
}

// Blocked reports whether requests must wait for a Retry-After to pass.
func (s *State) Blocked() bool {
	return s.TimeUntilUnblock() > 0
}

// NeedsThrottling reports whether the remaining budget is low.
func (s *State) NeedsThrottling() bool {
	return s.Remaining >= 0 && s.Remaining < ThresholdWarning && s.TimeUntilReset() > 0
}

// TimeUntilUnblock returns how long requests are blocked, or 0.
func (s *State) TimeUntilUnblock() time.Duration {
	if d := time.Until(s.BlockedUntil); d > 0 {
		return d
	}
	return 0
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	if d := time.Until(s.ResetAt); d > 0 {
		return d
	}
	return 0
}
