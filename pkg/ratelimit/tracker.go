package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pager_rate_limit_remaining",
		Help: "Requests remaining in the current backend rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_rate_limit_blocks_total",
		Help: "Total number of requests held back by a backend Retry-After",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pager_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to a low rate limit budget",
	})
)

// Tracker monitors the backend rate limit and gates requests.
type Tracker struct {
	redis    *redis.Client
	logger   zerolog.Logger
	throttle time.Duration

	// local holds the state when there is no Redis client
	mu    sync.Mutex
	local State
}

// NewTracker creates a new rate limit tracker. A nil Redis client keeps the
// state in this process.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:    redisClient,
		logger:   logger,
		throttle: DefaultThrottleDelay,
		local:    *unknownState(),
	}
}

// GetState returns the current rate limit state.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	values, err := t.redis.MGet(ctx, RedisKeyRemaining, RedisKeyResetAt, RedisKeyBlockedUntil).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	state := unknownState()
	if v, ok := values[0].(string); ok {
		if state.Remaining, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parse remaining: %w", err)
		}
	}
	if state.ResetAt, err = parseMillis(values[1]); err != nil {
		return nil, fmt.Errorf("parse reset: %w", err)
	}
	if state.BlockedUntil, err = parseMillis(values[2]); err != nil {
		return nil, fmt.Errorf("parse blocked until: %w", err)
	}
	return state, nil
}

// UpdateFromHeaders records the budget reported by X-RateLimit-Remaining and
// X-RateLimit-Reset (seconds until the window resets).
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get("X-RateLimit-Remaining")
	if remainStr == "" {
		// Backends without a budget only signal 429
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
	}

	resetStr := headers.Get("X-RateLimit-Reset")
	if resetStr == "" {
		return fmt.Errorf("X-RateLimit-Reset header missing")
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Reset header: %w", err)
	}

	window := time.Duration(resetSeconds) * time.Second
	resetAt := time.Now().Add(window)

	if t.redis == nil {
		t.mu.Lock()
		t.local.Remaining = remain
		t.local.ResetAt = resetAt
		t.mu.Unlock()
	} else {
		// The budget is meaningless after the window, let it expire with it
		expiry := window + time.Second
		pipe := t.redis.Pipeline()
		pipe.Set(ctx, RedisKeyRemaining, remain, expiry)
		pipe.Set(ctx, RedisKeyResetAt, resetAt.UnixMilli(), expiry)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store rate limit state in redis: %w", err)
		}
	}

	rateLimitRemaining.Set(float64(remain))

	if remain < ThresholdWarning {
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", resetAt).
			Msg("Backend rate limit low - requests will be throttled")
	} else {
		t.logger.Debug().
			Int("remaining", remain).
			Time("reset_at", resetAt).
			Msg("Backend rate limit state updated")
	}
	return nil
}

// Block holds back requests for d. A shorter block never cuts a longer one.
func (t *Tracker) Block(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	until := time.Now().Add(d)

	if t.redis == nil {
		t.mu.Lock()
		if until.After(t.local.BlockedUntil) {
			t.local.BlockedUntil = until
		}
		t.mu.Unlock()
	} else {
		current, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("get blocked until: %w", err)
		}
		if existing, perr := parseMillis(current); perr == nil && !until.After(existing) {
			return nil
		}
		if err := t.redis.Set(ctx, RedisKeyBlockedUntil, until.UnixMilli(), d).Err(); err != nil {
			return fmt.Errorf("store blocked until in redis: %w", err)
		}
	}

	t.logger.Warn().
		Dur("retry_after", d).
		Msg("Backend asked to back off - blocking requests")
	return nil
}

// Wait blocks until a request may be sent or ctx is done. Errors reading the
// shared state are logged and the request is allowed.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Rate limit state unavailable, allowing request")
		return nil
	}

	if d := state.TimeUntilUnblock(); d > 0 {
		t.logger.Debug().
			Dur("wait_duration", d).
			Msg("Backend rate limit blocking request")
		rateLimitBlocksTotal.Inc()
		return sleep(ctx, d)
	}

	if state.NeedsThrottling() {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Msg("Backend rate limit low - throttling request")
		rateLimitThrottlesTotal.Inc()
		return sleep(ctx, t.throttle)
	}

	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseMillis parses an epoch-millisecond value read from Redis. Missing
// values yield the zero time.
func parseMillis(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
