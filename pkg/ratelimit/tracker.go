package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRetryAfter is the block applied when a 429 carries no usable Retry-After.
const DefaultRetryAfter = 1 * time.Second

// ErrBlocked is returned when the upstream asked all instances to back off.
var ErrBlocked = errors.New("request blocked: upstream rate limit")

// Prometheus metrics for request throttling.
var (
	windowRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_ratelimit_window_requests",
		Help: "Requests counted in the most recent one-second window",
	})

	windowRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_ratelimit_window_remaining",
		Help: "Requests left in the most recent one-second window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_ratelimit_blocks_total",
		Help: "Total number of requests refused during an upstream back-off",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_ratelimit_throttles_total",
		Help: "Total number of requests delayed to the next window",
	})
)

// Tracker gates requests to the listing API using state shared through Redis.
// A Tracker without Redis allows every request.
type Tracker struct {
	redis  *redis.Client
	limit  int
	logger zerolog.Logger
}

// NewTracker creates a tracker allowing requestsPerSecond requests per window.
// requestsPerSecond <= 0 disables window counting; Retry-After blocks still apply.
func NewTracker(redisClient *redis.Client, requestsPerSecond int, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		limit:  requestsPerSecond,
		logger: logger,
	}
}

// Enabled reports whether the tracker has shared state to consult.
func (t *Tracker) Enabled() bool {
	return t != nil && t.redis != nil
}

// GetState retrieves the current window and block state from Redis.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	now := time.Now()
	state := &State{
		Limit:       t.limit,
		WindowStart: now.Truncate(time.Second),
	}
	if !t.Enabled() {
		return state, nil
	}

	pipe := t.redis.Pipeline()
	countCmd := pipe.Get(ctx, windowKey(now))
	blockedCmd := pipe.Get(ctx, RedisKeyBlockedUntil)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read rate limit state: %w", err)
	}

	count, err := countCmd.Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get window counter: %w", err)
	}
	state.RequestsInWindow = count

	ms, err := blockedCmd.Int64()
	switch {
	case err == nil:
		state.BlockedUntil = time.UnixMilli(ms)
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("get blocked until: %w", err)
	}

	return state, nil
}

// ShouldAllowRequest checks if a request may be sent now.
// Returns false during an upstream back-off. When the window budget is used up
// it waits for the next window, bounded by ctx.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	if !t.Enabled() {
		return true, nil
	}

	for {
		state, err := t.GetState(ctx)
		if err != nil {
			return false, fmt.Errorf("get rate limit state: %w", err)
		}

		now := time.Now()
		if state.IsBlocked(now) {
			t.logger.Warn().
				Dur("wait_duration", state.TimeUntilUnblocked(now)).
				Msg("Upstream back-off active - blocking request")
			rateLimitBlocksTotal.Inc()
			return false, nil
		}

		if state.Limit <= 0 {
			return true, nil
		}

		key := windowKey(state.WindowStart)
		pipe := t.redis.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*time.Second)
		if _, err := pipe.Exec(ctx); err != nil {
			return false, fmt.Errorf("count request in window: %w", err)
		}

		state.RequestsInWindow = int(incr.Val())
		windowRequests.Set(float64(state.RequestsInWindow))
		windowRemaining.Set(float64(state.Remaining()))
		if !state.NeedsThrottling() {
			return true, nil
		}

		wait := state.TimeUntilNextWindow(time.Now())

		t.logger.Debug().
			Int("requests_in_window", state.RequestsInWindow).
			Int("limit", state.Limit).
			Dur("wait", wait).
			Msg("Window budget used up - throttling request")
		rateLimitThrottlesTotal.Inc()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// UpdateFromResponse records an upstream back-off when status is 429.
// Other statuses are ignored.
func (t *Tracker) UpdateFromResponse(ctx context.Context, status int, headers http.Header) error {
	if !t.Enabled() || status != http.StatusTooManyRequests {
		return nil
	}

	now := time.Now()
	wait, ok := ParseRetryAfter(headers.Get("Retry-After"), now)
	if !ok || wait <= 0 {
		wait = DefaultRetryAfter
	}
	until := now.Add(wait)

	err := t.redis.Set(ctx, RedisKeyBlockedUntil, strconv.FormatInt(until.UnixMilli(), 10), wait).Err()
	if err != nil {
		return fmt.Errorf("store back-off in redis: %w", err)
	}

	t.logger.Warn().
		Time("blocked_until", until).
		Dur("retry_after", wait).
		Msg("Upstream rate limited - backing off")

	return nil
}
