// Package ratelimit implements the sliding-window call limiter every
// provider adapter uses to stay under its configured per-minute cap.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// SharedClient, when non-nil, backs every Window built with WithRedis in
// distributed mode: multiple worker processes sharing one provider's
// per-minute budget see the same occupancy instead of each process
// getting its own independent capacity. Wired once at boot from
// config.RedisConfig; left nil in tests and single-process deployments,
// where every Window falls back to its in-process slice.
var SharedClient *goredis.Client

// Window is a sliding-window rate limiter: at most Capacity calls are
// allowed to start within any trailing Duration-length interval. Unlike a
// token bucket, the window never accrues unused capacity across idle
// periods — it only ever looks at the calls actually made in the last
// Duration.
type Window struct {
	capacity int
	duration time.Duration

	mu    sync.Mutex
	times []time.Time // FIFO of call timestamps within the trailing window, oldest first

	redisClient *goredis.Client
	redisKey    string
}

// NewWindow creates a sliding-window limiter allowing capacity calls per
// duration. A non-positive capacity disables limiting entirely.
func NewWindow(capacity int, duration time.Duration) *Window {
	return &Window{capacity: capacity, duration: duration}
}

// WithRedis switches the Window to a Redis sorted-set backed
// implementation keyed by key, so its occupancy is shared across every
// process pointed at the same Redis instance instead of tracked
// per-process. A nil client is a no-op (keeps the in-process slice),
// which is what every call site gets when ratelimit.SharedClient/config's
// Redis address is unset.
func (w *Window) WithRedis(client *goredis.Client, key string) *Window {
	if client == nil {
		return w
	}
	w.redisClient = client
	w.redisKey = "citewatch:ratelimit:" + key
	return w
}

// Wait blocks until a call is permitted under the window, or ctx is
// cancelled. It records the call's start time on return.
func (w *Window) Wait(ctx context.Context) error {
	if w.capacity <= 0 {
		return nil
	}
	for {
		var wait time.Duration
		var ok bool
		var err error
		if w.redisClient != nil {
			wait, ok, err = w.reserveRedis(ctx)
			if err != nil {
				return err
			}
		} else {
			wait, ok = w.reserve()
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserveRedis is WithRedis's ZSET equivalent of reserve: it trims
// entries older than the window, checks occupancy, and either admits the
// call (ZADD, with an expiry so an abandoned key doesn't linger forever)
// or reports how long until the oldest entry falls out of the window.
func (w *Window) reserveRedis(ctx context.Context) (wait time.Duration, ok bool, err error) {
	now := time.Now()
	cutoff := now.Add(-w.duration)

	if err := w.redisClient.ZRemRangeByScore(ctx, w.redisKey, "-inf", strconv.FormatInt(cutoff.UnixNano(), 10)).Err(); err != nil {
		return 0, false, err
	}

	count, err := w.redisClient.ZCard(ctx, w.redisKey).Result()
	if err != nil {
		return 0, false, err
	}

	if count < int64(w.capacity) {
		member := strconv.FormatInt(now.UnixNano(), 10)
		if err := w.redisClient.ZAdd(ctx, w.redisKey, goredis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
			return 0, false, err
		}
		w.redisClient.Expire(ctx, w.redisKey, w.duration+time.Second)
		return 0, true, nil
	}

	oldest, err := w.redisClient.ZRangeWithScores(ctx, w.redisKey, 0, 0).Result()
	if err != nil {
		return 0, false, err
	}
	if len(oldest) == 0 {
		return w.duration, false, nil
	}
	oldestAt := time.Unix(0, int64(oldest[0].Score))
	return oldestAt.Add(w.duration).Sub(now), false, nil
}

// reserve attempts to admit a call now. If the window is full it returns
// the duration to sleep before the oldest timestamp falls out of the
// window, and ok=false.
func (w *Window) reserve() (wait time.Duration, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-w.duration)

	i := 0
	for i < len(w.times) && w.times[i].Before(cutoff) {
		i++
	}
	w.times = w.times[i:]

	if len(w.times) < w.capacity {
		w.times = append(w.times, now)
		return 0, true
	}
	oldest := w.times[0]
	return oldest.Add(w.duration).Sub(now), false
}

// Status reports the window's current occupancy for RateLimitStatus().
type Status struct {
	Limit   int
	Used    int
	ResetAt time.Time
}

// Status returns the limiter's current occupancy without mutating it.
func (w *Window) Status() Status {
	if w.redisClient != nil {
		return w.statusRedis()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := time.Now().Add(-w.duration)
	i := 0
	for i < len(w.times) && w.times[i].Before(cutoff) {
		i++
	}
	inWindow := w.times[i:]

	st := Status{Limit: w.capacity, Used: len(inWindow)}
	if len(inWindow) > 0 {
		st.ResetAt = inWindow[0].Add(w.duration)
	}
	return st
}

func (w *Window) statusRedis() Status {
	ctx := context.Background()
	cutoff := time.Now().Add(-w.duration)
	w.redisClient.ZRemRangeByScore(ctx, w.redisKey, "-inf", strconv.FormatInt(cutoff.UnixNano(), 10))

	count, err := w.redisClient.ZCard(ctx, w.redisKey).Result()
	if err != nil {
		return Status{Limit: w.capacity}
	}
	st := Status{Limit: w.capacity, Used: int(count)}
	if oldest, err := w.redisClient.ZRangeWithScores(ctx, w.redisKey, 0, 0).Result(); err == nil && len(oldest) > 0 {
		st.ResetAt = time.Unix(0, int64(oldest[0].Score)).Add(w.duration)
	}
	return st
}
