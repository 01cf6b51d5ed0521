package upstream

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/relayhq/botgate/internal/domain"
)

// Rate-limit headers reported by the upstream API.
const (
	headerBucket     = "X-RateLimit-Bucket"
	headerRemaining  = "X-RateLimit-Remaining"
	headerResetAfter = "X-RateLimit-Reset-After"
	headerGlobal     = "X-RateLimit-Global"
	headerRetryAfter = "Retry-After"
)

// limiter tracks per-bucket rate-limit state learned from response headers.
// Routes map to buckets lazily; a route that has never completed a call has
// no bucket and reports domain.BucketNA.
type limiter struct {
	mu          sync.Mutex
	routes      map[string]string // method:route -> bucket id
	buckets     map[string]*bucketState
	globalUntil time.Time
}

type bucketState struct {
	remaining int
	resetAt   time.Time
}

func newLimiter() *limiter {
	return &limiter{
		routes:  make(map[string]string),
		buckets: make(map[string]*bucketState),
	}
}

func routeKey(method, route string) string {
	return method + ":" + route
}

// bucketFor returns the known bucket id for a route, or domain.BucketNA.
func (l *limiter) bucketFor(method, route string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.routes[routeKey(method, route)]; ok {
		return b
	}
	return domain.BucketNA
}

// wait blocks until the route's bucket (and any global lockout) permits a
// call, or the context expires.
func (l *limiter) wait(ctx context.Context, method, route string) error {
	for {
		delay := l.delay(method, route)
		if delay <= 0 {
			return nil
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

func (l *limiter) delay(method, route string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if l.globalUntil.After(now) {
		return l.globalUntil.Sub(now)
	}

	bucket, ok := l.routes[routeKey(method, route)]
	if !ok {
		return 0
	}
	state, ok := l.buckets[bucket]
	if !ok || state.remaining > 0 || !state.resetAt.After(now) {
		return 0
	}
	return state.resetAt.Sub(now)
}

// update records rate-limit state from a response and returns the bucket id
// (or domain.BucketNA when the response carried none).
func (l *limiter) update(method, route string, h http.Header) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h.Get(headerGlobal) != "" {
		if d := parseRetryAfter(h); d > 0 {
			l.globalUntil = time.Now().Add(d)
		}
	}

	bucket := h.Get(headerBucket)
	if bucket == "" {
		if b, ok := l.routes[routeKey(method, route)]; ok {
			return b
		}
		return domain.BucketNA
	}
	l.routes[routeKey(method, route)] = bucket

	state, ok := l.buckets[bucket]
	if !ok {
		state = &bucketState{}
		l.buckets[bucket] = state
	}
	if remaining, err := strconv.Atoi(h.Get(headerRemaining)); err == nil {
		state.remaining = remaining
	}
	if resetAfter, err := strconv.ParseFloat(h.Get(headerResetAfter), 64); err == nil {
		state.resetAt = time.Now().Add(time.Duration(resetAfter * float64(time.Second)))
	}

	return bucket
}

func retryAfterDelay(h http.Header) time.Duration {
	if d := parseRetryAfter(h); d > 0 {
		return d
	}
	return time.Second
}

func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get(headerRetryAfter)
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
