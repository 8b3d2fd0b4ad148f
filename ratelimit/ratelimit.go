// Package ratelimit throttles calls to shared model backends.
//
// Each resource (usually a backend name) has a token bucket of Capacity
// tokens refilled evenly over Window. Resources without a configured
// capacity are not limited. When a backend answers with a rate-limit error
// the caller reports it with Reduce, which lowers the capacity to 75% of its
// current value.
//
//	lim := ratelimit.New()
//	lim.SetCapacity("anthropic", 50, time.Minute)
//	if err := lim.Acquire(ctx, "anthropic"); err != nil {
//	    return err
//	}
//
// A nil *Limiter is valid and never blocks.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/logging"
)

// reduceFactor is applied to a resource's capacity on Reduce.
const reduceFactor = 0.75

// Capacity describes one resource's limit.
type Capacity struct {
	Resource  string        `json:"resource"`
	Total     int           `json:"total"`
	Window    time.Duration `json:"window"`
	Available int           `json:"available"`
	Reduced   int           `json:"reduced"`
}

type bucket struct {
	limiter *rate.Limiter
	total   int
	window  time.Duration
	reduced int
}

// Limiter holds per-resource token buckets. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	logger  *logging.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(lim *Limiter) {
		if l != nil {
			lim.logger = l
		}
	}
}

// New creates a limiter with no configured resources.
func New(opts ...Option) *Limiter {
	lim := &Limiter{
		buckets: make(map[string]*bucket),
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(lim)
	}
	lim.logger = lim.logger.WithComponent("ratelimit")
	return lim
}

func every(total int, window time.Duration) rate.Limit {
	return rate.Limit(float64(total) / window.Seconds())
}

// SetCapacity allows total calls per window on resource, with bursts up to
// total. A non-positive total or window removes the limit.
func (l *Limiter) SetCapacity(resource string, total int, window time.Duration) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if total <= 0 || window <= 0 {
		delete(l.buckets, resource)
		return
	}
	if b, ok := l.buckets[resource]; ok {
		b.total, b.window, b.reduced = total, window, 0
		b.limiter.SetLimit(every(total, window))
		b.limiter.SetBurst(total)
		return
	}
	l.buckets[resource] = &bucket{
		limiter: rate.NewLimiter(every(total, window), total),
		total:   total,
		window:  window,
	}
}

func (l *Limiter) bucket(resource string) *bucket {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buckets[resource]
}

// Acquire waits for a token on resource. It fails with TIMEOUT or CANCELED
// when ctx ends first, and with RATE_LIMITED when ctx's deadline is too
// close for a token to arrive in time.
func (l *Limiter) Acquire(ctx context.Context, resource string) error {
	b := l.bucket(resource)
	if b == nil {
		return nil
	}
	err := b.limiter.Wait(ctx)
	if err == nil {
		return nil
	}

	opts := []errors.Option{errors.WithMetadata("resource", resource), errors.WithCause(err)}
	switch ctx.Err() {
	case context.Canceled:
		return errors.New(errors.ErrCodeCanceled, "waiting for rate limit canceled", opts...)
	case context.DeadlineExceeded:
		return errors.Timeout("deadline exceeded waiting for rate limit", opts...)
	}
	return errors.New(errors.ErrCodeRateLimit, "rate limit wait would exceed deadline", opts...)
}

// TryAcquire takes a token if one is available now.
func (l *Limiter) TryAcquire(resource string) bool {
	b := l.bucket(resource)
	if b == nil {
		return true
	}
	return b.limiter.Allow()
}

// Reduce lowers resource's capacity after the backend pushed back. The
// capacity never drops below one call per window.
func (l *Limiter) Reduce(resource, reason string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	b, ok := l.buckets[resource]
	if !ok {
		l.mu.Unlock()
		return
	}
	total := int(float64(b.total) * reduceFactor)
	if total < 1 {
		total = 1
	}
	b.total = total
	b.reduced++
	b.limiter.SetLimit(every(total, b.window))
	b.limiter.SetBurst(total)
	l.mu.Unlock()

	l.logger.Warn("capacity_reduced", map[string]interface{}{
		"resource": resource,
		"capacity": total,
		"reason":   reason,
	})
}

// Capacity reports resource's current limit, or nil when it is unlimited.
func (l *Limiter) Capacity(resource string) *Capacity {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[resource]
	if !ok {
		return nil
	}
	return &Capacity{
		Resource:  resource,
		Total:     b.total,
		Window:    b.window,
		Available: int(b.limiter.Tokens()),
		Reduced:   b.reduced,
	}
}
