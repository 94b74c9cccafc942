// Package reconnect implements the Reconnect Supervisor: detecting
// connection loss, failing in-flight pipeline entries, retrying with
// exponential backoff, and replaying auth/select/subscriptions on
// success. It is grounded on the teacher's Manager reconnect loop
// (clients/socket/manager.go's reconnect/onclose pair) and its backoff
// timer (clients/socket/utils/backo2.go), adapted from a timer-callback
// style to a goroutine-plus-context style idiomatic for a Go library.
package reconnect

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
)

// Backoff computes the exponential, jittered delay between reconnect
// attempts. Its fields are atomic so Duration, Attempts, and Reset can
// be called concurrently. Delay settings are fixed at construction by
// the BackoffOptions passed to NewBackoff.
type Backoff struct {
	min      atomic.Value
	max      atomic.Value
	factor   atomic.Value
	jitter   atomic.Value
	attempts atomic.Uint64
}

// BackoffOption configures a Backoff at construction.
type BackoffOption func(*backoffConfig)

type backoffConfig struct {
	min, max, factor, jitter float64
}

// WithMinDelayMillis sets the first retry's delay.
func WithMinDelayMillis(min float64) BackoffOption {
	return func(c *backoffConfig) { c.min = min }
}

// WithMaxDelayMillis caps the delay exponential backoff can reach.
func WithMaxDelayMillis(max float64) BackoffOption {
	return func(c *backoffConfig) { c.max = max }
}

// WithFactor sets the exponential growth factor (default 2).
func WithFactor(factor float64) BackoffOption {
	return func(c *backoffConfig) { c.factor = factor }
}

// WithJitter sets the randomization factor in [0,1]; values outside
// that range disable jitter.
func WithJitter(jitter float64) BackoffOption {
	return func(c *backoffConfig) {
		if jitter > 0 && jitter <= 1 {
			c.jitter = jitter
		}
	}
}

// NewBackoff builds a Backoff with the given options, defaulting to a
// 100ms floor, 10s ceiling, and factor 2 — the same defaults the
// teacher ships.
func NewBackoff(opts ...BackoffOption) *Backoff {
	cfg := backoffConfig{min: 100, max: 10_000, factor: 2}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Backoff{}
	b.min.Store(cfg.min)
	b.max.Store(cfg.max)
	b.factor.Store(cfg.factor)
	b.jitter.Store(cfg.jitter)
	return b
}

// Attempts returns the number of Duration calls since the last Reset.
func (b *Backoff) Attempts() uint64 { return b.attempts.Load() }

// Duration returns the next backoff delay in milliseconds and
// increments the attempt counter.
func (b *Backoff) Duration() int64 {
	ms := b.min.Load().(float64) * math.Pow(b.factor.Load().(float64), float64(b.attempts.Add(1)-1))
	if jitter := b.jitter.Load().(float64); jitter > 0 {
		ms += jitter * ms * (rand.Float64()*2 - 1)
	}
	return int64(math.Max(b.min.Load().(float64), math.Min(ms, b.max.Load().(float64))))
}

// Reset zeroes the attempt counter, e.g. after a successful reconnect.
func (b *Backoff) Reset() { b.attempts.Store(0) }
