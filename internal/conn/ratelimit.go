package conn

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter optionally throttles the writer half before a batch is
// flushed, the same place the teacher's transport serializes writes
// under a mutex (clients/engine/websocket.go). It never reorders
// pipeline entries — the limiter is consulted before a caller's entries
// are enqueued, and the enqueue and the write then happen together
// under the write lock — it only delays when the bytes hit the wire.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a token-bucket limiter allowing burst commands
// immediately and refilling at commandsPerSecond thereafter. A nil
// *RateLimiter (or one built with commandsPerSecond <= 0) disables
// limiting.
func NewRateLimiter(commandsPerSecond float64, burst int) *RateLimiter {
	if commandsPerSecond <= 0 {
		return nil
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(commandsPerSecond), burst)}
}

// Wait blocks until the limiter permits one more write, or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}
