package reconnect

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/nodis/respkit/internal/conn"
	"github.com/nodis/respkit/internal/diag"
	"github.com/nodis/respkit/internal/log"
	"github.com/nodis/respkit/internal/pipeline"
	"github.com/nodis/respkit/internal/types"
)

var supervisorLog = log.New("resp:reconnect")

// Replay runs whatever the client needs to restore connection state
// after a successful reconnect — re-authenticating, re-selecting a
// database, resubscribing channels — before the supervisor declares
// the reconnect complete and resumes normal traffic.
type Replay func(ctx context.Context) error

// Supervisor owns the reconnect loop for one Connection: on loss it
// fails every in-flight pipeline entry, then retries Open with
// exponential backoff until it succeeds, the attempt budget is spent,
// or Stop is called. Modeled on the teacher's Manager.reconnect/onclose
// pair, translated from its SetTimeout-callback style into a goroutine
// driven by time.Timer and context cancellation.
type Supervisor struct {
	types.EventEmitter

	connection  *conn.Connection
	pipe        *pipeline.Pipeline
	diag        *diag.Diagnostics
	backoff     *Backoff
	maxAttempts float64
	replay      Replay
	onFrame     conn.FrameHandler

	reconnecting atomic.Bool
	stopped      atomic.Bool
}

// Options configures a Supervisor.
type Options struct {
	// MaxAttempts bounds how many reconnect attempts are made after a
	// loss before "reconnect_failed" fires. Non-positive means
	// unlimited, matching the teacher's math.Inf(1) default.
	MaxAttempts         float64
	MinDelayMillis      float64
	MaxDelayMillis      float64
	RandomizationFactor float64
	// Replay restores connection state after a successful reconnect
	// (auth, database selection, resubscription). May be nil.
	Replay Replay
}

// New builds a Supervisor over connection and pipe.
func New(connection *conn.Connection, pipe *pipeline.Pipeline, diagnostics *diag.Diagnostics, opts Options) *Supervisor {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = math.Inf(1)
	}
	return &Supervisor{
		EventEmitter: types.NewEventEmitter(),
		connection:   connection,
		pipe:         pipe,
		diag:         diagnostics,
		maxAttempts:  maxAttempts,
		replay:       opts.Replay,
		backoff: NewBackoff(
			WithMinDelayMillis(nonZero(opts.MinDelayMillis, 1_000)),
			WithMaxDelayMillis(nonZero(opts.MaxDelayMillis, 5_000)),
			WithJitter(opts.RandomizationFactor),
		),
	}
}

func nonZero(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}

// Start dials the connection for the first time and arranges for
// future losses to trigger the reconnect loop.
func (s *Supervisor) Start(ctx context.Context, onFrame conn.FrameHandler) error {
	s.onFrame = onFrame
	return s.connection.Open(ctx, onFrame, func(err error) { s.onClose(ctx, err) })
}

// Stop disables future reconnect attempts and closes the connection.
func (s *Supervisor) Stop() error {
	s.stopped.Store(true)
	return s.connection.Close()
}

func (s *Supervisor) onClose(ctx context.Context, err error) {
	supervisorLog.Debug("connection closed: %v", err)
	s.pipe.FailAll(err)
	s.Emit("close", err)

	if s.stopped.Load() {
		return
	}
	go s.reconnectLoop(ctx)
}

func (s *Supervisor) reconnectLoop(ctx context.Context) {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer s.reconnecting.Store(false)

	for {
		if s.stopped.Load() {
			return
		}
		if float64(s.backoff.Attempts()) >= s.maxAttempts {
			s.backoff.Reset()
			s.Emit("reconnect_failed")
			return
		}

		delay := s.backoff.Duration()
		supervisorLog.Debug("reconnecting in %dms", delay)
		select {
		case <-time.After(time.Duration(delay) * time.Millisecond):
		case <-ctx.Done():
			return
		}
		if s.stopped.Load() {
			return
		}

		s.diag.ReconnectAttempt()
		s.Emit("reconnect_attempt", s.backoff.Attempts())

		err := s.connection.Open(ctx, s.onFrame, func(closeErr error) { s.onClose(ctx, closeErr) })
		if err != nil {
			supervisorLog.Debug("reconnect attempt failed: %v", err)
			s.Emit("reconnect_error", err)
			continue
		}

		if s.replay != nil {
			if err := s.replay(ctx); err != nil {
				supervisorLog.Debug("reconnect replay failed: %v", err)
				s.Emit("reconnect_error", err)
				s.connection.Close()
				continue
			}
		}

		s.backoff.Reset()
		s.Emit("reconnect")
		return
	}
}
