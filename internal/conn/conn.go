// Package conn owns the single duplex byte stream a client talks RESP
// over: the writer half (serialized batch writes, optional rate
// limiting) and the reader half (a continuously-running decode loop
// feeding frames to a callback). It is grounded on the teacher's
// transport layer (clients/engine/socket.go, clients/engine/websocket.go),
// generalized from Engine.IO's packet transport to the RESP byte
// stream and simplified: respkit has exactly one transport shape per
// Connection (set by the Dialer), not a polymorphic upgrade chain.
package conn

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nodis/respkit/internal/diag"
	"github.com/nodis/respkit/internal/log"
	"github.com/nodis/respkit/internal/types"
	"github.com/nodis/respkit/resp"
)

var connLog = log.New("resp:conn")

// FrameHandler is called once per decoded frame, in arrival order, on
// the reader goroutine. It must not block for long — it runs inline in
// the read loop.
type FrameHandler func(resp.Value)

// Connection owns one dialed net.Conn and runs the codec over it.
type Connection struct {
	types.EventEmitter

	// id identifies this Connection instance in log lines across its
	// whole lifetime, including every reconnect dial the Reconnect
	// Supervisor makes over it.
	id      string
	dialer  Dialer
	limiter *RateLimiter
	diag    *diag.Diagnostics

	writeMu sync.Mutex
	nc      net.Conn
}

// New creates an unopened Connection. Call Open to dial and start the
// reader loop.
func New(dialer Dialer, limiter *RateLimiter, diagnostics *diag.Diagnostics) *Connection {
	return &Connection{
		EventEmitter: types.NewEventEmitter(),
		id:           uuid.NewString(),
		dialer:       dialer,
		limiter:      limiter,
		diag:         diagnostics,
	}
}

// ID returns the Connection's stable instance identifier.
func (c *Connection) ID() string { return c.id }

// Open dials the underlying stream and starts the reader loop, which
// runs until the stream errors or Close is called. onFrame is invoked
// for every decoded frame; onClose is invoked exactly once when the
// reader loop exits, with the error that ended it (nil on a clean
// Close).
func (c *Connection) Open(ctx context.Context, onFrame FrameHandler, onClose func(error)) error {
	nc, err := c.dialer.Dial(ctx)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	c.nc = nc
	c.writeMu.Unlock()

	connLog.Debug("connection %s opened", c.id)
	c.Emit("open")

	go c.readLoop(nc, onFrame, onClose)
	return nil
}

// WriteBatch serializes cmds' pre-encoded bytes and flushes them as a
// single write, matching spec §4.3's "one concatenated write per
// batch" rule. It is SubmitAndWrite with a no-op submit step, for
// writes (e.g. a fire-and-forget unsubscribe) that have no FIFO
// correlation state of their own to enqueue.
func (c *Connection) WriteBatch(ctx context.Context, data []byte) error {
	return c.SubmitAndWrite(ctx, data, func() {})
}

// SubmitAndWrite runs submit and the write of data under the same
// writeMu critical section, so that two concurrent callers' "enqueue
// FIFO correlation state, then put bytes on the wire" pairs can never
// interleave — submit order and wire order always agree, even when
// many goroutines (Client.Send, pubsub.Manager, txn.Transaction) share
// this one Connection. submit must not block; it only registers
// whatever state (a pipeline Entry, a pub/sub AckBatch) needs to
// resolve in true wire order, matching spec §4.3/§5's single-writer
// model of the outbound queue.
func (c *Connection) SubmitAndWrite(ctx context.Context, data []byte, submit func()) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	submit()

	if c.nc == nil {
		return net.ErrClosed
	}
	_, err := c.nc.Write(data)
	return err
}

// Close closes the underlying stream. The reader loop's onClose fires
// with nil once it observes the resulting EOF/closed-connection error.
func (c *Connection) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.nc == nil {
		return nil
	}
	err := c.nc.Close()
	c.nc = nil
	return err
}

func (c *Connection) readLoop(nc net.Conn, onFrame FrameHandler, onClose func(error)) {
	const growBy = 4096
	buf := make([]byte, 0, growBy)
	chunk := make([]byte, growBy)

	var loopErr error
	for {
		n, err := nc.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			buf, loopErr = c.drainFrames(buf, onFrame)
			if loopErr != nil {
				break
			}
		}
		if err != nil {
			if err == io.EOF || stderrors.Is(err, net.ErrClosed) || stderrors.Is(err, io.ErrClosedPipe) {
				loopErr = nil
			} else {
				loopErr = errors.Wrapf(err, "connection %s read loop", c.id)
			}
			break
		}
	}

	connLog.Debug("connection %s closed: %v", c.id, loopErr)
	c.Emit("close", loopErr)
	if onClose != nil {
		onClose(loopErr)
	}
}

// drainFrames decodes as many complete frames as buf currently holds,
// invoking onFrame for each, and returns the remaining undecoded
// suffix. A parse error is fatal and is returned to the caller, which
// ends the read loop — per spec §4.1, the decoder never attempts
// resynchronization.
func (c *Connection) drainFrames(buf []byte, onFrame FrameHandler) ([]byte, error) {
	for {
		v, n, err := resp.Decode(buf)
		if err == resp.ErrNeedMoreData {
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
		onFrame(v)
		buf = buf[n:]
	}
}
