// Package pipeline implements the Command Pipeline: a strict FIFO
// matching each outbound command to the next inbound RESP2 response
// (or RESP3 non-push reply), independent of how many commands were
// batched into one write. It is grounded on the teacher's transport
// queue, which matches Engine.IO packets to acks FIFO over one
// connection (clients/engine/socket.go's writeBuffer/callbackBuffer
// pairing), generalized from "packet acks" to "command replies" and
// simplified since RESP has no packet ids of its own — position in the
// queue IS the correlation key, as spec §4.2 requires.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/nodis/respkit/internal/diag"
	"github.com/nodis/respkit/internal/errs"
	"github.com/nodis/respkit/internal/types"
	"github.com/nodis/respkit/resp"
)

// Result is what an Entry resolves to: either a decoded reply or the
// error that kept it from arriving.
type Result struct {
	Value resp.Value
	Err   error
}

// Entry is one in-flight request: the command that was written and the
// slot its eventual response lands in.
type Entry struct {
	Command   resp.Command
	resultCh  chan Result
	discarded atomic.Bool
}

// Wait blocks until the matching response is dispatched, ctx is
// cancelled, or the pipeline fails the entry outright (connection
// loss). Discard is still called in the ctx-cancelled case so the
// eventual wire reply is dropped instead of misdelivered to whichever
// caller happens to Wait next.
func (e *Entry) Wait(ctx context.Context) (resp.Value, error) {
	select {
	case r := <-e.resultCh:
		return r.Value, r.Err
	case <-ctx.Done():
		e.Discard()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return resp.Value{}, &errs.TimeoutError{}
		}
		return resp.Value{}, ctx.Err()
	}
}

// Discard marks the entry so its eventual response is consumed off the
// wire to preserve FIFO ordering, but dropped rather than delivered —
// per spec §4.2, a cancelled or timed-out caller must never desync the
// pipeline for every request behind it.
func (e *Entry) Discard() {
	e.discarded.Store(true)
}

// Pipeline is the FIFO of in-flight entries for one connection.
type Pipeline struct {
	entries *types.Slice[*Entry]
	diag    *diag.Diagnostics
}

// New creates an empty Pipeline.
func New(diagnostics *diag.Diagnostics) *Pipeline {
	return &Pipeline{entries: types.NewSlice[*Entry](), diag: diagnostics}
}

// Submit enqueues one command's Entry. Callers must run Submit (or
// SubmitBatch) and the matching wire write under
// internal/conn.Connection.SubmitAndWrite's single critical section, so
// two concurrent callers on the same Connection can never have their
// "enqueue, then write" pairs interleave and desync queue order from
// wire order.
func (p *Pipeline) Submit(cmd resp.Command) *Entry {
	e := &Entry{Command: cmd, resultCh: make(chan Result, 1)}
	p.entries.Push(e)
	return e
}

// SubmitBatch enqueues n commands' Entries in order, for a single
// concatenated write per spec §4.3.
func (p *Pipeline) SubmitBatch(cmds []resp.Command) []*Entry {
	entries := make([]*Entry, len(cmds))
	for i, cmd := range cmds {
		entries[i] = p.Submit(cmd)
	}
	return entries
}

// Dispatch matches one inbound response frame to the oldest
// outstanding entry. It must be called exactly once per frame the
// mode manager classifies as a response (never for pushes), in wire
// arrival order.
func (p *Pipeline) Dispatch(v resp.Value) {
	e, err := p.entries.Shift()
	if err != nil {
		// A response arrived with nothing queued to match it; nothing
		// to do but drop it, since there is no entry to blame.
		p.diag.ResponseDiscarded()
		return
	}
	p.deliver(e, Result{Value: v})
}

// FailAll resolves every outstanding entry with err, for use by the
// reconnect supervisor when the underlying connection is lost mid
// flight (spec §4.2, §4.6).
func (p *Pipeline) FailAll(err error) {
	for {
		e, shiftErr := p.entries.Shift()
		if shiftErr != nil {
			return
		}
		p.deliver(e, Result{Err: &errs.ConnectionLostError{Cause: err}})
	}
}

// Len reports the number of entries awaiting a response.
func (p *Pipeline) Len() int {
	return p.entries.Len()
}

func (p *Pipeline) deliver(e *Entry, r Result) {
	if e.discarded.Load() {
		p.diag.ResponseDiscarded()
		return
	}
	e.resultCh <- r
}
