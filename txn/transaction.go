// Package txn implements the Transaction Coordinator: MULTI/EXEC
// queuing with client-side "forget" support. Queue and Forget only ever
// touch an in-memory buffer — nothing reaches the wire until Execute,
// which flushes MULTI, every queued command, and EXEC as one
// SubmitAndWrite batch and reads back all of their replies in order.
// This matches the original implementation this protocol was distilled
// from (src/client/transaction.rs: queue()/forget() append to local
// Vecs, execute() alone sends the batch), and keeps the connection from
// ever sitting with a MULTI open-but-idle between Queue calls, which
// would let a concurrent Client.Send on the same connection slip a
// command into the in-flight transaction (MULTI scope is per
// connection, not per Transaction). The forget/queue-time validation
// rules come from that same original implementation, which rejects
// Forget on an unqueued index and Queue after Execute as client bugs
// rather than silently ignoring them.
package txn

import (
	"context"
	"fmt"
	"sync"

	"github.com/nodis/respkit/internal/errs"
	"github.com/nodis/respkit/internal/pipeline"
	"github.com/nodis/respkit/resp"
)

// Writer is the minimal surface Transaction needs to put bytes on the
// wire; internal/conn.Connection satisfies it. SubmitAndWrite enqueues
// every pipeline entry for the flushed batch and writes it atomically,
// so Execute's replies land in the FIFO in exactly the order they were
// written even when another goroutine is calling Send concurrently on
// the same connection.
type Writer interface {
	WriteBatch(ctx context.Context, data []byte) error
	SubmitAndWrite(ctx context.Context, data []byte, submit func()) error
}

// Transaction accumulates queued commands under MULTI and extracts
// their results from one EXEC reply. It is not safe for concurrent use
// by multiple goroutines on the same Transaction instance beyond the
// locking Queue/Forget/Execute already do internally — callers building
// a transaction should do so from one goroutine, the same way the
// protocol itself is inherently sequential (MULTI must precede EXEC).
type Transaction struct {
	mu     sync.Mutex
	pipe   *pipeline.Pipeline
	writer Writer

	executed  bool
	queued    []resp.Command
	forgotten map[int]bool
}

// New creates a Transaction over pipe/writer.
func New(pipe *pipeline.Pipeline, writer Writer) *Transaction {
	return &Transaction{pipe: pipe, writer: writer}
}

// Queue buffers cmd locally and returns the index Forget and the
// eventual EXEC result use to refer back to it. Nothing is written to
// the wire until Execute.
func (t *Transaction) Queue(ctx context.Context, cmd resp.Command) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.executed {
		return -1, &errs.ClientError{Reason: "Queue called after Execute"}
	}
	idx := len(t.queued)
	t.queued = append(t.queued, cmd)
	return idx, nil
}

// Forget marks the command at index so Execute omits its result,
// without affecting what was actually sent to the server — the server
// still executes it, only the client-side result is dropped.
func (t *Transaction) Forget(index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.executed {
		return &errs.ClientError{Reason: "Forget called after Execute"}
	}
	if index < 0 || index >= len(t.queued) {
		return &errs.ClientError{Reason: fmt.Sprintf("Forget index %d out of range [0,%d)", index, len(t.queued))}
	}
	if t.forgotten == nil {
		t.forgotten = make(map[int]bool)
	}
	t.forgotten[index] = true
	return nil
}

// Execute flushes MULTI, every queued command, and EXEC as a single
// pipelined batch, then extracts the result: a ServerError if MULTI,
// any queued command, or EXEC itself errored, UnexpectedTransactionReply
// if a queued command's reply wasn't `+QUEUED` or EXEC's reply doesn't
// match the queued command count, AbortedError if the server returned
// the null array (a WATCHed key changed), or otherwise the surviving
// (non-Forgotten) results — a single Value if exactly one remains, else
// an Array Value holding all of them in queue order.
func (t *Transaction) Execute(ctx context.Context) (resp.Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.executed {
		return resp.Value{}, &errs.ClientError{Reason: "transaction already executed"}
	}
	if len(t.queued) == 0 {
		return resp.Value{}, &errs.ClientError{Reason: "Execute called with nothing queued"}
	}
	t.executed = true

	batch := make([]resp.Command, 0, len(t.queued)+2)
	batch = append(batch, resp.NewCommand("MULTI"))
	batch = append(batch, t.queued...)
	batch = append(batch, resp.NewCommand("EXEC"))

	var entries []*pipeline.Entry
	encoded := resp.EncodeBatch(batch)
	if err := t.writer.SubmitAndWrite(ctx, encoded, func() { entries = t.pipe.SubmitBatch(batch) }); err != nil {
		for _, e := range entries {
			e.Discard()
		}
		return resp.Value{}, err
	}

	multiReply, err := entries[0].Wait(ctx)
	if err != nil {
		return resp.Value{}, err
	}
	if multiReply.Type == resp.TypeError {
		return resp.Value{}, &errs.ServerError{Kind: multiReply.Err.Kind, Description: multiReply.Err.Description}
	}

	for i, cmd := range t.queued {
		v, err := entries[i+1].Wait(ctx)
		if err != nil {
			return resp.Value{}, err
		}
		switch {
		case v.Type == resp.TypeError:
			return resp.Value{}, &errs.ServerError{Kind: v.Err.Kind, Description: v.Err.Description}
		case v.Type == resp.TypeSimpleString && v.Str == "QUEUED":
		default:
			return resp.Value{}, &errs.UnexpectedTransactionReply{Detail: fmt.Sprintf("queuing %s: got %s", cmd.Name(), v.Type)}
		}
	}

	execReply, err := entries[len(entries)-1].Wait(ctx)
	if err != nil {
		return resp.Value{}, err
	}
	switch {
	case execReply.Type == resp.TypeError:
		return resp.Value{}, &errs.ServerError{Kind: execReply.Err.Kind, Description: execReply.Err.Description}
	case execReply.Type == resp.TypeArray && execReply.Null:
		return resp.Value{}, &errs.AbortedError{}
	case execReply.Type == resp.TypeArray && len(execReply.Array) == len(t.queued):
		survivors := make([]resp.Value, 0, len(execReply.Array))
		for i, r := range execReply.Array {
			if t.forgotten[i] {
				continue
			}
			survivors = append(survivors, r)
		}
		if len(survivors) == 1 {
			return survivors[0], nil
		}
		return resp.NewArray(survivors...), nil
	default:
		return resp.Value{}, &errs.UnexpectedTransactionReply{Detail: fmt.Sprintf("EXEC: got %s", execReply.Type)}
	}
}

// Len returns the number of commands queued so far.
func (t *Transaction) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queued)
}
