package txn

import (
	"context"
	"sync"
	"testing"

	"github.com/nodis/respkit/internal/errs"
	"github.com/nodis/respkit/internal/pipeline"
	"github.com/nodis/respkit/resp"
)

// scriptedWriter simulates a server that replies to one flushed batch
// (MULTI, each queued command, and EXEC) with a pre-scripted reply per
// entry, in order, dispatched as soon as the batch is written —
// Transaction.Execute now writes that whole batch in a single
// SubmitAndWrite call, so there is exactly one write to script replies
// for, not one per command.
type scriptedWriter struct {
	mu      sync.Mutex
	pipe    *pipeline.Pipeline
	replies []resp.Value
}

func (w *scriptedWriter) WriteBatch(ctx context.Context, data []byte) error {
	return w.SubmitAndWrite(ctx, data, func() {})
}

func (w *scriptedWriter) SubmitAndWrite(ctx context.Context, data []byte, submit func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	submit()
	for _, v := range w.replies {
		w.pipe.Dispatch(v)
	}
	return nil
}

func TestTransactionQueueAndExecute(t *testing.T) {
	pipe := pipeline.New(nil)
	w := &scriptedWriter{pipe: pipe, replies: []resp.Value{
		resp.NewSimpleString("OK"),               // MULTI
		resp.NewSimpleString("QUEUED"),            // SET
		resp.NewSimpleString("QUEUED"),            // INCR
		resp.NewArray(resp.NewSimpleString("OK"), resp.NewInteger(2)), // EXEC
	}}
	tx := New(pipe, w)

	if _, err := tx.Queue(context.Background(), resp.NewCommand("SET", "k", "v")); err != nil {
		t.Fatalf("Queue SET: %v", err)
	}
	if _, err := tx.Queue(context.Background(), resp.NewCommand("INCR", "c")); err != nil {
		t.Fatalf("Queue INCR: %v", err)
	}

	result, err := tx.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Array) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Array))
	}
	if result.Array[1].Int != 2 {
		t.Fatalf("unexpected second result: %+v", result.Array[1])
	}
}

func TestTransactionForgetFiltersResult(t *testing.T) {
	pipe := pipeline.New(nil)
	w := &scriptedWriter{pipe: pipe, replies: []resp.Value{
		resp.NewSimpleString("OK"),
		resp.NewSimpleString("QUEUED"),
		resp.NewSimpleString("QUEUED"),
		resp.NewArray(resp.NewSimpleString("OK"), resp.NewInteger(2)),
	}}
	tx := New(pipe, w)

	idx, _ := tx.Queue(context.Background(), resp.NewCommand("SET", "k", "v"))
	if _, err := tx.Queue(context.Background(), resp.NewCommand("INCR", "c")); err != nil {
		t.Fatalf("Queue INCR: %v", err)
	}
	if err := tx.Forget(idx); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	result, err := tx.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Type != resp.TypeInteger || result.Int != 2 {
		t.Fatalf("expected single surviving result 2, got %+v", result)
	}
}

func TestTransactionAbortedOnNullArray(t *testing.T) {
	pipe := pipeline.New(nil)
	w := &scriptedWriter{pipe: pipe, replies: []resp.Value{
		resp.NewSimpleString("OK"),
		resp.NewSimpleString("QUEUED"),
		resp.NewNullArray(),
	}}
	tx := New(pipe, w)

	if _, err := tx.Queue(context.Background(), resp.NewCommand("GET", "k")); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	_, err := tx.Execute(context.Background())
	if _, ok := err.(*errs.AbortedError); !ok {
		t.Fatalf("expected AbortedError, got %v (%T)", err, err)
	}
}

func TestTransactionForgetUnqueuedIndexIsClientError(t *testing.T) {
	pipe := pipeline.New(nil)
	w := &scriptedWriter{pipe: pipe}
	tx := New(pipe, w)

	err := tx.Forget(0)
	if _, ok := err.(*errs.ClientError); !ok {
		t.Fatalf("expected ClientError, got %v (%T)", err, err)
	}
}

func TestTransactionQueueAfterExecuteIsClientError(t *testing.T) {
	pipe := pipeline.New(nil)
	w := &scriptedWriter{pipe: pipe, replies: []resp.Value{
		resp.NewSimpleString("OK"),
		resp.NewSimpleString("QUEUED"),
		resp.NewArray(resp.NewSimpleString("OK")),
	}}
	tx := New(pipe, w)

	if _, err := tx.Queue(context.Background(), resp.NewCommand("SET", "k", "v")); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if _, err := tx.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := tx.Queue(context.Background(), resp.NewCommand("SET", "k2", "v2")); err == nil {
		t.Fatal("expected Queue after Execute to fail")
	} else if _, ok := err.(*errs.ClientError); !ok {
		t.Fatalf("expected ClientError, got %v (%T)", err, err)
	}
}
