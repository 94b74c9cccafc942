package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/nodis/respkit/resp"
)

func TestPipelineFIFOOrdering(t *testing.T) {
	p := New(nil)

	e1 := p.Submit(resp.NewCommand("GET", "a"))
	e2 := p.Submit(resp.NewCommand("GET", "b"))
	e3 := p.Submit(resp.NewCommand("GET", "c"))

	p.Dispatch(resp.NewBulkString([]byte("1")))
	p.Dispatch(resp.NewBulkString([]byte("2")))
	p.Dispatch(resp.NewBulkString([]byte("3")))

	ctx := context.Background()
	for i, e := range []*Entry{e1, e2, e3} {
		v, err := e.Wait(ctx)
		if err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		want := []string{"1", "2", "3"}[i]
		if string(v.Bulk) != want {
			t.Fatalf("entry %d: got %q, want %q", i, v.Bulk, want)
		}
	}
}

func TestPipelineDiscardStillConsumesWireOrder(t *testing.T) {
	p := New(nil)

	e1 := p.Submit(resp.NewCommand("GET", "a"))
	e2 := p.Submit(resp.NewCommand("GET", "b"))
	e1.Discard()

	p.Dispatch(resp.NewBulkString([]byte("1")))
	p.Dispatch(resp.NewBulkString([]byte("2")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := e1.Wait(ctx); err == nil {
		t.Fatal("expected discarded entry's Wait to time out, not receive a late value")
	}

	v, err := e2.Wait(context.Background())
	if err != nil {
		t.Fatalf("e2.Wait: %v", err)
	}
	if string(v.Bulk) != "2" {
		t.Fatalf("e2 got %q, want %q — discard desynced the pipeline", v.Bulk, "2")
	}
}

func TestPipelineFailAllResolvesEveryEntry(t *testing.T) {
	p := New(nil)
	entries := p.SubmitBatch([]resp.Command{
		resp.NewCommand("PING"),
		resp.NewCommand("PING"),
	})

	p.FailAll(context.Canceled)

	for i, e := range entries {
		if _, err := e.Wait(context.Background()); err == nil {
			t.Fatalf("entry %d: expected ConnectionLostError, got nil", i)
		}
	}
	if p.Len() != 0 {
		t.Fatalf("pipeline should be drained after FailAll, got len %d", p.Len())
	}
}
