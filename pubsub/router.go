package pubsub

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/nodis/respkit/internal/diag"
	"github.com/nodis/respkit/internal/types"
	"github.com/nodis/respkit/resp"
)

// ackWaiter is one pending (un)subscribe acknowledgement. Redis
// replies to SUBSCRIBE/UNSUBSCRIBE/PSUBSCRIBE/... with one frame per
// name, in the order the names were sent — the same FIFO-correlation
// shape as the command pipeline, so Router's ack queue is modeled
// directly on internal/pipeline.Pipeline.
type ackWaiter struct {
	kind   Kind
	name   string
	doneCh chan struct{}
}

// Router dispatches classified pub/sub frames (spec §4.4): `message`
// and `pmessage`/`smessage` pushes go to the bound Stream; subscribe
// and unsubscribe acks resolve the oldest pending ackWaiter of their
// kind. Registry bindings are updated by Manager once a whole AckBatch
// has resolved, not here.
type Router struct {
	registry *Registry
	diag     *diag.Diagnostics

	// acks holds one FIFO per Kind: subscribe/unsubscribe acks for
	// channels, patterns, and shard channels are independent command
	// streams on the wire and only ordered within their own kind.
	acks map[Kind]*types.Slice[*ackWaiter]
}

// NewRouter builds a Router over registry, recording drops via
// diagnostics (nil is fine, all its methods are nil-safe).
func NewRouter(registry *Registry, diagnostics *diag.Diagnostics) *Router {
	return &Router{
		registry: registry,
		diag:     diagnostics,
		acks: map[Kind]*types.Slice[*ackWaiter]{
			KindChannel:      types.NewSlice[*ackWaiter](),
			KindPattern:      types.NewSlice[*ackWaiter](),
			KindShardChannel: types.NewSlice[*ackWaiter](),
		},
	}
}

// AckBatch is a group of pending (un)subscribe acknowledgements
// registered together, so every waiter is already enqueued on the
// Router's FIFO before the caller writes the triggering command to the
// wire — registering one waiter at a time interleaved with the write
// would race a fast server's reply against the next Push.
type AckBatch struct {
	waiters []*ackWaiter
}

// ExpectAcks registers one pending ack per name, under kind, in the
// same order the corresponding SUBSCRIBE/UNSUBSCRIBE-family command
// will list them.
func (r *Router) ExpectAcks(k Kind, names []string) *AckBatch {
	b := &AckBatch{waiters: make([]*ackWaiter, len(names))}
	for i, name := range names {
		w := &ackWaiter{kind: k, name: name, doneCh: make(chan struct{})}
		r.acks[k].Push(w)
		b.waiters[i] = w
	}
	return b
}

// Wait blocks until every registered ack has arrived or ctx is done. A
// per-name timeout does not stop it from waiting out the rest — every
// failure is collected and returned together via go-multierror, so a
// caller that queued a 10-channel SUBSCRIBE learns about every channel
// that didn't ack, not just the first.
func (b *AckBatch) Wait(ctx context.Context) error {
	var result *multierror.Error
	for _, w := range b.waiters {
		select {
		case <-w.doneCh:
		case <-ctx.Done():
			select {
			case <-w.doneCh:
			default:
				result = multierror.Append(result, fmt.Errorf("ack for %q: %w", w.name, ctx.Err()))
			}
		}
	}
	return result.ErrorOrNil()
}

// Route handles one frame the mode manager classified as a pub/sub
// push or ack. It must be called in wire arrival order.
func (r *Router) Route(v resp.Value) {
	if len(v.Array) == 0 {
		return
	}
	head, err := v.Array[0].AsBulkString()
	if err != nil {
		return
	}
	switch strings.ToLower(string(head)) {
	case "message":
		r.routeMessage(KindChannel, v.Array)
	case "pmessage":
		r.routePMessage(v.Array)
	case "smessage":
		r.routeMessage(KindShardChannel, v.Array)
	case "subscribe":
		r.routeAck(KindChannel, v.Array, true)
	case "unsubscribe":
		r.routeAck(KindChannel, v.Array, false)
	case "psubscribe":
		r.routeAck(KindPattern, v.Array, true)
	case "punsubscribe":
		r.routeAck(KindPattern, v.Array, false)
	case "ssubscribe":
		r.routeAck(KindShardChannel, v.Array, true)
	case "sunsubscribe":
		r.routeAck(KindShardChannel, v.Array, false)
	}
}

func (r *Router) routeMessage(k Kind, fields []resp.Value) {
	if len(fields) < 3 {
		return
	}
	channel, err := fields[1].AsBulkString()
	if err != nil {
		return
	}
	stream, ok := r.registry.Lookup(k, string(channel))
	if !ok {
		r.diag.PushDropped("no_subscriber")
		return
	}
	if k == KindShardChannel {
		r.diag.ShardMessageDelivered(string(channel))
	}
	stream.deliver(Message{Kind: k, Channel: string(channel), Payload: fields[2].Bulk})
}

func (r *Router) routePMessage(fields []resp.Value) {
	if len(fields) < 4 {
		return
	}
	pattern, err := fields[1].AsBulkString()
	if err != nil {
		return
	}
	channel, err := fields[2].AsBulkString()
	if err != nil {
		return
	}
	stream, ok := r.registry.Lookup(KindPattern, string(pattern))
	if !ok {
		r.diag.PushDropped("no_subscriber")
		return
	}
	stream.deliver(Message{Kind: KindPattern, Channel: string(channel), Pattern: string(pattern), Payload: fields[3].Bulk})
}

// routeAck resolves the oldest pending ack for kind. subscribing is
// unused for now — acks carry no error signal of their own in RESP2,
// but the parameter documents which direction the caller observed so a
// future protocol extension (e.g. RESP3 error replies to SUBSCRIBE) has
// somewhere to plug in.
func (r *Router) routeAck(k Kind, fields []resp.Value, subscribing bool) {
	_ = subscribing
	w, err := r.acks[k].Shift()
	if err != nil {
		return
	}
	close(w.doneCh)
}
