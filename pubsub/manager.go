package pubsub

import (
	"context"

	"github.com/nodis/respkit/internal/diag"
	"github.com/nodis/respkit/resp"
)

// Writer is the minimal surface Manager needs from the connection.
// SUBSCRIBE/UNSUBSCRIBE and friends never go through the command
// pipeline (spec §4.4 — their replies are pushes, not pipelined
// responses), so Manager talks to the wire directly rather than
// through internal/pipeline. SubmitAndWrite registers the Router's
// AckBatch and writes the triggering command atomically, so the ack
// queue's order always matches true wire order even when
// client.Client, pubsub.Manager, and txn.Transaction share one
// connection from different goroutines.
type Writer interface {
	WriteBatch(ctx context.Context, data []byte) error
	SubmitAndWrite(ctx context.Context, data []byte, submit func()) error
}

const defaultSinkBuffer = 256

// Manager is the public-facing half of the subscription system: it
// owns the Registry and Router and exposes the Subscribe/Unsubscribe
// family the client surface calls into.
type Manager struct {
	registry *Registry
	router   *Router
	writer   Writer
	diag     *diag.Diagnostics
}

// NewManager wires a Registry, Router, and Writer together.
func NewManager(writer Writer, diagnostics *diag.Diagnostics) *Manager {
	registry := NewRegistry()
	return &Manager{
		registry: registry,
		router:   NewRouter(registry, diagnostics),
		writer:   writer,
		diag:     diagnostics,
	}
}

// Router returns the Manager's Router, for the mode manager/client to
// feed classified push and ack frames into.
func (m *Manager) Router() *Router { return m.router }

// Registry returns the Manager's Registry, for resubscribe replay.
func (m *Manager) Registry() *Registry { return m.registry }

func subscribeCommandName(k Kind) string {
	switch k {
	case KindPattern:
		return "PSUBSCRIBE"
	case KindShardChannel:
		return "SSUBSCRIBE"
	default:
		return "SUBSCRIBE"
	}
}

func unsubscribeCommandName(k Kind) string {
	switch k {
	case KindPattern:
		return "PUNSUBSCRIBE"
	case KindShardChannel:
		return "SUNSUBSCRIBE"
	default:
		return "UNSUBSCRIBE"
	}
}

// Subscribe writes the corresponding SUBSCRIBE-family command, waits
// for every name's ack, and only then binds the new Stream into the
// Registry — spec §4.5's registration protocol installs a binding only
// once the server has actually confirmed it, so a failed or timed-out
// wait leaves no trace a later reconnect replay could pick up.
func (m *Manager) Subscribe(ctx context.Context, k Kind, names ...string) (*Stream, error) {
	if err := m.sendAndAwait(ctx, k, subscribeCommandName(k), names); err != nil {
		return nil, err
	}
	stream := newStream(k, m.diag, defaultSinkBuffer, names...)
	for _, name := range names {
		m.registry.Bind(k, name, stream)
	}
	return stream, nil
}

// Grow adds more names to an already-open Stream, e.g. a running
// subscriber deciding to also watch another channel — a feature the
// original implementation supports that a one-shot Subscribe call
// alone cannot express. As with Subscribe, the Registry binding and the
// Stream's own name set are only updated once the server has
// acknowledged every new name.
func (m *Manager) Grow(ctx context.Context, stream *Stream, names ...string) error {
	if err := m.sendAndAwait(ctx, stream.kind, subscribeCommandName(stream.kind), names); err != nil {
		return err
	}
	for _, name := range names {
		m.registry.Bind(stream.kind, name, stream)
		stream.addName(name)
	}
	return nil
}

// Unsubscribe removes names from stream, issuing the matching
// UNSUBSCRIBE-family command and waiting for its acks. If stream has no
// names left afterward, it is closed.
func (m *Manager) Unsubscribe(ctx context.Context, stream *Stream, names ...string) error {
	if err := m.sendAndAwait(ctx, stream.kind, unsubscribeCommandName(stream.kind), names); err != nil {
		return err
	}
	remaining := 0
	for _, name := range names {
		m.registry.Unbind(stream.kind, name)
		remaining = stream.removeName(name)
	}
	if remaining == 0 {
		stream.markClosed()
	}
	return nil
}

// Close unsubscribes every name still bound to stream and marks it
// closed, awaiting acks. Use CloseNoWait to drop a stream without
// blocking on the round trip.
func (m *Manager) Close(ctx context.Context, stream *Stream) error {
	names := stream.Names()
	if len(names) == 0 {
		stream.markClosed()
		return nil
	}
	return m.Unsubscribe(ctx, stream, names...)
}

// CloseNoWait fires the unsubscribe command but does not wait for its
// acks, for callers tearing down a stream they are no longer watching
// (e.g. on client Close). The registry binding is removed immediately
// so no further messages route to it.
func (m *Manager) CloseNoWait(stream *Stream) {
	names := stream.Names()
	stream.markClosed()
	for _, name := range names {
		m.registry.Unbind(stream.kind, name)
	}
	if len(names) == 0 {
		return
	}
	cmd := resp.NewCommand(unsubscribeCommandName(stream.kind), names...)
	_ = m.writer.WriteBatch(context.Background(), resp.EncodeCommand(cmd))
}

func (m *Manager) sendAndAwait(ctx context.Context, k Kind, commandName string, names []string) error {
	cmd := resp.NewCommand(commandName, names...)
	var batch *AckBatch
	if err := m.writer.SubmitAndWrite(ctx, resp.EncodeCommand(cmd), func() { batch = m.router.ExpectAcks(k, names) }); err != nil {
		return err
	}
	return batch.Wait(ctx)
}
