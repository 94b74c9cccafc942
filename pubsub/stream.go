package pubsub

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nodis/respkit/internal/diag"
	"github.com/nodis/respkit/internal/types"
)

// sink is a bounded delivery channel. Messages is read-only to
// consumers; the Router writes to the unexported channel behind it.
type sink struct {
	ch chan Message
}

func newSink(buffer int) *sink {
	return &sink{ch: make(chan Message, buffer)}
}

// Stream is one application-level subscription handle, covering
// however many channels, patterns, or shard channels were subscribed
// together. It is the unit the public client hands back from
// Subscribe/PSubscribe/SSubscribe — callers read Messages() and,
// separately, call Close to unsubscribe and release it.
//
// A slow consumer only ever backs up its own Stream's buffered sink;
// per spec §4.4 it never blocks the reader loop or any other Stream,
// since the Router's send to a full sink is non-blocking and simply
// drops with a diagnostic (see Stream.deliver).
type Stream struct {
	// id uniquely identifies this subscriber, independent of which
	// names it's bound to, for diagnostics and log correlation across
	// Grow/Unsubscribe calls that change those names over time.
	id     string
	kind   Kind
	diag   *diag.Diagnostics
	sink   *sink
	names  *types.Set[string]
	closed atomic.Bool
}

func newStream(kind Kind, diagnostics *diag.Diagnostics, buffer int, names ...string) *Stream {
	return &Stream{id: uuid.NewString(), kind: kind, diag: diagnostics, sink: newSink(buffer), names: types.NewSet(names...)}
}

// ID returns this Stream's stable subscriber identifier.
func (s *Stream) ID() string { return s.id }

// Kind reports whether this stream carries channel, pattern, or shard
// channel messages.
func (s *Stream) Kind() Kind { return s.kind }

// Names returns the currently subscribed names on this stream.
func (s *Stream) Names() []string {
	return s.names.Keys()
}

// Snapshot serializes the stream's current subscribed names as
// msgpack, for a diagnostic dump of live subscription state (e.g. an
// admin endpoint or a crash report) without reaching into the
// Registry's internals.
func (s *Stream) Snapshot() ([]byte, error) {
	return s.names.MarshalMsgpack()
}

// Messages returns the channel Message deliveries arrive on. It is
// never closed while the Stream is open, so a range loop must be
// paired with watching a separate done signal (e.g. the client's
// context) rather than relying on channel closure.
func (s *Stream) Messages() <-chan Message {
	return s.sink.ch
}

// Closed reports whether this stream has been closed, by Manager.Close,
// Manager.CloseNoWait, or an Unsubscribe that removed its last name.
func (s *Stream) Closed() bool {
	return s.closed.Load()
}

func (s *Stream) addName(name string) {
	s.names.Add(name)
}

func (s *Stream) removeName(name string) int {
	s.names.Delete(name)
	return s.names.Len()
}

// deliver attempts a non-blocking send; a full or closed sink drops
// the message with a diagnostic rather than pressuring the reader.
func (s *Stream) deliver(m Message) {
	if s.closed.Load() {
		s.diag.PushDropped("stream_closed")
		return
	}
	select {
	case s.sink.ch <- m:
	default:
		s.diag.PushDropped("sink_full")
	}
}

// markClosed flips the closed flag; callers (Manager.Close,
// Manager.CloseNoWait, Manager.Unsubscribe) are responsible for sending
// the actual UNSUBSCRIBE-family commands
// and unbinding the registry before or after calling this.
func (s *Stream) markClosed() {
	s.closed.Store(true)
}
