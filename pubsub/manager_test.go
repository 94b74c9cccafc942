package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nodis/respkit/resp"
)

// recordingWriter captures every batch written, so tests can assert on
// the commands Manager issued and simulate the server's ack frames.
type recordingWriter struct {
	mu   sync.Mutex
	sent [][]byte
}

func (w *recordingWriter) WriteBatch(ctx context.Context, data []byte) error {
	return w.SubmitAndWrite(ctx, data, func() {})
}

func (w *recordingWriter) SubmitAndWrite(ctx context.Context, data []byte, submit func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	submit()
	w.sent = append(w.sent, append([]byte(nil), data...))
	return nil
}

func TestManagerSubscribeRoundTrip(t *testing.T) {
	w := &recordingWriter{}
	m := NewManager(w, nil)

	done := make(chan struct{})
	var stream *Stream
	var subErr error
	go func() {
		stream, subErr = m.Subscribe(context.Background(), KindChannel, "news", "sports")
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	m.Router().Route(resp.NewArray(resp.NewBulkString([]byte("subscribe")), resp.NewBulkString([]byte("news")), resp.NewInteger(1)))
	m.Router().Route(resp.NewArray(resp.NewBulkString([]byte("subscribe")), resp.NewBulkString([]byte("sports")), resp.NewInteger(2)))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscribe did not return after acks")
	}
	if subErr != nil {
		t.Fatalf("Subscribe: %v", subErr)
	}

	m.Router().Route(resp.NewArray(resp.NewBulkString([]byte("message")), resp.NewBulkString([]byte("news")), resp.NewBulkString([]byte("hello"))))

	select {
	case msg := <-stream.Messages():
		if msg.Channel != "news" || string(msg.Payload) != "hello" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestManagerPatternMessageTagging(t *testing.T) {
	w := &recordingWriter{}
	m := NewManager(w, nil)

	done := make(chan struct{})
	var stream *Stream
	go func() {
		stream, _ = m.Subscribe(context.Background(), KindPattern, "news.*")
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	m.Router().Route(resp.NewArray(resp.NewBulkString([]byte("psubscribe")), resp.NewBulkString([]byte("news.*")), resp.NewInteger(1)))
	<-done

	m.Router().Route(resp.NewArray(
		resp.NewBulkString([]byte("pmessage")),
		resp.NewBulkString([]byte("news.*")),
		resp.NewBulkString([]byte("news.sports")),
		resp.NewBulkString([]byte("goal")),
	))

	select {
	case msg := <-stream.Messages():
		if msg.Pattern != "news.*" || msg.Channel != "news.sports" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("pattern message was not delivered")
	}
}

func TestManagerUnsubscribeClosesStreamWhenEmpty(t *testing.T) {
	w := &recordingWriter{}
	m := NewManager(w, nil)

	var stream *Stream
	done := make(chan struct{})
	go func() {
		stream, _ = m.Subscribe(context.Background(), KindChannel, "a")
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	m.Router().Route(resp.NewArray(resp.NewBulkString([]byte("subscribe")), resp.NewBulkString([]byte("a")), resp.NewInteger(1)))
	<-done

	done2 := make(chan error, 1)
	go func() { done2 <- m.Unsubscribe(context.Background(), stream, "a") }()
	time.Sleep(10 * time.Millisecond)
	m.Router().Route(resp.NewArray(resp.NewBulkString([]byte("unsubscribe")), resp.NewBulkString([]byte("a")), resp.NewInteger(0)))

	if err := <-done2; err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if !stream.Closed() {
		t.Fatal("stream should be closed once its last name is unsubscribed")
	}
	if _, ok := m.Registry().Lookup(KindChannel, "a"); ok {
		t.Fatal("registry should no longer have a binding for \"a\"")
	}
}
