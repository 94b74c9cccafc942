package client

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/nodis/respkit/internal/errs"
	"github.com/nodis/respkit/pubsub"
	"github.com/nodis/respkit/resp"
)

// pipeDialer hands back one pre-built net.Conn, the client-facing half
// of an in-memory pipe whose server half the test drives directly —
// the same fixture shape used in internal/conn's own tests.
type pipeDialer struct{ side net.Conn }

func (d *pipeDialer) Dial(ctx context.Context) (net.Conn, error) { return d.side, nil }

// fakeServer reads RESP commands off one side of a pipe and replies
// under the test's control, simulating just enough of a real server to
// exercise the Client's request/response and pub/sub plumbing.
type fakeServer struct {
	conn net.Conn
	buf  []byte
}

func (s *fakeServer) nextCommand(t *testing.T) resp.Command {
	t.Helper()
	chunk := make([]byte, 4096)
	for {
		v, n, err := resp.Decode(s.buf)
		if err == nil {
			s.buf = s.buf[n:]
			arr, _ := v.AsArray()
			args := make([][]byte, len(arr))
			for i, e := range arr {
				b, _ := e.AsBulkString()
				args[i] = b
			}
			return resp.NewCommandBytes(args...)
		}
		n, err2 := s.conn.Read(chunk)
		if err2 != nil {
			t.Fatalf("server read: %v", err2)
		}
		s.buf = append(s.buf, chunk[:n]...)
	}
}

func (s *fakeServer) reply(v resp.Value) {
	s.conn.Write(encodeValue(v))
}

// encodeValue is a minimal test-only RESP2 encoder for server replies;
// the client only ever needs to decode these, not produce them.
func encodeValue(v resp.Value) []byte {
	switch v.Type {
	case resp.TypeSimpleString:
		return []byte("+" + v.Str + "\r\n")
	case resp.TypeError:
		return []byte("-" + v.Err.Kind + " " + v.Err.Description + "\r\n")
	case resp.TypeInteger:
		return []byte(":" + itoa(int(v.Int)) + "\r\n")
	case resp.TypeBulkString:
		if v.Null {
			return []byte("$-1\r\n")
		}
		out := []byte("$")
		out = append(out, []byte(itoa(len(v.Bulk)))...)
		out = append(out, '\r', '\n')
		out = append(out, v.Bulk...)
		out = append(out, '\r', '\n')
		return out
	case resp.TypeArray:
		if v.Null {
			return []byte("*-1\r\n")
		}
		out := []byte("*")
		out = append(out, []byte(itoa(len(v.Array)))...)
		out = append(out, '\r', '\n')
		for _, e := range v.Array {
			out = append(out, encodeValue(e)...)
		}
		return out
	}
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestClientSendReceivesReply(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	c := newWithDialer(Options{}, &pipeDialer{side: clientSide})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := &fakeServer{conn: serverSide}

	resultCh := make(chan resp.Value, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := c.Send(context.Background(), resp.NewCommand("PING"))
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- v
	}()

	cmd := server.nextCommand(t)
	if cmd.Name() != "PING" {
		t.Fatalf("server saw %q, want PING", cmd.Name())
	}
	server.reply(resp.NewSimpleString("PONG"))

	select {
	case v := <-resultCh:
		if v.Str != "PONG" {
			t.Fatalf("got %+v, want PONG", v)
		}
	case err := <-errCh:
		t.Fatalf("Send: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for PING reply")
	}
}

func TestClientSubscribeAndReceiveMessage(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	c := newWithDialer(Options{}, &pipeDialer{side: clientSide})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := &fakeServer{conn: serverSide}

	streamCh := make(chan *pubsub.Stream)
	go func() {
		s, err := c.Subscribe(context.Background(), "news")
		if err != nil {
			t.Errorf("Subscribe: %v", err)
			return
		}
		streamCh <- s
	}()

	cmd := server.nextCommand(t)
	if cmd.Name() != "SUBSCRIBE" {
		t.Fatalf("server saw %q, want SUBSCRIBE", cmd.Name())
	}
	server.reply(resp.NewArray(resp.NewBulkString([]byte("subscribe")), resp.NewBulkString([]byte("news")), resp.NewInteger(1)))

	var stream *pubsub.Stream
	select {
	case stream = <-streamCh:
	case <-time.After(time.Second):
		t.Fatal("Subscribe did not return")
	}

	server.reply(resp.NewArray(resp.NewBulkString([]byte("message")), resp.NewBulkString([]byte("news")), resp.NewBulkString([]byte("hello"))))

	select {
	case msg := <-stream.Messages():
		if msg.Channel != "news" || string(msg.Payload) != "hello" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}

	if _, err := c.Send(context.Background(), resp.NewCommand("GET", "k")); err == nil {
		t.Fatal("expected GET to be forbidden while subscribed")
	}
}

func TestClientSendSurfacesServerError(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	c := newWithDialer(Options{}, &pipeDialer{side: clientSide})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := &fakeServer{conn: serverSide}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), resp.NewCommand("GET", "k"))
		errCh <- err
	}()

	cmd := server.nextCommand(t)
	if cmd.Name() != "GET" {
		t.Fatalf("server saw %q, want GET", cmd.Name())
	}
	server.reply(resp.NewError("WRONGTYPE", "Operation against a key holding the wrong kind of value"))

	select {
	case err := <-errCh:
		var serverErr *errs.ServerError
		if !errors.As(err, &serverErr) {
			t.Fatalf("Send error = %v, want *errs.ServerError", err)
		}
		if serverErr.Kind != "WRONGTYPE" {
			t.Fatalf("Kind = %q, want WRONGTYPE", serverErr.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Send to return")
	}
}

func TestClientSendHonorsCommandTimeout(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	c := newWithDialer(Options{CommandTimeout: 20 * time.Millisecond}, &pipeDialer{side: clientSide})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// The server drains the write so it completes, but never replies,
	// so the command never gets a response; Options.CommandTimeout must
	// still bound the wait even though the caller's own context has no
	// deadline of its own.
	go io.Copy(io.Discard, serverSide)

	_, err := c.Send(context.Background(), resp.NewCommand("PING"))
	var timeoutErr *errs.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Send error = %v, want *errs.TimeoutError", err)
	}
}
