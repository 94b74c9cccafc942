package conn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nodis/respkit/resp"
)

// pipeDialer hands out one side of a net.Pipe, keeping the other side
// for the test to drive directly — the teacher's transport tests use
// the same "wire up both ends of an in-memory pipe" shape.
type pipeDialer struct {
	other net.Conn
}

func newPipeDialer() (*pipeDialer, net.Conn) {
	client, server := net.Pipe()
	return &pipeDialer{other: client}, server
}

func (d *pipeDialer) Dial(ctx context.Context) (net.Conn, error) {
	return d.other, nil
}

func TestConnectionDecodesFramesAcrossReads(t *testing.T) {
	dialer, server := newPipeDialer()
	c := New(dialer, nil, nil)

	frames := make(chan resp.Value, 4)
	closed := make(chan error, 1)

	if err := c.Open(context.Background(), func(v resp.Value) { frames <- v }, func(err error) { closed <- err }); err != nil {
		t.Fatalf("Open: %v", err)
	}

	go func() {
		server.Write([]byte("+OK\r\n"))
		server.Write([]byte(":1\r\n$5\r\nhello\r\n"))
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-frames:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}

	server.Close()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close callback")
	}
}

func TestConnectionWriteBatchSendsOneWrite(t *testing.T) {
	dialer, server := newPipeDialer()
	c := New(dialer, nil, nil)

	if err := c.Open(context.Background(), func(resp.Value) {}, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}

	cmd := resp.EncodeCommand(resp.NewCommand("PING"))
	done := make(chan struct{})
	go func() {
		if err := c.WriteBatch(context.Background(), cmd); err != nil {
			t.Errorf("WriteBatch: %v", err)
		}
		close(done)
	}()

	buf := make([]byte, len(cmd))
	if _, err := server.Read(buf); err != nil {
		t.Fatalf("server Read: %v", err)
	}
	if string(buf) != string(cmd) {
		t.Fatalf("got %q, want %q", buf, cmd)
	}
	<-done
}

func TestConnectionWriteBatchAfterCloseFails(t *testing.T) {
	dialer, _ := newPipeDialer()
	c := New(dialer, nil, nil)

	if err := c.Open(context.Background(), func(resp.Value) {}, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.WriteBatch(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected write after close to fail")
	}
}
