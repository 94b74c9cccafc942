package conn

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"time"

	ws "github.com/gorilla/websocket"
)

// Dialer establishes the single duplex byte stream a Connection owns.
// Exactly one Dialer backs a given Connection at a time; the Reconnect
// Supervisor calls Dial again on loss, reusing the same Dialer.
//
// Modeled on the teacher's per-transport dialer fields (clients/engine's
// websocket.go keeps a *ws.Dialer per transport) generalized into an
// interface so TCP, TLS, and WebSocket-tunneled stream establishment
// share one call site in Connection.Open.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// TCPDialer dials a plain TCP connection.
type TCPDialer struct {
	Addr        string
	DialTimeout time.Duration
}

func (d *TCPDialer) Dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.DialTimeout}
	return dialer.DialContext(ctx, "tcp", d.Addr)
}

// TLSDialer dials a TLS-wrapped TCP connection.
type TLSDialer struct {
	Addr        string
	Config      *tls.Config
	DialTimeout time.Duration
}

func (d *TLSDialer) Dial(ctx context.Context) (net.Conn, error) {
	dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: d.DialTimeout}, Config: d.Config}
	return dialer.DialContext(ctx, "tcp", d.Addr)
}

// WSDialer tunnels the RESP byte stream over a WebSocket connection,
// for hosted RESP-protocol endpoints that only expose a WebSocket
// front door (e.g. browser-facing proxies). The returned net.Conn wraps
// the *ws.Conn's message stream as a byte stream via wsConn below, so
// everything above Dialer — the codec, the pipeline, the mode manager —
// stays transport-agnostic.
type WSDialer struct {
	URL    string
	Dialer *ws.Dialer
}

func (d *WSDialer) Dial(ctx context.Context) (net.Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = ws.DefaultDialer
	}
	if _, err := url.Parse(d.URL); err != nil {
		return nil, err
	}
	c, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{Conn: c}, nil
}
