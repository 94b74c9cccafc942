// Package client is respkit's public facade: it wires the codec, the
// connection, the command pipeline, the pub/sub manager, the
// transaction coordinator, and the reconnect supervisor into one
// Client, the way the teacher's clients/socket.Manager wires an
// Engine.IO socket, its parser, and its reconnection logic into one
// object applications construct and hold onto.
package client

import (
	"crypto/tls"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// Options configures a Client, mirroring the shape of the teacher's
// ManagerOptions/SocketOptions: connection parameters, reconnection
// tuning, and the optional ambient features (rate limiting, bulk
// compression, diagnostics) layered on top of the base protocol.
type Options struct {
	// Addr is the "host:port" to dial for TCPDialer/TLSDialer. Ignored
	// when WebSocketURL is set.
	Addr string
	// TLSConfig, if non-nil, dials over TLS instead of plain TCP.
	TLSConfig *tls.Config
	// WebSocketURL, if set, tunnels the RESP stream over a WebSocket
	// connection to this URL instead of a raw TCP/TLS dial.
	WebSocketURL string
	WebSocketDialer *ws.Dialer
	DialTimeout  time.Duration

	// Username/Password authenticate via AUTH after connecting (and
	// after every reconnect). Password alone uses legacy single-argument
	// AUTH; both set uses AUTH username password.
	Username string
	Password string
	// DB selects a logical database via SELECT after connecting.
	DB int
	// ClientName, if set, is applied via CLIENT SETNAME after connecting.
	ClientName string

	// AutoResubscribe replays every active channel/pattern/shard-channel
	// subscription after a successful reconnect. Defaults to true; set
	// explicitly false via AutoResubscribeSet to disable.
	AutoResubscribe    bool
	AutoResubscribeSet bool

	// ReconnectionAttempts bounds retries after a loss; non-positive
	// means unlimited.
	ReconnectionAttempts float64
	ReconnectionDelay     time.Duration
	ReconnectionDelayMax  time.Duration
	RandomizationFactor   float64

	// CommandsPerSecond and Burst configure an optional outbound rate
	// limiter; CommandsPerSecond <= 0 disables it.
	CommandsPerSecond float64
	Burst             int

	// CompressionThreshold, if > 0, transparently gzips outbound bulk
	// string payloads at or above this size (see resp.CompressBulk).
	// Inbound payloads are decompressed automatically regardless.
	CompressionThreshold int

	// CommandTimeout, if > 0, bounds how long Send/SendBatch wait for a
	// reply on top of whatever deadline the caller's context already
	// carries — whichever fires first wins. Zero means no additional
	// deadline is imposed beyond the caller's own context.
	CommandTimeout time.Duration

	// Registerer, if non-nil, registers respkit's Prometheus counters
	// against it. Leave nil to disable metrics entirely.
	Registerer prometheus.Registerer
}

func (o Options) autoResubscribe() bool {
	if !o.AutoResubscribeSet {
		return true
	}
	return o.AutoResubscribe
}

func (o Options) reconnectionDelayMillis() float64 {
	if o.ReconnectionDelay <= 0 {
		return 1_000
	}
	return float64(o.ReconnectionDelay / time.Millisecond)
}

func (o Options) reconnectionDelayMaxMillis() float64 {
	if o.ReconnectionDelayMax <= 0 {
		return 5_000
	}
	return float64(o.ReconnectionDelayMax / time.Millisecond)
}
