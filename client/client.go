package client

import (
	"context"
	"fmt"

	"github.com/nodis/respkit/internal/conn"
	"github.com/nodis/respkit/internal/diag"
	"github.com/nodis/respkit/internal/errs"
	"github.com/nodis/respkit/internal/log"
	"github.com/nodis/respkit/internal/mode"
	"github.com/nodis/respkit/internal/pipeline"
	"github.com/nodis/respkit/internal/reconnect"
	"github.com/nodis/respkit/internal/types"
	"github.com/nodis/respkit/pubsub"
	"github.com/nodis/respkit/resp"
	"github.com/nodis/respkit/txn"
)

var clientLog = log.New("resp:client")

// Client is respkit's public entry point: one multiplexed RESP
// connection plus the command pipeline, pub/sub manager, transaction
// coordinator, and reconnect supervisor layered over it.
type Client struct {
	types.EventEmitter

	opts       Options
	diag       *diag.Diagnostics
	connection *conn.Connection
	pipe       *pipeline.Pipeline
	pubsubMgr  *pubsub.Manager
	supervisor *reconnect.Supervisor
}

// New builds an unconnected Client from opts. Call Connect to dial.
func New(opts Options) *Client {
	return newWithDialer(opts, buildDialer(opts))
}

// newWithDialer is New with the Dialer supplied directly, so tests can
// wire a Client to an in-memory net.Conn fixture instead of a real
// socket — every other piece (pipeline, pub/sub manager, supervisor)
// is built exactly as New builds it.
func newWithDialer(opts Options, dialer conn.Dialer) *Client {
	d := diag.New(opts.Registerer)
	limiter := conn.NewRateLimiter(opts.CommandsPerSecond, opts.Burst)

	connection := conn.New(dialer, limiter, d)
	pipe := pipeline.New(d)
	pubsubMgr := pubsub.NewManager(connection, d)

	c := &Client{
		EventEmitter: types.NewEventEmitter(),
		opts:         opts,
		diag:         d,
		connection:   connection,
		pipe:         pipe,
		pubsubMgr:    pubsubMgr,
	}

	c.supervisor = reconnect.New(connection, pipe, d, reconnect.Options{
		MaxAttempts:         opts.ReconnectionAttempts,
		MinDelayMillis:      opts.reconnectionDelayMillis(),
		MaxDelayMillis:      opts.reconnectionDelayMaxMillis(),
		RandomizationFactor: opts.RandomizationFactor,
		Replay:              c.replay,
	})
	c.supervisor.On("reconnect", func(...any) { c.EventEmitter.Emit("reconnect") })
	c.supervisor.On("reconnect_attempt", func(args ...any) { c.EventEmitter.Emit("reconnect_attempt", args...) })
	c.supervisor.On("reconnect_failed", func(...any) { c.EventEmitter.Emit("reconnect_failed") })
	c.supervisor.On("reconnect_error", func(args ...any) { c.EventEmitter.Emit("reconnect_error", args...) })

	return c
}

func buildDialer(opts Options) conn.Dialer {
	if opts.WebSocketURL != "" {
		return &conn.WSDialer{URL: opts.WebSocketURL, Dialer: opts.WebSocketDialer}
	}
	if opts.TLSConfig != nil {
		return &conn.TLSDialer{Addr: opts.Addr, Config: opts.TLSConfig, DialTimeout: opts.DialTimeout}
	}
	return &conn.TCPDialer{Addr: opts.Addr, DialTimeout: opts.DialTimeout}
}

// Connect dials the server and performs the initial AUTH/SELECT/
// CLIENT SETNAME handshake (spec §4.6's "replay" steps apply on every
// (re)connect, not just the first one).
func (c *Client) Connect(ctx context.Context) error {
	if err := c.supervisor.Start(ctx, c.onFrame); err != nil {
		return err
	}
	return c.handshake(ctx)
}

// Close stops the reconnect supervisor and closes the connection.
func (c *Client) Close() error {
	return c.supervisor.Stop()
}

// OnReconnect registers fn to run whenever a connection loss is
// followed by a successful reconnect and replay.
func (c *Client) OnReconnect(fn func()) {
	c.On("reconnect", func(...any) { fn() })
}

func (c *Client) currentMode() mode.Mode {
	if c.pubsubMgr.Registry().Active() {
		return mode.Subscribed
	}
	return mode.Regular
}

// onFrame is the Connection's FrameHandler: every decoded frame passes
// through the Mode Manager's pure classifier and is routed to either
// the command pipeline or the pub/sub router, never both.
func (c *Client) onFrame(v resp.Value) {
	switch mode.Classify(c.currentMode(), v) {
	case mode.ClassResponse:
		c.pipe.Dispatch(v)
	default:
		c.pubsubMgr.Router().Route(v)
	}
}

// Send submits one command and waits for its reply. It is illegal to
// call Send for a non-subscribe-family command while any channel,
// pattern, or shard channel subscription is active. A RESP error reply
// surfaces as an *errs.ServerError rather than a (Value, nil) pair the
// caller has to inspect itself.
func (c *Client) Send(ctx context.Context, cmd resp.Command) (resp.Value, error) {
	if err := mode.CheckLegal(c.currentMode(), cmd.Name()); err != nil {
		return resp.Value{}, err
	}
	ctx, cancel := c.withCommandTimeout(ctx)
	defer cancel()

	cmd = c.compressArgs(cmd)
	var entry *pipeline.Entry
	encoded := resp.EncodeCommand(cmd)
	if err := c.connection.SubmitAndWrite(ctx, encoded, func() { entry = c.pipe.Submit(cmd) }); err != nil {
		if entry != nil {
			entry.Discard()
		}
		return resp.Value{}, err
	}
	v, err := entry.Wait(ctx)
	if err != nil {
		return resp.Value{}, err
	}
	return valueOrServerError(c.diag, c.decompressValue(v))
}

// SendBatch submits cmds as a single concatenated write (spec §4.3)
// and waits for every reply, returned in the same order.
func (c *Client) SendBatch(ctx context.Context, cmds []resp.Command) ([]resp.Value, error) {
	for _, cmd := range cmds {
		if err := mode.CheckLegal(c.currentMode(), cmd.Name()); err != nil {
			return nil, err
		}
	}
	ctx, cancel := c.withCommandTimeout(ctx)
	defer cancel()

	for i, cmd := range cmds {
		cmds[i] = c.compressArgs(cmd)
	}
	var entries []*pipeline.Entry
	encoded := resp.EncodeBatch(cmds)
	if err := c.connection.SubmitAndWrite(ctx, encoded, func() { entries = c.pipe.SubmitBatch(cmds) }); err != nil {
		for _, e := range entries {
			e.Discard()
		}
		return nil, err
	}

	results := make([]resp.Value, len(entries))
	for i, e := range entries {
		v, err := e.Wait(ctx)
		if err != nil {
			return nil, err
		}
		result, err := valueOrServerError(c.diag, c.decompressValue(v))
		if err != nil {
			return nil, err
		}
		results[i] = result
	}
	return results, nil
}

// withCommandTimeout derives a child context bounded by
// Options.CommandTimeout, falling back to ctx unchanged when the
// option is unset — whichever deadline (the caller's or this one's)
// elapses first wins, exactly like context.WithTimeout layered over an
// already-deadlined parent.
func (c *Client) withCommandTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CommandTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opts.CommandTimeout)
}

// valueOrServerError turns a RESP error reply into a Go error
// (*errs.ServerError), per spec §7: RedisServer errors propagate to
// the originating request without being fatal to the connection. d may
// be nil; every reply passes through here so respkit's server_errors_total
// metric reflects every kind of error a server sends back, not just the
// ones a caller happens to inspect.
func valueOrServerError(d *diag.Diagnostics, v resp.Value) (resp.Value, error) {
	if v.Type == resp.TypeError {
		d.ServerError(v.Err.Kind)
		return resp.Value{}, &errs.ServerError{Kind: v.Err.Kind, Description: v.Err.Description}
	}
	return v, nil
}

// compressArgs gzips cmd's argument bytes (everything but the command
// name itself) above Options.CompressionThreshold, transparent to the
// caller building the Command. A no-op when compression is disabled.
func (c *Client) compressArgs(cmd resp.Command) resp.Command {
	if c.opts.CompressionThreshold <= 0 || len(cmd.Args) < 2 {
		return cmd
	}
	out := resp.Command{Args: make([][]byte, len(cmd.Args))}
	out.Args[0] = cmd.Args[0]
	for i := 1; i < len(cmd.Args); i++ {
		out.Args[i] = resp.CompressBulk(cmd.Args[i], c.opts.CompressionThreshold)
	}
	return out
}

// decompressValue walks v, transparently gunzipping any bulk string
// payload that carries CompressBulk's marker byte. Payloads the caller
// never compressed pass through unchanged, so this is safe to run
// unconditionally on every reply regardless of whether compression is
// enabled locally — the marker, not the option, decides.
func (c *Client) decompressValue(v resp.Value) resp.Value {
	switch v.Type {
	case resp.TypeBulkString:
		if v.Null {
			return v
		}
		if out, err := resp.DecompressBulk(v.Bulk); err == nil {
			v.Bulk = out
		}
		return v
	case resp.TypeArray, resp.TypeMap, resp.TypeSet, resp.TypePush:
		if v.Null || len(v.Array) == 0 {
			return v
		}
		members := make([]resp.Value, len(v.Array))
		for i, m := range v.Array {
			members[i] = c.decompressValue(m)
		}
		v.Array = members
		return v
	default:
		return v
	}
}

// Subscribe opens a Stream over one or more plain channels.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (*pubsub.Stream, error) {
	return c.pubsubMgr.Subscribe(ctx, pubsub.KindChannel, channels...)
}

// PSubscribe opens a Stream over one or more glob patterns.
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) (*pubsub.Stream, error) {
	return c.pubsubMgr.Subscribe(ctx, pubsub.KindPattern, patterns...)
}

// SSubscribe opens a Stream over one or more cluster shard channels.
func (c *Client) SSubscribe(ctx context.Context, shardChannels ...string) (*pubsub.Stream, error) {
	return c.pubsubMgr.Subscribe(ctx, pubsub.KindShardChannel, shardChannels...)
}

// Unsubscribe removes names from stream, closing it if none remain.
func (c *Client) Unsubscribe(ctx context.Context, stream *pubsub.Stream, names ...string) error {
	return c.pubsubMgr.Unsubscribe(ctx, stream, names...)
}

// Grow adds more names to an already-open stream.
func (c *Client) Grow(ctx context.Context, stream *pubsub.Stream, names ...string) error {
	return c.pubsubMgr.Grow(ctx, stream, names...)
}

// Multi begins a new transaction. Nothing is sent until Execute, which
// writes MULTI, every queued command, and EXEC as one batch.
func (c *Client) Multi() *txn.Transaction {
	return txn.New(c.pipe, c.connection)
}

// handshake runs AUTH/SELECT/CLIENT SETNAME once, immediately after
// Connect. replay reruns the same steps (plus resubscription) after
// every later reconnect.
func (c *Client) handshake(ctx context.Context) error {
	return c.authAndSelect(ctx)
}

// authAndSelect runs AUTH/SELECT/CLIENT SETNAME straight through the
// pipeline, bypassing the Mode Manager's legality check: immediately
// after a fresh dial (including a reconnect dial) the wire is always in
// Regular mode — any subscriptions the registry still remembers for
// replay purposes haven't been reissued on this connection yet — so
// Send's usual CheckLegal gate would misfire here even though the
// handshake is genuinely legal.
func (c *Client) authAndSelect(ctx context.Context) error {
	if c.opts.Password != "" {
		var cmd resp.Command
		if c.opts.Username != "" {
			cmd = resp.NewCommand("AUTH", c.opts.Username, c.opts.Password)
		} else {
			cmd = resp.NewCommand("AUTH", c.opts.Password)
		}
		if _, err := c.sendUnchecked(ctx, cmd); err != nil {
			return fmt.Errorf("respkit: AUTH failed: %w", err)
		}
	}
	if c.opts.DB != 0 {
		if _, err := c.sendUnchecked(ctx, resp.NewCommand("SELECT", fmt.Sprintf("%d", c.opts.DB))); err != nil {
			return fmt.Errorf("respkit: SELECT failed: %w", err)
		}
	}
	if c.opts.ClientName != "" {
		if _, err := c.sendUnchecked(ctx, resp.NewCommand("CLIENT", "SETNAME", c.opts.ClientName)); err != nil {
			return fmt.Errorf("respkit: CLIENT SETNAME failed: %w", err)
		}
	}
	return nil
}

// sendUnchecked is Send without the Mode Manager's legality gate, for
// handshake traffic issued at a point where the pipeline's view of mode
// would otherwise be stale.
func (c *Client) sendUnchecked(ctx context.Context, cmd resp.Command) (resp.Value, error) {
	var entry *pipeline.Entry
	encoded := resp.EncodeCommand(cmd)
	if err := c.connection.SubmitAndWrite(ctx, encoded, func() { entry = c.pipe.Submit(cmd) }); err != nil {
		if entry != nil {
			entry.Discard()
		}
		return resp.Value{}, err
	}
	v, err := entry.Wait(ctx)
	if err != nil {
		return resp.Value{}, err
	}
	return valueOrServerError(c.diag, v)
}

// replay is the reconnect supervisor's Replay callback: reauthenticate,
// reselect the database, and — unless disabled — resubscribe every
// channel, pattern, and shard channel that was active before the loss.
func (c *Client) replay(ctx context.Context) error {
	if err := c.authAndSelect(ctx); err != nil {
		return err
	}
	if !c.opts.autoResubscribe() {
		clientLog.Debug("auto-resubscribe disabled, not replaying prior subscriptions")
		return nil
	}
	return c.resubscribeAll(ctx)
}

// resubscribeAll re-issues SUBSCRIBE/PSUBSCRIBE/SSUBSCRIBE for every
// name the registry still holds after a reconnect. This writes
// straight to the connection and waits on the pub/sub router's ack
// queue rather than going through Send/the command pipeline — a
// subscribe-family ack is never a pipeline response (spec §4.4), and
// since these names are already bound in the registry from before the
// loss, the connection is already considered Subscribed by the time
// these acks arrive.
func (c *Client) resubscribeAll(ctx context.Context) error {
	registry := c.pubsubMgr.Registry()
	for _, k := range []pubsub.Kind{pubsub.KindChannel, pubsub.KindPattern, pubsub.KindShardChannel} {
		names := registry.Names(k)
		if len(names) == 0 {
			continue
		}
		cmd := resp.NewCommand(subscribeCommandFor(k), names...)
		encoded := resp.EncodeCommand(cmd)
		var batch *pubsub.AckBatch
		if err := c.connection.SubmitAndWrite(ctx, encoded, func() { batch = c.pubsubMgr.Router().ExpectAcks(k, names) }); err != nil {
			return err
		}
		if err := batch.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func subscribeCommandFor(k pubsub.Kind) string {
	switch k {
	case pubsub.KindPattern:
		return "PSUBSCRIBE"
	case pubsub.KindShardChannel:
		return "SSUBSCRIBE"
	default:
		return "SUBSCRIBE"
	}
}
