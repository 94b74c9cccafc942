// Package errs declares the error taxonomy from the protocol's error
// handling design: typed errors implementing the standard error
// interface, following the teacher's Error-struct-with-Unwrap pattern
// (clients/engine/error.go, clients/socket/error.go) rather than plain
// sentinel values, so callers can errors.As into the kind they care
// about.
package errs

import "fmt"

// ParseError is fatal for the current connection: the decoder hit
// malformed RESP bytes it cannot resynchronize from.
type ParseError struct {
	Offset int
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("resp: parse error at offset %d: %s", e.Offset, e.Reason)
}
func (e *ParseError) Unwrap() error { return e.Cause }

// ServerError wraps a RESP `-ERR ...` style error frame.
type ServerError struct {
	Kind        string
	Description string
}

func (e *ServerError) Error() string { return e.Kind + " " + e.Description }

// KnownKinds enumerates the error-kind prefixes the protocol
// recognizes explicitly; anything else falls into the generic bucket
// but still preserves its literal prefix in Kind.
var KnownKinds = map[string]bool{
	"ERR": true, "WRONGTYPE": true, "MOVED": true, "ASK": true,
	"CLUSTERDOWN": true, "NOAUTH": true, "LOADING": true, "BUSY": true,
	"READONLY": true, "NOSCRIPT": true, "MASTERDOWN": true, "MISCONF": true,
	"TRYAGAIN": true, "EXECABORT": true, "UNKILLABLE": true, "NOPROTO": true,
	"NOPERM": true, "BUSYKEY": true, "XX": true, "OOM": true,
}

// ConnectionLostError signals an I/O failure or peer close; pending
// pipeline entries fail with this and the reconnect supervisor takes
// over.
type ConnectionLostError struct {
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause == nil {
		return "resp: connection lost"
	}
	return "resp: connection lost: " + e.Cause.Error()
}
func (e *ConnectionLostError) Unwrap() error { return e.Cause }

// TimeoutError signals a per-request deadline was exceeded.
type TimeoutError struct{}

func (e *TimeoutError) Error() string { return "resp: command timed out" }

// AbortedError signals a transaction's EXEC returned the null array,
// generally due to a WATCH violation.
type AbortedError struct{}

func (e *AbortedError) Error() string { return "resp: transaction aborted" }

// ForbiddenInSubscribedModeError signals a non-pubsub command was
// rejected locally because the connection is in Subscribed mode.
type ForbiddenInSubscribedModeError struct {
	Command string
}

func (e *ForbiddenInSubscribedModeError) Error() string {
	return "resp: command " + e.Command + " is forbidden in subscribed mode"
}

// ClientError signals an internal invariant violation — a bug, not a
// server or network condition.
type ClientError struct {
	Reason string
}

func (e *ClientError) Error() string { return "resp: client error: " + e.Reason }

// UnexpectedTransactionReply signals that a MULTI/EXEC-queued command
// or EXEC itself replied with something the transaction protocol does
// not promise — anything but `+QUEUED`, an error, a null array, or an
// array sized to the number of queued commands.
type UnexpectedTransactionReply struct {
	Detail string
}

func (e *UnexpectedTransactionReply) Error() string {
	return "resp: unexpected transaction reply: " + e.Detail
}
