// Package mode implements the Mode Manager: a pure classifier of
// (mode, frame) pairs into response vs. push, plus the legality check
// for commands while subscribed. The design notes are explicit that
// mode must not be a boolean mixed into the connection struct — it
// must be its own sum type with a pure classification function, which
// is why this whole concern lives in its own package the client calls
// into, rather than as connection methods.
package mode

import (
	"strings"

	"github.com/nodis/respkit/internal/errs"
	"github.com/nodis/respkit/resp"
)

// Mode is the connection's protocol mode.
type Mode int

const (
	Regular Mode = iota
	Subscribed
)

func (m Mode) String() string {
	if m == Subscribed {
		return "Subscribed"
	}
	return "Regular"
}

// Classification is the result of classifying one inbound frame.
type Classification int

const (
	// ClassResponse pairs with the head of the Pipeline's FIFO.
	ClassResponse Classification = iota
	// ClassSubscribeAck is a subscribe/psubscribe/ssubscribe/unsubscribe/
	// punsubscribe/sunsubscribe acknowledgement consumed by the Mode
	// Manager itself to confirm registry updates.
	ClassSubscribeAck
	// ClassMessage is a message/pmessage/smessage push forwarded to the
	// Pub/Sub Router.
	ClassMessage
)

var subscribeAckNames = map[string]bool{
	"subscribe": true, "psubscribe": true, "ssubscribe": true,
	"unsubscribe": true, "punsubscribe": true, "sunsubscribe": true,
}

var messageNames = map[string]bool{
	"message": true, "pmessage": true, "smessage": true,
}

// subscribeFamily is the set of commands legal to send while
// Subscribed, per spec §4.4.
var subscribeFamily = map[string]bool{
	"SUBSCRIBE": true, "PSUBSCRIBE": true, "SSUBSCRIBE": true,
	"UNSUBSCRIBE": true, "PUNSUBSCRIBE": true, "SUNSUBSCRIBE": true,
	"PING": true, "QUIT": true, "RESET": true,
}

// Classify is the pure function of (mode, frame) the design notes
// require. It never mutates anything; callers apply its result.
func Classify(m Mode, v resp.Value) Classification {
	if v.Type == resp.TypePush {
		return classifyPush(v)
	}
	if m == Regular {
		return ClassResponse
	}

	// Subscribed mode, RESP2-shaped frame: classify by first array element.
	if v.Type != resp.TypeArray || v.Null || len(v.Array) == 0 {
		return ClassResponse
	}
	first, err := v.Array[0].AsString()
	if err != nil {
		return ClassResponse
	}
	first = strings.ToLower(first)
	switch {
	case subscribeAckNames[first]:
		return ClassSubscribeAck
	case messageNames[first]:
		return ClassMessage
	default:
		return ClassResponse
	}
}

// classifyPush classifies a RESP3 Push frame: the subscribe-family
// acknowledgements never arrive as Push frames server-side in
// practice, but if a server tags them as such anyway we still route by
// name rather than assuming every Push is a message.
func classifyPush(v resp.Value) Classification {
	if len(v.Array) == 0 {
		return ClassMessage
	}
	first, err := v.Array[0].AsString()
	if err != nil {
		return ClassMessage
	}
	if subscribeAckNames[strings.ToLower(first)] {
		return ClassSubscribeAck
	}
	return ClassMessage
}

// CheckLegal enforces spec §4.4's outbound command legality rule: in
// Subscribed mode, only the subscribe-family commands (plus PING,
// QUIT, RESET) may be sent.
func CheckLegal(m Mode, commandName string) error {
	if m == Regular {
		return nil
	}
	if subscribeFamily[strings.ToUpper(commandName)] {
		return nil
	}
	return &errs.ForbiddenInSubscribedModeError{Command: commandName}
}
