package mode

import (
	"testing"

	"github.com/nodis/respkit/resp"
)

func TestClassifyRegularModeAlwaysResponse(t *testing.T) {
	v := resp.NewArray(resp.NewBulkString([]byte("message")), resp.NewBulkString([]byte("ch")), resp.NewBulkString([]byte("hi")))
	if got := Classify(Regular, v); got != ClassResponse {
		t.Fatalf("got %v, want ClassResponse", got)
	}
}

func TestClassifySubscribedModeMessage(t *testing.T) {
	v := resp.NewArray(resp.NewBulkString([]byte("message")), resp.NewBulkString([]byte("ch")), resp.NewBulkString([]byte("hi")))
	if got := Classify(Subscribed, v); got != ClassMessage {
		t.Fatalf("got %v, want ClassMessage", got)
	}
}

func TestClassifySubscribedModeAck(t *testing.T) {
	v := resp.NewArray(resp.NewBulkString([]byte("subscribe")), resp.NewBulkString([]byte("ch")), resp.NewInteger(1))
	if got := Classify(Subscribed, v); got != ClassSubscribeAck {
		t.Fatalf("got %v, want ClassSubscribeAck", got)
	}
}

func TestClassifyRESP3Push(t *testing.T) {
	v := resp.Value{Type: resp.TypePush, Array: []resp.Value{
		resp.NewBulkString([]byte("message")),
		resp.NewBulkString([]byte("ch")),
		resp.NewBulkString([]byte("hi")),
	}}
	if got := Classify(Regular, v); got != ClassMessage {
		t.Fatalf("got %v, want ClassMessage even in Regular mode since RESP3 Push is always a push", got)
	}
}

func TestCheckLegalInSubscribedMode(t *testing.T) {
	if err := CheckLegal(Subscribed, "GET"); err == nil {
		t.Fatalf("expected GET to be forbidden while subscribed")
	}
	if err := CheckLegal(Subscribed, "PING"); err != nil {
		t.Fatalf("PING should be legal while subscribed: %v", err)
	}
	if err := CheckLegal(Regular, "GET"); err != nil {
		t.Fatalf("GET should be legal in Regular mode: %v", err)
	}
}
