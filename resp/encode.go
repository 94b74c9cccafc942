package resp

import (
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// encodeBufferPool pools the scratch buffers EncodeCommand writes
// into, avoiding one allocation per pipelined command the way the pack's
// packet-processing pipeline (packetd) pools buffers for per-packet
// encoding instead of allocating fresh ones on every call.
var encodeBufferPool bytebufferpool.Pool

// EncodeCommand serializes cmd as a RESP2 array of bulk strings:
// "*n\r\n" followed by n "$len\r\n<bytes>\r\n" entries. The encoder
// never emits RESP3 aggregate types — outbound framing is always
// RESP2, matching spec §4.1's emitter contract.
func EncodeCommand(cmd Command) []byte {
	buf := encodeBufferPool.Get()
	defer encodeBufferPool.Put(buf)

	buf.WriteByte('*')
	buf.WriteString(strconv.Itoa(len(cmd.Args)))
	buf.WriteString("\r\n")
	for _, arg := range cmd.Args {
		buf.WriteByte('$')
		buf.WriteString(strconv.Itoa(len(arg)))
		buf.WriteString("\r\n")
		buf.Write(arg)
		buf.WriteString("\r\n")
	}

	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return out
}

// EncodeBatch concatenates the RESP2 encoding of each command in
// order into a single write, matching spec §4.3's "batch submit
// produces one concatenated write" rule.
func EncodeBatch(cmds []Command) []byte {
	buf := encodeBufferPool.Get()
	defer encodeBufferPool.Put(buf)

	for _, cmd := range cmds {
		buf.Write(EncodeCommand(cmd))
	}

	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return out
}
