package resp

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// bulkCompressionMarker prefixes a bulk string payload that has been
// transparently gzip-compressed by CompressBulk. It is chosen from a
// byte range RESP bulk payloads may of course still contain verbatim —
// compression is opt-in per connection (client.Options.CompressionThreshold)
// and both ends of that connection have to agree out of band, which is
// why this lives above the wire grammar rather than as a new RESP
// frame type: §4.1's decoder never sees or interprets this byte, it
// only matters to the caller that enabled compression.
const bulkCompressionMarker = 0x01

// CompressBulk gzip-compresses payload and prefixes it with
// bulkCompressionMarker when doing so is shorter than the original
// and payload is at least threshold bytes; otherwise it returns
// payload unchanged.
func CompressBulk(payload []byte, threshold int) []byte {
	if threshold <= 0 || len(payload) < threshold {
		return payload
	}

	var buf bytes.Buffer
	buf.WriteByte(bulkCompressionMarker)
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return payload
	}
	if err := w.Close(); err != nil {
		return payload
	}

	if buf.Len() >= len(payload) {
		return payload
	}
	return buf.Bytes()
}

// DecompressBulk reverses CompressBulk. Payloads without the marker
// byte are returned unchanged.
func DecompressBulk(payload []byte) ([]byte, error) {
	if len(payload) == 0 || payload[0] != bulkCompressionMarker {
		return payload, nil
	}

	r, err := gzip.NewReader(bytes.NewReader(payload[1:]))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
