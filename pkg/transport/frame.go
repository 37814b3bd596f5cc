// Package transport implements the vsock wire framing and connection
// lifecycle shared by the enclave listener and the host-side portal client:
// a u64-little-endian length prefix, one writer goroutine per connection
// serializing replies, and one handler invocation per inbound frame.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame so a corrupt or hostile peer cannot
// force an unbounded allocation.
const maxFrameSize = 64 << 20

// ReadFrame reads one u64-little-endian length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes buf to w prefixed by its u64-little-endian length.
func WriteFrame(w io.Writer, buf []byte) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(buf)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}
