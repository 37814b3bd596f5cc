// Package wire implements the fixed binary encoding shared by every
// attested request/reply schema in this system: little-endian fixed-width
// integers, length-prefixed byte strings, and field order in place of a
// self-describing map with type tags. It is deliberately the poorer,
// simpler cousin of the CBOR codec pkg/attest uses for the attestation
// document itself — that document's format is fixed by AWS Nitro, this
// one is fixed by nothing but the services that speak it.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/virtengine/tee-attest/pkg/clock"
)

// maxFieldLen bounds a single length-prefixed field so a malformed or
// hostile peer cannot force an unbounded allocation while decoding.
const maxFieldLen = 64 << 20

// Writer appends fields to a single fixed binary encoded message, in the
// order the schema declares them.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Raw appends b with no length prefix, for fields that are already self
// delimiting on their own terms (clock.Encode's count-prefixed pair
// sequence is the only caller of this today).
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Uint64 appends v little-endian.
func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Uint32 appends v little-endian.
func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Bool appends a single presence/flag byte.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// Float32 appends v as its IEEE-754 bit pattern, little-endian.
func (w *Writer) Float32(v float32) {
	w.Uint32(math.Float32bits(v))
}

// ByteString appends b as a u64 length prefix followed by its bytes.
func (w *Writer) ByteString(b []byte) {
	w.Uint64(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// String appends s as a length-prefixed byte string.
func (w *Writer) String(s string) {
	w.ByteString([]byte(s))
}

// ClockOrdinary appends o using clock.Encode's own canonical, already
// length-prefixed pair sequence.
func (w *Writer) ClockOrdinary(o clock.Ordinary) {
	w.Raw(clock.Encode(o))
}

// Reader consumes fields from a fixed binary encoded message in the order
// they were written.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Raw consumes and returns the next n bytes unparsed.
func (r *Reader) Raw(n int) ([]byte, error) {
	if n < 0 || len(r.buf)-r.off < n {
		return nil, io.ErrUnexpectedEOF
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

// Uint64 consumes a little-endian u64.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.Raw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Uint32 consumes a little-endian u32.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Raw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Bool consumes a single presence/flag byte.
func (r *Reader) Bool() (bool, error) {
	b, err := r.Raw(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// Float32 consumes a little-endian IEEE-754 f32.
func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ByteString consumes a u64 length prefixed byte string.
func (r *Reader) ByteString() ([]byte, error) {
	n, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	if n > maxFieldLen {
		return nil, fmt.Errorf("wire: field of %d bytes exceeds limit", n)
	}
	buf, err := r.Raw(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// String consumes a length-prefixed byte string as a string.
func (r *Reader) String() (string, error) {
	b, err := r.ByteString()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ClockOrdinary consumes a clock.Encode-convention pair sequence: a u64
// count followed by that many (u64, u32) pairs.
func (r *Reader) ClockOrdinary() (clock.Ordinary, error) {
	countBuf, err := r.Raw(8)
	if err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint64(countBuf)
	if count > maxFieldLen {
		return nil, fmt.Errorf("wire: clock pair count %d exceeds limit", count)
	}
	pairsBuf, err := r.Raw(int(count) * 12)
	if err != nil {
		return nil, err
	}
	full := make([]byte, 0, len(countBuf)+len(pairsBuf))
	full = append(full, countBuf...)
	full = append(full, pairsBuf...)
	return clock.Decode(full)
}

// Done reports an error if unconsumed bytes remain, catching truncated
// schemas or trailing garbage appended by a misbehaving peer.
func (r *Reader) Done() error {
	if r.off != len(r.buf) {
		return fmt.Errorf("wire: %d trailing bytes after decode", len(r.buf)-r.off)
	}
	return nil
}
