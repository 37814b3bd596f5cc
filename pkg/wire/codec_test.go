package wire

import (
	"testing"

	"github.com/virtengine/tee-attest/pkg/clock"
)

func TestWriterReaderRoundTripsScalars(t *testing.T) {
	w := NewWriter()
	w.Uint64(1<<63 + 7)
	w.Uint32(42)
	w.Bool(true)
	w.Bool(false)
	w.Float32(3.5)
	w.String("hello")
	w.ByteString([]byte{0xde, 0xad, 0xbe, 0xef})

	r := NewReader(w.Bytes())
	if v, err := r.Uint64(); err != nil || v != 1<<63+7 {
		t.Fatalf("uint64: %v, %v", v, err)
	}
	if v, err := r.Uint32(); err != nil || v != 42 {
		t.Fatalf("uint32: %v, %v", v, err)
	}
	if v, err := r.Bool(); err != nil || v != true {
		t.Fatalf("bool true: %v, %v", v, err)
	}
	if v, err := r.Bool(); err != nil || v != false {
		t.Fatalf("bool false: %v, %v", v, err)
	}
	if v, err := r.Float32(); err != nil || v != 3.5 {
		t.Fatalf("float32: %v, %v", v, err)
	}
	if v, err := r.String(); err != nil || v != "hello" {
		t.Fatalf("string: %v, %v", v, err)
	}
	if v, err := r.ByteString(); err != nil || string(v) != string([]byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("bytestring: %v, %v", v, err)
	}
	if err := r.Done(); err != nil {
		t.Fatalf("expected no trailing bytes: %v", err)
	}
}

func TestReaderRejectsTruncatedInput(t *testing.T) {
	w := NewWriter()
	w.Uint64(99)
	buf := w.Bytes()[:4]
	r := NewReader(buf)
	if _, err := r.Uint64(); err == nil {
		t.Fatal("expected truncated uint64 to fail")
	}
}

func TestReaderRejectsTrailingBytes(t *testing.T) {
	w := NewWriter()
	w.Uint32(1)
	buf := append(w.Bytes(), 0xff)
	r := NewReader(buf)
	if _, err := r.Uint32(); err != nil {
		t.Fatalf("uint32: %v", err)
	}
	if err := r.Done(); err == nil {
		t.Fatal("expected trailing byte to be rejected")
	}
}

func TestClockOrdinaryRoundTripsThroughWriter(t *testing.T) {
	o := clock.Ordinary{1: 3, 5: 9, 2: 1}
	w := NewWriter()
	w.ClockOrdinary(o)
	w.String("trailer")

	r := NewReader(w.Bytes())
	got, err := r.ClockOrdinary()
	if err != nil {
		t.Fatalf("clock ordinary: %v", err)
	}
	if !clock.SameValue(got, o) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, o)
	}
	trailer, err := r.String()
	if err != nil || trailer != "trailer" {
		t.Fatalf("trailer: %v, %v", trailer, err)
	}
}
