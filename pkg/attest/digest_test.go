package attest

import "testing"

func TestStructuralHasherIsOrderAndEndiannessStable(t *testing.T) {
	build := func() []byte {
		h, err := NewStructuralHasher(SHA256)
		if err != nil {
			t.Fatalf("new hasher: %v", err)
		}
		h.WriteUint64(42)
		h.WriteUint32(7)
		h.WriteBytes([]byte("payload"))
		return h.Sum()
	}
	a, b := build(), build()
	if string(a) != string(b) {
		t.Fatal("identical field sequences must hash identically")
	}
}

func TestStructuralHasherDiffersOnFieldValue(t *testing.T) {
	h1, _ := NewStructuralHasher(SHA256)
	h1.WriteUint64(1)
	h2, _ := NewStructuralHasher(SHA256)
	h2.WriteUint64(2)
	if string(h1.Sum()) == string(h2.Sum()) {
		t.Fatal("different field values must not collide")
	}
}

func TestUnknownDigestAlgorithm(t *testing.T) {
	if _, err := NewStructuralHasher(DigestAlgorithm(99)); err != ErrUnknownDigestAlgorithm {
		t.Fatalf("expected ErrUnknownDigestAlgorithm, got %v", err)
	}
}

func TestDigestBytesIsSHA256(t *testing.T) {
	d := DigestBytes([]byte(""))
	// SHA-256 of the empty string, well-known constant.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	got := hexEncode(d[:])
	if got != want {
		t.Fatalf("digest of empty string mismatch: got %s want %s", got, want)
	}
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
