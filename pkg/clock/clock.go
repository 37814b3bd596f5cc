// Package clock implements the ordinary clock: a vector clock keyed by
// opaque node identifiers, with merge, update, and partial-order comparison.
package clock

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

// KeyId identifies a clock entry's owning node. The core never validates
// its format; that is an external-collaborator concern.
type KeyId = uint64

// Ordinary is a mapping from KeyId to a monotone counter. An absent key is
// equivalent to a counter of zero for every operation below.
type Ordinary map[KeyId]uint32

// New returns the genesis ordinary clock: no entries, all counters zero.
func New() Ordinary {
	return Ordinary{}
}

// Clone returns an independent copy.
func (o Ordinary) Clone() Ordinary {
	c := make(Ordinary, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// IsGenesis reports whether every entry (including absent ones) is zero.
func (o Ordinary) IsGenesis() bool {
	for _, v := range o {
		if v != 0 {
			return false
		}
	}
	return true
}

// Merge returns the pointwise maximum of o and other over the union of keys.
func (o Ordinary) Merge(other Ordinary) Ordinary {
	merged := make(Ordinary, len(o)+len(other))
	for k, v := range o {
		merged[k] = v
	}
	for k, v := range other {
		if cur, ok := merged[k]; !ok || v > cur {
			merged[k] = v
		}
	}
	return merged
}

// Update folds Merge over o and every clock in deps, then increments the
// entry for id by one. The result strictly dominates every input when
// restricted to id.
func Update(o Ordinary, deps []Ordinary, id KeyId) Ordinary {
	merged := o.Clone()
	for _, dep := range deps {
		merged = merged.Merge(dep)
	}
	merged[id] = merged[id] + 1
	return merged
}

// Compare is the result of comparing two ordinary clocks under their
// pointwise partial order.
type Compare int

const (
	// Incomparable means neither clock dominates the other.
	Incomparable Compare = iota
	Equal
	Less
	Greater
)

// PartialCompare implements a ≤ b ⇔ for every key with a nonzero value in a,
// b has an equal-or-greater value, returning Incomparable when neither
// direction holds.
func PartialCompare(a, b Ordinary) Compare {
	ge := func(x, y Ordinary) bool {
		for k, v := range y {
			if v == 0 {
				continue
			}
			if x[k] < v {
				return false
			}
		}
		return true
	}
	aGeB, bGeA := ge(a, b), ge(b, a)
	switch {
	case aGeB && bGeA:
		return Equal
	case aGeB:
		return Greater
	case bGeA:
		return Less
	default:
		return Incomparable
	}
}

// sortedPairs returns the non-zero entries of o sorted by key, the
// canonical order Encode and Digest rely on.
func sortedPairs(o Ordinary) []struct {
	Key KeyId
	Val uint32
} {
	pairs := make([]struct {
		Key KeyId
		Val uint32
	}, 0, len(o))
	for k, v := range o {
		if v == 0 {
			continue
		}
		pairs = append(pairs, struct {
			Key KeyId
			Val uint32
		}{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs
}

// Encode produces the canonical byte encoding: a little-endian u64 count,
// followed by sorted (u64 key, u32 value) pairs, little-endian. Two
// semantically equal clocks (same non-zero entries) always encode to
// identical bytes, independent of insertion order or zero-valued entries.
func Encode(o Ordinary) []byte {
	pairs := sortedPairs(o)
	buf := bytes.NewBuffer(make([]byte, 0, 8+12*len(pairs)))
	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], uint64(len(pairs)))
	buf.Write(countBuf[:])
	for _, p := range pairs {
		var kv [12]byte
		binary.LittleEndian.PutUint64(kv[0:8], p.Key)
		binary.LittleEndian.PutUint32(kv[8:12], p.Val)
		buf.Write(kv[:])
	}
	return buf.Bytes()
}

// Decode parses the encoding produced by Encode. It rejects trailing bytes
// so a caller that mismeasures a nested field's length fails loudly instead
// of silently dropping data.
func Decode(buf []byte) (Ordinary, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("clock: truncated count, have %d bytes", len(buf))
	}
	count := binary.LittleEndian.Uint64(buf[:8])
	buf = buf[8:]
	o := make(Ordinary, count)
	for i := uint64(0); i < count; i++ {
		if len(buf) < 12 {
			return nil, fmt.Errorf("clock: truncated pair %d", i)
		}
		key := binary.LittleEndian.Uint64(buf[0:8])
		val := binary.LittleEndian.Uint32(buf[8:12])
		o[key] = val
		buf = buf[12:]
	}
	if len(buf) != 0 {
		return nil, fmt.Errorf("clock: %d trailing bytes after decode", len(buf))
	}
	return o, nil
}

// Digest returns the SHA-256 of the canonical encoding.
func Digest(o Ordinary) [32]byte {
	return sha256.Sum256(Encode(o))
}

// SameValue reports whether two clocks have identical non-zero entries.
func SameValue(a, b Ordinary) bool {
	return PartialCompare(a, b) == Equal
}
