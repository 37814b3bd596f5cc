package vrf

import (
	"errors"
	"math/big"
)

// ErrInvalidHexWindow is returned when a sampling window is not valid hex.
var ErrInvalidHexWindow = errors.New("vrf: invalid hex sampling window")

// Sampler converts a hex-encoded VRF output window into an arbitrary
// precision integer and compares it against a selection threshold.
type Sampler struct {
	precisionBits int
}

// NewSampler constructs a Sampler operating at precisionBits bits of
// selection precision.
func NewSampler(precisionBits int) Sampler {
	return Sampler{precisionBits: precisionBits}
}

// HexToBigInt parses a hex string (no "0x" prefix) into a big.Int.
func (s Sampler) HexToBigInt(hexStr string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		return nil, ErrInvalidHexWindow
	}
	return n, nil
}

// CalculateThreshold returns floor(2^precisionBits * floor(probability*100) / 100),
// the integer-percent threshold a caller bakes into a request's vrf_threshold
// field before it ever reaches the VRF gate.
func (s Sampler) CalculateThreshold(probability float64) *big.Int {
	maxOutput := new(big.Int).Lsh(big.NewInt(1), uint(s.precisionBits))
	percent := big.NewInt(int64(probability * 100.0))
	threshold := new(big.Int).Mul(maxOutput, percent)
	return threshold.Div(threshold, big.NewInt(100))
}

// ThresholdFromUint64 wraps an already-computed threshold value (the form
// vrf_threshold actually travels on the wire in) as a big.Int.
func (s Sampler) ThresholdFromUint64(threshold uint64) *big.Int {
	return new(big.Int).SetUint64(threshold)
}

// MeetsThreshold reports whether output is strictly below threshold.
func (s Sampler) MeetsThreshold(output, threshold *big.Int) bool {
	return output.Cmp(threshold) < 0
}

// PrecisionWindow returns the last precisionHexChars hex characters of
// fullHex — the sampling window used for the threshold comparison, while the
// full hex string is still what goes out on the wire as vrf_random_value.
func PrecisionWindow(fullHex string, precisionHexChars int) (string, error) {
	if precisionHexChars <= 0 || precisionHexChars > len(fullHex) {
		return "", errors.New("vrf: precision out of range for output length")
	}
	return fullHex[len(fullHex)-precisionHexChars:], nil
}
