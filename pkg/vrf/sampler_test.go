package vrf

import (
	"math/big"
	"testing"
)

// TestSamplerMatchesReferenceFixture reuses the exact fixture from the
// original sampler's "meets" test: a 512-bit precision window, a 10%
// probability threshold, and a specific VRF output hex string that must NOT
// meet that threshold.
func TestSamplerMatchesReferenceFixture(t *testing.T) {
	sampler := NewSampler(512)
	outputHex := "a64c292ec45f6b252828aff9a02a0fe88d2fcc7f5fc61bb328f03f4c6c0657a" +
		"9d26efb23b87647ff54f71cd51a6fa4c4e31661d8f72b41ff00ac4d2eec2ea7b3"

	output, err := sampler.HexToBigInt(outputHex)
	if err != nil {
		t.Fatalf("hex to bigint: %v", err)
	}
	threshold := sampler.CalculateThreshold(0.1)
	if sampler.MeetsThreshold(output, threshold) {
		t.Fatal("fixture output must not meet a 10% threshold")
	}
}

func TestCalculateThresholdScalesWithPrecision(t *testing.T) {
	sampler := NewSampler(8)
	threshold := sampler.CalculateThreshold(0.5)
	want := big.NewInt(128) // 2^8 * 50 / 100
	if threshold.Cmp(want) != 0 {
		t.Fatalf("expected threshold %s, got %s", want, threshold)
	}
}

func TestMeetsThresholdIsStrictlyLess(t *testing.T) {
	sampler := NewSampler(8)
	threshold := big.NewInt(100)
	if sampler.MeetsThreshold(big.NewInt(100), threshold) {
		t.Fatal("output equal to threshold must not meet it")
	}
	if !sampler.MeetsThreshold(big.NewInt(99), threshold) {
		t.Fatal("output strictly below threshold must meet it")
	}
}

func TestPrecisionWindowTakesTrailingChars(t *testing.T) {
	full := "deadbeefcafef00d"
	window, err := PrecisionWindow(full, 4)
	if err != nil {
		t.Fatalf("precision window: %v", err)
	}
	if window != "f00d" {
		t.Fatalf("expected trailing window 'f00d', got %q", window)
	}
}

func TestPrecisionWindowRejectsOutOfRange(t *testing.T) {
	if _, err := PrecisionWindow("abcd", 8); err == nil {
		t.Fatal("expected out-of-range precision to be rejected")
	}
	if _, err := PrecisionWindow("abcd", 0); err == nil {
		t.Fatal("expected non-positive precision to be rejected")
	}
}
