package main

import (
	"testing"

	"github.com/virtengine/tee-attest/pkg/inference"
)

func TestCorrelationIDIsDeterministic(t *testing.T) {
	a := inference.CorrelationID("req-1")
	b := inference.CorrelationID("req-1")
	if a != b {
		t.Fatalf("expected deterministic hash, got %d and %d", a, b)
	}
}

func TestCorrelationIDDistinguishesInputs(t *testing.T) {
	if inference.CorrelationID("req-1") == inference.CorrelationID("req-2") {
		t.Fatal("expected distinct request ids to hash differently")
	}
}

func TestVLCExtractorRejectsGarbage(t *testing.T) {
	if _, err := vlcExtractor([]byte("not a valid wire frame")); err == nil {
		t.Fatal("expected decode error for malformed input")
	}
}
