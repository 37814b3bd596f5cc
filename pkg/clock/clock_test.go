package clock

import "testing"

func TestGenesisIsEmpty(t *testing.T) {
	if !New().IsGenesis() {
		t.Fatal("new clock must be genesis")
	}
	if !(Ordinary{1: 0, 2: 0}).IsGenesis() {
		t.Fatal("a clock with only zero entries must be genesis")
	}
	if (Ordinary{1: 1}).IsGenesis() {
		t.Fatal("a clock with a nonzero entry must not be genesis")
	}
}

func TestPartialOrderReflexiveAntisymmetricTransitive(t *testing.T) {
	a := Ordinary{1: 2, 2: 3}
	if PartialCompare(a, a) != Equal {
		t.Fatal("a <= a must hold")
	}

	b := Ordinary{1: 2, 2: 3}
	if PartialCompare(a, b) != Equal || PartialCompare(b, a) != Equal {
		t.Fatal("a <= b && b <= a must imply a == b")
	}

	c := Update(a, nil, 1)
	if PartialCompare(a, c) != Less || PartialCompare(c, a) != Greater {
		t.Fatal("update must strictly advance the dominance relation")
	}

	d := Update(c, nil, 1)
	if PartialCompare(a, d) != Less {
		t.Fatal("a <= c <= d must imply a <= d")
	}
}

func TestIncomparableSiblings(t *testing.T) {
	a := Update(New(), nil, 1)
	b := Update(New(), nil, 2)
	if PartialCompare(a, b) != Incomparable {
		t.Fatalf("siblings derived from independent ids must be incomparable, got %v", PartialCompare(a, b))
	}
}

func TestUpdateStrictlyAdvancesForId(t *testing.T) {
	prev := Ordinary{7: 3}
	deps := []Ordinary{{7: 1, 9: 5}, {7: 4}}
	updated := Update(prev, deps, 7)
	if updated[7] != 5 {
		t.Fatalf("expected id 7 to become max(3,1,4)+1=5, got %d", updated[7])
	}
	if updated[9] != 5 {
		t.Fatalf("expected merged entry for id 9 to survive, got %d", updated[9])
	}
}

func TestMergeIsLeastUpperBound(t *testing.T) {
	a := Ordinary{1: 3, 2: 1}
	b := Ordinary{1: 1, 3: 4}
	m := a.Merge(b)
	want := Ordinary{1: 3, 2: 1, 3: 4}
	if !SameValue(m, want) {
		t.Fatalf("merge mismatch: got %v want %v", m, want)
	}
}

func TestCanonicalEncodingIgnoresInsertionOrderAndZeros(t *testing.T) {
	a := Ordinary{1: 5, 2: 0, 3: 9}
	b := Ordinary{3: 9, 1: 5}
	if !bytesEqual(Encode(a), Encode(b)) {
		t.Fatal("semantically equal clocks must encode identically")
	}
	if Digest(a) != Digest(b) {
		t.Fatal("semantically equal clocks must hash identically")
	}
}

func TestEncodingDiffersOnValue(t *testing.T) {
	a := Ordinary{1: 5}
	b := Ordinary{1: 6}
	if bytesEqual(Encode(a), Encode(b)) {
		t.Fatal("different clocks must not encode identically")
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGenesisBumpScenario(t *testing.T) {
	// S1: genesis clock bumped for id 7.
	updated := Update(New(), nil, 7)
	if updated[7] != 1 || len(updated) != 1 {
		t.Fatalf("expected OC{7:1}, got %v", updated)
	}
}

func TestMergeOfTwoSiblingsScenario(t *testing.T) {
	// S2: merge of two sibling-advanced clocks.
	a := Update(New(), nil, 1)
	b := Update(New(), nil, 2)
	merged := Update(a, []Ordinary{b}, 1)
	want := Ordinary{1: 2, 2: 1}
	if !SameValue(merged, want) {
		t.Fatalf("expected OC{1:2,2:1}, got %v", merged)
	}
}
