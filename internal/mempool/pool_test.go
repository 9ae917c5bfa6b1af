package mempool

import "testing"

func TestAllocateReturnsAlignedRegions(t *testing.T) {
	p := New(256)

	a, ok := p.Allocate(3)
	if !ok {
		t.Fatal("Allocate(3) failed on fresh pool")
	}
	b, ok := p.Allocate(5)
	if !ok {
		t.Fatal("Allocate(5) failed")
	}

	if len(a) != 3 || len(b) != 5 {
		t.Fatalf("got lens %d, %d; want 3, 5", len(a), len(b))
	}
}

func TestAllocateExhaustionReturnsFalse(t *testing.T) {
	p := New(16)

	if _, ok := p.Allocate(8); !ok {
		t.Fatal("first allocation should fit")
	}
	if _, ok := p.Allocate(64); ok {
		t.Fatal("oversized allocation should fail, not panic or succeed")
	}
}

func TestScratchAndResetTo(t *testing.T) {
	p := New(64)

	mark := p.Mark()
	s1, ok := p.Scratch(10)
	if !ok {
		t.Fatal("Scratch(10) failed")
	}
	copy(s1, "0123456789")

	p.ResetTo(mark)

	s2, ok := p.Scratch(10)
	if !ok {
		t.Fatal("Scratch(10) after ResetTo failed")
	}
	if len(s2) != 10 {
		t.Fatalf("len(s2) = %d, want 10", len(s2))
	}
}

func TestResetReclaimsWholeRegion(t *testing.T) {
	p := New(32)

	if _, ok := p.Allocate(16); !ok {
		t.Fatal("Allocate(16) failed")
	}
	if _, ok := p.Scratch(8); !ok {
		t.Fatal("Scratch(8) failed")
	}

	p.Reset()

	if _, ok := p.Allocate(32); !ok {
		t.Fatal("Allocate(32) after Reset should succeed on a fully reclaimed region")
	}
}

func TestReallocateGrowsInPlaceForLastAllocation(t *testing.T) {
	p := New(64)

	buf, ok := p.Allocate(4)
	if !ok {
		t.Fatal("Allocate(4) failed")
	}
	copy(buf, "abcd")

	grown, ok := p.Reallocate(buf, 4, 8)
	if !ok {
		t.Fatal("Reallocate failed")
	}
	if string(grown[:4]) != "abcd" {
		t.Fatalf("grown[:4] = %q, want %q", grown[:4], "abcd")
	}
}

func TestReallocateCopiesWhenNotLastAllocation(t *testing.T) {
	p := New(64)

	first, _ := p.Allocate(4)
	copy(first, "abcd")
	// second allocation makes first no longer the "last" allocation
	p.Allocate(4)

	grown, ok := p.Reallocate(first, 4, 8)
	if !ok {
		t.Fatal("Reallocate failed")
	}
	if string(grown[:4]) != "abcd" {
		t.Fatalf("grown[:4] = %q, want copied contents %q", grown[:4], "abcd")
	}
}
