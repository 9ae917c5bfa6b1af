package optimize

import "testing"

func TestComparePathEqual(t *testing.T) {
	a := "/very/long/prefix/that/exceeds/sixteen/bytes"
	b := "/very/long/prefix/that/exceeds/sixteen/bytes"
	if !ComparePath(a, b) {
		t.Error("expected equal long paths to compare equal")
	}
}

func TestComparePathDifferentLength(t *testing.T) {
	if ComparePath("/short", "/shorter-path") {
		t.Error("expected different-length paths to compare unequal")
	}
}

func TestComparePathDifferentContent(t *testing.T) {
	a := "/very/long/prefix/that/exceeds/sixteen/bytes"
	b := "/very/long/prefix/that/exceeds/sixteen/byteZ"
	if ComparePath(a, b) {
		t.Error("expected differing long paths to compare unequal")
	}
}

func TestVectorWidthReturnsKnownValue(t *testing.T) {
	switch VectorWidth() {
	case "avx2", "neon", "scalar":
	default:
		t.Errorf("unexpected VectorWidth() value: %q", VectorWidth())
	}
}
