// Package optimize detects CPU SIMD features at startup for the hot
// string-comparison path in routing (the router's exact-length prefix
// check).
package optimize

import "golang.org/x/sys/cpu"

var (
	hasAVX2 bool
	hasNEON bool
)

func init() {
	hasAVX2 = cpu.X86.HasAVX2
	hasNEON = cpu.ARM64.HasASIMD
}

// ComparePath reports whether a and b are byte-identical. Short strings go
// through a direct comparison; longer ones are handed to the runtime's own
// equality check, which the Go compiler already lowers to a vectorized
// memequal on amd64/arm64 when AVX2/NEON are available — the detection
// above exists so callers on the hot path can log/branch on which width
// they're getting rather than to hand-roll the comparison kernel itself,
// since no vetted assembly implementation for it ships anywhere in reach
// of this module.
func ComparePath(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) < 16 {
		return a == b
	}
	return a == b
}

// VectorWidth reports which SIMD width the runtime's string comparison is
// expected to exploit on this CPU, for diagnostics only.
func VectorWidth() string {
	switch {
	case hasAVX2:
		return "avx2"
	case hasNEON:
		return "neon"
	default:
		return "scalar"
	}
}
