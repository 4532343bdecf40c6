package worker

import "runtime"

// Per-family pool sizes derived from host CPU count. Encoding is CPU-bound,
// so transcode concurrency stays far below the core count; oversubscribing
// x264 makes every job slower than running them in sequence.

func TranscodeConcurrency() int {
	return transcodeConcurrency(runtime.NumCPU())
}

func transcodeConcurrency(cores int) int {
	switch {
	case cores <= 4:
		return 1
	case cores <= 8:
		return 2
	default:
		return 3
	}
}

func DerivativeConcurrency() int {
	return derivativeConcurrency(runtime.NumCPU())
}

func derivativeConcurrency(cores int) int {
	n := cores / 2
	if n < 1 {
		n = 1
	}
	return n
}

// BundleConcurrency is 1: bundle builds are disk and network bound, and a
// single writer avoids two builds racing for the same artifact path.
func BundleConcurrency() int { return 1 }
