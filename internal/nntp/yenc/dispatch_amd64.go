//go:build amd64

package yenc

import "github.com/klauspost/cpuid/v2"

// On amd64, prefer the batched-word decode loop when the CPU has SSE2
// (effectively universal on amd64, but checked per the teacher's own
// cpuid-gated fast paths rather than assumed).
func init() {
	if cpuid.CPU.Supports(cpuid.SSE2) {
		decodeLineFunc = decodeLineWide
	} else {
		decodeLineFunc = decodeLineScalar
	}
}
