//go:build arm64

package yenc

import "github.com/klauspost/cpuid/v2"

// NEON is mandatory on arm64, so this is effectively always true; the check
// is kept so the dispatch shape matches dispatch_amd64.go exactly.
func init() {
	if cpuid.CPU.Supports(cpuid.ASIMD) {
		decodeLineFunc = decodeLineWide
	} else {
		decodeLineFunc = decodeLineScalar
	}
}
