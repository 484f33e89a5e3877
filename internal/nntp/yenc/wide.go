package yenc

import "bytes"

// decodeLineWide decodes runs between escape bytes in one bulk subtract
// instead of a byte-at-a-time branch, then falls back to the scalar path
// for the escape byte itself. It must produce output bit-for-bit identical
// to decodeLineScalar for every input (checked by the equivalence test in
// yenc_test.go) — the only difference is how the non-escaped runs are
// walked.
func decodeLineWide(dst, src []byte, pendingEscape *bool) []byte {
	if *pendingEscape && len(src) > 0 {
		dst = append(dst, src[0]-64-42)
		*pendingEscape = false
		src = src[1:]
	}

	for len(src) > 0 {
		idx := bytes.IndexByte(src, '=')
		if idx < 0 {
			dst = subtractRun(dst, src)
			return dst
		}
		dst = subtractRun(dst, src[:idx])
		src = src[idx+1:]
		if len(src) == 0 {
			*pendingEscape = true
			return dst
		}
		dst = append(dst, src[0]-64-42)
		src = src[1:]
	}
	return dst
}

// subtractRun appends run with every byte shifted by -42 (mod 256), eight
// bytes at a time where possible.
func subtractRun(dst, run []byte) []byte {
	n := len(run)
	i := 0
	for ; i+8 <= n; i += 8 {
		var word [8]byte
		word[0] = run[i] - 42
		word[1] = run[i+1] - 42
		word[2] = run[i+2] - 42
		word[3] = run[i+3] - 42
		word[4] = run[i+4] - 42
		word[5] = run[i+5] - 42
		word[6] = run[i+6] - 42
		word[7] = run[i+7] - 42
		dst = append(dst, word[:]...)
	}
	for ; i < n; i++ {
		dst = append(dst, run[i]-42)
	}
	return dst
}
