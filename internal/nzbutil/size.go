package nzbutil

import "github.com/dustin/go-humanize"

// HumanBytes formats a byte count for logs and CLI output.
func HumanBytes(n int64) string {
	if n < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}
