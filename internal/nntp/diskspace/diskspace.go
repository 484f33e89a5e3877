// Package diskspace checks free space on the filesystem backing the
// download destination directory, guarding ArticleWriter against filling a
// volume mid-transfer (spec.md §7, "Disk" error category).
package diskspace

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// FreeBytes returns the bytes free on the filesystem containing path.
func FreeBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("diskspace: stat %s: %w", path, err)
	}
	return usage.Free, nil
}

// HasSpaceFor reports whether at least need bytes are free at path.
func HasSpaceFor(path string, need int64) (bool, error) {
	free, err := FreeBytes(path)
	if err != nil {
		return false, err
	}
	return free >= uint64(need), nil
}
