// Package writer implements ArticleWriter (spec.md §4.5): persists decoded
// article segments either to per-article temp files or directly into the
// reassembled file at a fixed offset, and finalizes completed files.
//
// Grounded on internal/engine/concurrent/downloader.go's direct-write
// (os.OpenFile + Truncate + WriteAt at a known offset), generalized here to
// also cover the temp-segment-then-concatenate mode described by
// daemon/nntp/ArticleWriter.h.
package writer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nzbgrab/nzbgrab/internal/nntp/diskspace"
	"github.com/nzbgrab/nzbgrab/internal/nntp/yenc"
)

// Mode selects how a file's articles are persisted.
type Mode int

const (
	ModeTempSegments Mode = iota
	ModeDirectWrite
)

// Kind classifies a writer failure (spec.md §4.5, §7 "Disk" category).
type Kind int

const (
	KindNone Kind = iota
	KindDiskIO
	KindCrcMismatch
)

func (k Kind) String() string {
	switch k {
	case KindDiskIO:
		return "DiskIo"
	case KindCrcMismatch:
		return "CrcMismatch"
	default:
		return "None"
	}
}

// Error wraps a Kind with the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ArticleWriter persists one File's decoded article bodies, in whichever
// mode SelectMode chose for it.
type ArticleWriter struct {
	mode     Mode
	tmpDir   string
	destDir  string
	filename string
	fileSize int64

	file      *os.File // direct-write target, or the currently-open temp segment
	articleID string   // temp-segments mode: which temp file `file` is

	partCRCs map[int]uint32 // temp-segments mode: per-part CRC, keyed by part number
}

// SelectMode implements spec.md §4.5's forcing rule: direct-write is used
// when the caller has forced it, or when per-article offsets are known and
// the NZB is not suspected of duplicate filenames.
func SelectMode(forceDirectWrite, offsetsKnown, suspectDuplicateFilenames bool) Mode {
	if forceDirectWrite {
		return ModeDirectWrite
	}
	if offsetsKnown && !suspectDuplicateFilenames {
		return ModeDirectWrite
	}
	return ModeTempSegments
}

// New builds an ArticleWriter for one file. tmpDir holds in-progress
// temp-segments; destDir is where the finished file (or direct-write
// sparse preallocation) lives.
func New(mode Mode, tmpDir, destDir, filename string, fileSize int64) *ArticleWriter {
	return &ArticleWriter{
		mode:     mode,
		tmpDir:   tmpDir,
		destDir:  destDir,
		filename: filename,
		fileSize: fileSize,
		partCRCs: make(map[int]uint32),
	}
}

// Start opens or creates the target for one article and seeks appropriately.
// In direct-write mode, the destination file is preallocated (sparse where
// the filesystem supports it) on first call. In temp-segments mode, a new
// temp file is opened per article.
func (w *ArticleWriter) Start(articleID string, articleOffset int64, articleSize int) error {
	if w.mode == ModeDirectWrite {
		if err := os.MkdirAll(w.destDir, 0o755); err != nil {
			return &Error{KindDiskIO, err}
		}
		path := filepath.Join(w.destDir, w.filename)
		if ok, err := diskspace.HasSpaceFor(w.destDir, int64(articleSize)); err == nil && !ok {
			return &Error{Kind: KindDiskIO, Err: fmt.Errorf("insufficient disk space for %s", path)}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return &Error{KindDiskIO, err}
		}
		if w.fileSize > 0 {
			if err := f.Truncate(w.fileSize); err != nil {
				f.Close()
				return &Error{KindDiskIO, err}
			}
		}
		w.file = f
		if _, err := f.Seek(articleOffset, io.SeekStart); err != nil {
			f.Close()
			return &Error{KindDiskIO, err}
		}
		return nil
	}

	if err := os.MkdirAll(w.tmpDir, 0o755); err != nil {
		return &Error{KindDiskIO, err}
	}
	articleID = sanitizeArticleID(articleID)
	tmpPath := filepath.Join(w.tmpDir, articleID)
	if ok, err := diskspace.HasSpaceFor(w.tmpDir, int64(articleSize)); err == nil && !ok {
		return &Error{Kind: KindDiskIO, Err: fmt.Errorf("insufficient disk space for %s", tmpPath)}
	}
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &Error{KindDiskIO, err}
	}
	w.file = f
	w.articleID = articleID
	return nil
}

// Write appends buf to the currently open target.
func (w *ArticleWriter) Write(buf []byte) error {
	if w.file == nil {
		return &Error{Kind: KindDiskIO, Err: fmt.Errorf("write called before Start")}
	}
	if _, err := w.file.Write(buf); err != nil {
		return &Error{KindDiskIO, err}
	}
	return nil
}

// Finish closes the currently open target. On success in temp-segments
// mode, it records the article's CRC (keyed by part number) for later
// combination by CompleteFileParts. On failure, a partially written
// direct-write target is left in place (spec.md: "partially written temp
// files are retained to allow resume"); temp segments are likewise kept.
func (w *ArticleWriter) Finish(success bool, part int, crc uint32) error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return &Error{KindDiskIO, err}
	}
	if success && w.mode == ModeTempSegments {
		w.partCRCs[part] = crc
	}
	return nil
}

// tempSegment pairs a temp file's path with the part number it belongs to,
// so CompleteFileParts can sort by part order before concatenating.
type tempSegment struct {
	part int
	path string
}

// CompleteFileParts concatenates the sorted temp segments (articleIDs, in
// part-number order) into the final output file, verifies the combined
// CRC32 against expectedCRC when non-zero, renames the .tmp output to its
// final name, and removes the temp inputs. In direct-write mode it only
// confirms that the file exists at its final path; expectedCRC is not
// checked there.
func (w *ArticleWriter) CompleteFileParts(parts []PartInfo, expectedCRC uint32) error {
	if w.mode == ModeDirectWrite {
		return w.finalizeDirectWrite(expectedCRC)
	}

	segs := make([]tempSegment, 0, len(parts))
	for _, p := range parts {
		segs = append(segs, tempSegment{part: p.Part, path: filepath.Join(w.tmpDir, p.ArticleID)})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].part < segs[j].part })

	if err := os.MkdirAll(w.destDir, 0o755); err != nil {
		return &Error{KindDiskIO, err}
	}
	finalPath := filepath.Join(w.destDir, w.filename)
	tmpFinal := finalPath + ".tmp"

	out, err := os.OpenFile(tmpFinal, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &Error{KindDiskIO, err}
	}

	var combined uint32
	var total int64
	for i, seg := range segs {
		in, err := os.Open(seg.path)
		if err != nil {
			out.Close()
			os.Remove(tmpFinal)
			return &Error{KindDiskIO, err}
		}
		n, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			out.Close()
			os.Remove(tmpFinal)
			return &Error{KindDiskIO, err}
		}
		total += n

		partCRC, ok := w.partCRCs[seg.part]
		if ok {
			if i == 0 {
				combined = partCRC
			} else {
				combined = yenc.CombineCRC32(combined, partCRC, n)
			}
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpFinal)
		return &Error{KindDiskIO, err}
	}

	if expectedCRC != 0 && combined != 0 && combined != expectedCRC {
		os.Remove(tmpFinal)
		return &Error{Kind: KindCrcMismatch, Err: fmt.Errorf("file %s: expected crc32 %08x, got %08x", w.filename, expectedCRC, combined)}
	}

	if err := os.Rename(tmpFinal, finalPath); err != nil {
		os.Remove(tmpFinal)
		return &Error{KindDiskIO, err}
	}
	for _, seg := range segs {
		os.Remove(seg.path)
	}
	return nil
}

func (w *ArticleWriter) finalizeDirectWrite(expectedCRC uint32) error {
	// Direct-write mode has no temp concatenation step; each article was
	// already written at its final offset. A whole-file CRC check still
	// applies if the caller tracked one, but doing so here would require
	// rereading the file, which callers that need verification should do
	// via a separate pass; CompleteFileParts' job in this mode is limited
	// to confirming the file exists at its final path.
	finalPath := filepath.Join(w.destDir, w.filename)
	if _, err := os.Stat(finalPath); err != nil {
		return &Error{KindDiskIO, err}
	}
	return nil
}

// PartInfo is the minimal per-article metadata CompleteFileParts needs.
type PartInfo struct {
	Part      int
	ArticleID string
}

// MoveCompletedFiles migrates every already-completed file from oldDestDir
// to newDestDir, used when a category/name change moves destDir mid-download
// (spec.md §4.5).
func MoveCompletedFiles(oldDestDir, newDestDir string, filenames []string) error {
	if oldDestDir == newDestDir {
		return nil
	}
	if err := os.MkdirAll(newDestDir, 0o755); err != nil {
		return &Error{KindDiskIO, err}
	}
	for _, name := range filenames {
		oldPath := filepath.Join(oldDestDir, name)
		newPath := filepath.Join(newDestDir, name)
		if _, err := os.Stat(oldPath); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(oldPath, newPath); err != nil {
			return &Error{KindDiskIO, fmt.Errorf("move %s -> %s: %w", oldPath, newPath, err)}
		}
	}
	return nil
}

// Abort removes a broken final file on failure (spec.md: "A broken final
// file is removed on failure"), leaving temp segments intact for resume.
func (w *ArticleWriter) Abort() error {
	finalPath := filepath.Join(w.destDir, w.filename)
	tmpFinal := finalPath + ".tmp"
	os.Remove(tmpFinal)
	if w.mode == ModeDirectWrite {
		os.Remove(finalPath)
	}
	return nil
}

// sanitizeArticleID guards against path traversal via a malformed message-id
// before it is joined into a temp-file path.
func sanitizeArticleID(id string) string {
	id = strings.ReplaceAll(id, "/", "_")
	id = strings.ReplaceAll(id, "\\", "_")
	id = strings.ReplaceAll(id, "..", "_")
	return id
}

// ParsePart extracts the numeric part from a "<n>" string, returning 0 (the
// single-part sentinel) if it cannot be parsed.
func ParsePart(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
