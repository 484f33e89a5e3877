package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSaver struct{ calls int }

func (f *fakeSaver) SaveDownloadQueue() error { f.calls++; return nil }

func newTestQueue(t *testing.T) (*DownloadQueue, *Editor) {
	t.Helper()
	q := NewDownloadQueue()
	return q, NewEditor(q, &fakeSaver{})
}

func TestFilePauseResume(t *testing.T) {
	q, e := newTestQueue(t)
	n := &NzbInfo{ID: NewID(), Name: "n1"}
	f := &FileInfo{ID: NewID(), Filename: "a.bin", NzbID: n.ID}
	n.Files = append(n.Files, f)
	q.Items = append(q.Items, n)

	require.NoError(t, e.FilePause(f.ID))
	require.True(t, f.Paused)
	require.NoError(t, e.FileResume(f.ID))
	require.False(t, f.Paused)

	require.ErrorIs(t, e.FilePause("missing"), ErrNotFound)
}

func TestGroupMoveOffsetTopBottom(t *testing.T) {
	q, e := newTestQueue(t)
	n1 := &NzbInfo{ID: NewID(), Name: "n1"}
	n2 := &NzbInfo{ID: NewID(), Name: "n2"}
	n3 := &NzbInfo{ID: NewID(), Name: "n3"}
	q.Items = append(q.Items, n1, n2, n3)

	require.NoError(t, e.GroupMoveTop(n3.ID))
	require.Equal(t, []string{n3.ID, n1.ID, n2.ID}, idsOf(q.Items))

	require.NoError(t, e.GroupMoveBottom(n3.ID))
	require.Equal(t, []string{n1.ID, n2.ID, n3.ID}, idsOf(q.Items))

	require.NoError(t, e.GroupMoveOffset(n1.ID, 1))
	require.Equal(t, []string{n2.ID, n1.ID, n3.ID}, idsOf(q.Items))
}

func idsOf(items []*NzbInfo) []string {
	out := make([]string, len(items))
	for i, n := range items {
		out[i] = n.ID
	}
	return out
}

func TestGroupMergeRefusesUrlPlaceholder(t *testing.T) {
	q, e := newTestQueue(t)
	dst := &NzbInfo{ID: NewID(), Kind: KindNzb}
	src := &NzbInfo{ID: NewID(), Kind: KindURL}
	q.Items = append(q.Items, dst, src)

	err := e.GroupMerge(dst.ID, src.ID)
	require.ErrorIs(t, err, ErrRefused)
}

func TestGroupMergeCombinesFiles(t *testing.T) {
	q, e := newTestQueue(t)
	dst := &NzbInfo{ID: NewID(), Kind: KindNzb, Size: 100}
	src := &NzbInfo{ID: NewID(), Kind: KindNzb, Size: 50}
	f := &FileInfo{ID: NewID(), Filename: "x.bin", NzbID: src.ID}
	src.Files = append(src.Files, f)
	q.Items = append(q.Items, dst, src)

	require.NoError(t, e.GroupMerge(dst.ID, src.ID))
	require.Len(t, dst.Files, 1)
	require.Equal(t, dst.ID, f.NzbID)
	require.Equal(t, int64(150), dst.Size)
	require.Len(t, q.Items, 1)
}

func TestGroupSplit(t *testing.T) {
	q, e := newTestQueue(t)
	src := &NzbInfo{ID: NewID(), Name: "src"}
	f1 := &FileInfo{ID: NewID(), Filename: "a.bin", Size: 10, NzbID: src.ID}
	f2 := &FileInfo{ID: NewID(), Filename: "b.bin", Size: 20, NzbID: src.ID}
	src.Files = append(src.Files, f1, f2)
	q.Items = append(q.Items, src)

	dst, err := e.GroupSplit(src.ID, []string{f2.ID}, "split-out")
	require.NoError(t, err)
	require.Len(t, src.Files, 1)
	require.Equal(t, f1.ID, src.Files[0].ID)
	require.Len(t, dst.Files, 1)
	require.Equal(t, f2.ID, dst.Files[0].ID)
	require.Equal(t, dst.ID, f2.NzbID)
	require.Len(t, q.Items, 2)
}

func TestGroupSetCategoryRollsBackOnMoveFailure(t *testing.T) {
	q, e := newTestQueue(t)
	n := &NzbInfo{ID: NewID(), Category: "old", DestDir: "/old"}
	f := &FileInfo{ID: NewID(), NzbID: n.ID, PartialState: PartialCompleted, OutputFilename: "x.bin"}
	n.Files = append(n.Files, f)
	q.Items = append(q.Items, n)

	failingMove := func(oldDestDir, newDestDir string, filenames []string) error {
		return errors.New("disk full")
	}
	err := e.GroupSetCategory(n.ID, "new", failingMove)
	require.ErrorIs(t, err, ErrRefused)
	require.Equal(t, "old", n.Category)
	require.Equal(t, "/old", n.DestDir)
}
