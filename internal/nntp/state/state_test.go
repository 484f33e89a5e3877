package state

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadFileState(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveDownloadQueue([]NzbRecord{{ID: "nzb-1", Name: "test.nzb"}}))

	file := FileRecord{ID: "file-1", NzbID: "nzb-1", Filename: "a.bin", Size: 100, PartialState: 1}
	articles := []ArticleRecord{
		{FileID: "file-1", PartNumber: 1, MessageID: "<m1>", Size: 50, Status: 2},
		{FileID: "file-1", PartNumber: 2, MessageID: "<m2>", Size: 50, Status: 2},
	}
	require.NoError(t, s.SaveFileState(file, articles))

	gotFile, gotArticles, err := s.LoadFileState("file-1")
	require.NoError(t, err)
	require.Equal(t, "a.bin", gotFile.Filename)
	require.Len(t, gotArticles, 2)
	require.Equal(t, "<m1>", gotArticles[0].MessageID)
}

func TestLoadFileStateMissing(t *testing.T) {
	s := openTestStore(t)
	_, _, err := s.LoadFileState("does-not-exist")
	require.Error(t, err)
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestDiscardFileRemovesRows(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveDownloadQueue([]NzbRecord{{ID: "nzb-1", Name: "n"}}))
	file := FileRecord{ID: "file-1", NzbID: "nzb-1", Filename: "a.bin", PartialState: 1}
	require.NoError(t, s.SaveFileState(file, nil))

	require.NoError(t, s.DiscardFile("file-1", false, false, false))

	_, _, err := s.LoadFileState("file-1")
	require.Error(t, err)
}

func TestDiscardFileKeepsCompleted(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveDownloadQueue([]NzbRecord{{ID: "nzb-1", Name: "n"}}))
	file := FileRecord{ID: "file-1", NzbID: "nzb-1", Filename: "a.bin", PartialState: 2}
	require.NoError(t, s.SaveFileState(file, nil))

	require.NoError(t, s.DiscardFile("file-1", false, true, false))

	got, _, err := s.LoadFileState("file-1")
	require.NoError(t, err)
	require.Equal(t, "a.bin", got.Filename)
}

func TestSaveDownloadProgress(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveDownloadQueue([]NzbRecord{{ID: "nzb-1", Name: "n"}}))
	require.NoError(t, s.SaveDownloadProgress([]FileRecord{
		{ID: "file-1", NzbID: "nzb-1", Filename: "a.bin", Size: 10, RemainingSize: 5},
	}))

	got, _, err := s.LoadFileState("file-1")
	require.NoError(t, err)
	require.EqualValues(t, 5, got.RemainingSize)
}

func TestListNzbsReturnsAllSaved(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveDownloadQueue([]NzbRecord{{ID: "nzb-1", Name: "first"}}))
	require.NoError(t, s.SaveDownloadQueue([]NzbRecord{{ID: "nzb-2", Name: "second"}}))

	nzbs, err := s.ListNzbs()
	require.NoError(t, err)
	require.Len(t, nzbs, 2)
	ids := []string{nzbs[0].ID, nzbs[1].ID}
	require.ElementsMatch(t, []string{"nzb-1", "nzb-2"}, ids)
}

func TestSetNzbPaused(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveDownloadQueue([]NzbRecord{{ID: "nzb-1", Name: "n"}}))

	require.NoError(t, s.SetNzbPaused("nzb-1", true))
	nzbs, err := s.ListNzbs()
	require.NoError(t, err)
	require.True(t, nzbs[0].Paused)

	require.NoError(t, s.SetNzbPaused("nzb-1", false))
	nzbs, err = s.ListNzbs()
	require.NoError(t, err)
	require.False(t, nzbs[0].Paused)
}

func TestSetNzbPausedUnknownID(t *testing.T) {
	s := openTestStore(t)
	err := s.SetNzbPaused("does-not-exist", true)
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestSetAllNzbsPausedSkipsDeleteMarked(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveDownloadQueue([]NzbRecord{
		{ID: "nzb-1", Name: "a"},
		{ID: "nzb-2", Name: "b", DeleteStatus: 1},
	}))

	require.NoError(t, s.SetAllNzbsPaused(true))

	nzbs, err := s.ListNzbs()
	require.NoError(t, err)
	byID := map[string]NzbRecord{}
	for _, n := range nzbs {
		byID[n.ID] = n
	}
	require.True(t, byID["nzb-1"].Paused)
	require.False(t, byID["nzb-2"].Paused)
}

func TestSetNzbDeleteStatus(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveDownloadQueue([]NzbRecord{{ID: "nzb-1", Name: "n"}}))

	require.NoError(t, s.SetNzbDeleteStatus("nzb-1", 1))
	nzbs, err := s.ListNzbs()
	require.NoError(t, err)
	require.Equal(t, 1, nzbs[0].DeleteStatus)
}

func TestRemoveNzbCascadesFiles(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveDownloadQueue([]NzbRecord{{ID: "nzb-1", Name: "n"}}))
	require.NoError(t, s.SaveFileState(FileRecord{ID: "file-1", NzbID: "nzb-1", Filename: "a.bin"}, nil))

	require.NoError(t, s.RemoveNzb("nzb-1"))

	nzbs, err := s.ListNzbs()
	require.NoError(t, err)
	require.Empty(t, nzbs)

	_, _, err = s.LoadFileState("file-1")
	require.Error(t, err)
}

func TestRemoveDeleteMarkedNzbs(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveDownloadQueue([]NzbRecord{
		{ID: "nzb-1", Name: "keep"},
		{ID: "nzb-2", Name: "gone", DeleteStatus: 1},
		{ID: "nzb-3", Name: "also-gone", DeleteStatus: 2},
	}))

	n, err := s.RemoveDeleteMarkedNzbs()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	nzbs, err := s.ListNzbs()
	require.NoError(t, err)
	require.Len(t, nzbs, 1)
	require.Equal(t, "nzb-1", nzbs[0].ID)
}
