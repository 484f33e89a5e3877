package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nzbgrab/nzbgrab/internal/nntp/queue"
)

func TestPollIncomingConsumesNzbDescriptor(t *testing.T) {
	withTempStateDir(t)
	require.NoError(t, ensureStateDirs())

	require.NoError(t, writeAtomic(incomingDir(), "one.nzb.json", []byte(`{
		"name": "release.one",
		"files": [{"filename": "release.one.part01.rar", "size": 100}]
	}`)))

	q := queue.NewDownloadQueue()
	ed := queue.NewEditor(q, &fakeSaver{})

	pollIncoming(q, ed)

	require.Len(t, q.Items, 1)
	require.Equal(t, "release.one", q.Items[0].Name)

	entries, err := os.ReadDir(incomingDir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPollIncomingAppliesEditCommand(t *testing.T) {
	withTempStateDir(t)
	require.NoError(t, ensureStateDirs())

	q := queue.NewDownloadQueue()
	n := &queue.NzbInfo{ID: queue.NewID(), Name: "n1"}
	q.Items = append(q.Items, n)
	ed := queue.NewEditor(q, &fakeSaver{})

	require.NoError(t, writeAtomic(incomingDir(), "pause.cmd.json", []byte(`{"op":"pause","nzbId":"`+n.ID+`"}`)))

	pollIncoming(q, ed)

	require.True(t, n.Paused)
}

func TestPollIncomingRemovesUnparseableDescriptor(t *testing.T) {
	withTempStateDir(t)
	require.NoError(t, ensureStateDirs())
	require.NoError(t, writeAtomic(incomingDir(), "bad.nzb.json", []byte(`not json`)))

	q := queue.NewDownloadQueue()
	ed := queue.NewEditor(q, &fakeSaver{})
	pollIncoming(q, ed)

	require.Empty(t, q.Items)
	entries, err := os.ReadDir(incomingDir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestQueueSaverSnapshotsQueue(t *testing.T) {
	store := openTestStore(t)
	q := queue.NewDownloadQueue()
	n := &queue.NzbInfo{ID: queue.NewID(), Name: "n1", Category: "movies"}
	q.Items = append(q.Items, n)

	saver := &queueSaver{store: store, queue: q}
	require.NoError(t, saver.SaveDownloadQueue())

	nzbs, err := store.ListNzbs()
	require.NoError(t, err)
	require.Len(t, nzbs, 1)
	require.Equal(t, "n1", nzbs[0].Name)
	require.Equal(t, "movies", nzbs[0].Category)
}
