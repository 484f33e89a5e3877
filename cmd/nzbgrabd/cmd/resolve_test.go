package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nzbgrab/nzbgrab/internal/nntp/state"
)

func openTestStore(t *testing.T) *state.Store {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestResolveNzbIDExactMatch(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SaveDownloadQueue([]state.NzbRecord{
		{ID: "abcdef1234567890abcdef1234567890", Name: "one"},
	}))

	id, err := resolveNzbID(store, "abcdef1234567890abcdef1234567890")
	require.NoError(t, err)
	require.Equal(t, "abcdef1234567890abcdef1234567890", id)
}

func TestResolveNzbIDUniquePrefix(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SaveDownloadQueue([]state.NzbRecord{
		{ID: "abc11111", Name: "one"},
		{ID: "xyz22222", Name: "two"},
	}))

	id, err := resolveNzbID(store, "abc")
	require.NoError(t, err)
	require.Equal(t, "abc11111", id)
}

func TestResolveNzbIDAmbiguousPrefix(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SaveDownloadQueue([]state.NzbRecord{
		{ID: "abc11111", Name: "one"},
		{ID: "abc22222", Name: "two"},
	}))

	_, err := resolveNzbID(store, "abc")
	require.Error(t, err)
}

func TestResolveNzbIDNoMatchReturnsInputUnchanged(t *testing.T) {
	store := openTestStore(t)
	id, err := resolveNzbID(store, "nope")
	require.NoError(t, err)
	require.Equal(t, "nope", id)
}
