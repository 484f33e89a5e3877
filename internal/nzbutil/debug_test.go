package nzbutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebug_CreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	ConfigureDebug(dir)

	Debug("hello %s", "world")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Name(), "debug-")
}

func TestDebug_HandlesEmptyAndFormatted(t *testing.T) {
	dir := t.TempDir()
	ConfigureDebug(dir)

	require.NotPanics(t, func() {
		Debug("")
		Debug("int=%d float=%f bool=%t", 1, 2.5, true)
	})
}

func TestCleanupLogs_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	ConfigureDebug(dir)

	base := time.Now()
	for i := 0; i < 10; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		name := fmt.Sprintf("debug-%s.log", ts.Format("20060102-150405"))
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		require.NoError(t, os.Chtimes(path, ts, ts))
	}

	CleanupLogs(5)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 5)

	newest := fmt.Sprintf("debug-%s.log", base.Add(9*time.Hour).Format("20060102-150405"))
	found := false
	for _, e := range entries {
		if e.Name() == newest {
			found = true
		}
	}
	require.True(t, found, "expected newest log to survive cleanup")
}
