// Package nzbutil holds small ambient helpers shared across the core:
// debug logging, human-readable sizes, and filename heuristics.
package nzbutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

var (
	debugOnce sync.Once
	debugMu   sync.Mutex
	debugDir  = defaultLogsDir()
	debugFile *os.File
)

func defaultLogsDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "nzbgrab", "logs")
}

// ConfigureDebug overrides the directory debug logs are written to. Intended
// for tests; callers should do this before the first Debug() call.
func ConfigureDebug(dir string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugDir = dir
	if debugFile != nil {
		debugFile.Close()
		debugFile = nil
	}
	debugOnce = sync.Once{}
}

func openDebugFile() {
	if err := os.MkdirAll(debugDir, 0755); err != nil {
		return
	}
	name := fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(debugDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	debugFile = f
}

// Debug appends a timestamped, formatted line to the rolling debug log.
// Failures to open the log are swallowed: debug logging must never be the
// reason a download fails.
func Debug(format string, args ...any) {
	debugOnce.Do(openDebugFile)

	debugMu.Lock()
	defer debugMu.Unlock()
	if debugFile == nil {
		return
	}
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format(time.RFC3339Nano), fmt.Sprintf(format, args...))
	debugFile.WriteString(line)
}

// CleanupLogs keeps only the `keep` newest debug-*.log files in the
// configured logs directory, deleting the rest.
func CleanupLogs(keep int) {
	entries, err := os.ReadDir(debugDir)
	if err != nil {
		return
	}

	type logFile struct {
		name string
		mod  time.Time
	}
	var logs []logFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match("debug-*.log", e.Name()); !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		logs = append(logs, logFile{name: e.Name(), mod: info.ModTime()})
	}

	sort.Slice(logs, func(i, j int) bool { return logs[i].mod.After(logs[j].mod) })

	if keep < 0 {
		keep = 0
	}
	for i := keep; i < len(logs); i++ {
		os.Remove(filepath.Join(debugDir, logs[i].name))
	}
}

// GetLogsDir returns the directory debug logs are written to.
func GetLogsDir() string {
	return debugDir
}
