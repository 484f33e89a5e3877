// Package state persists queue and per-file partial state through SQLite
// (spec.md §6 "Persisted state": SaveDownloadQueue, SaveDownloadProgress,
// SaveFileState, LoadFileState, DiscardFile), grounded verbatim on
// internal/engine/state/state.go's withTx + prepared-statement shape,
// re-schema'd from single-file HTTP downloads to NzbInfo/FileInfo.
package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding the queue snapshot and per-file
// partial download state.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite does not support concurrent writers
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nzbs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT,
			dest_dir TEXT,
			priority INTEGER,
			kind INTEGER,
			delete_status INTEGER,
			paused INTEGER,
			updated_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			nzb_id TEXT NOT NULL REFERENCES nzbs(id) ON DELETE CASCADE,
			filename TEXT,
			size INTEGER,
			remaining_size INTEGER,
			partial_state INTEGER,
			paused INTEGER,
			output_filename TEXT,
			crc INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS articles (
			file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			part_number INTEGER,
			message_id TEXT,
			size INTEGER,
			status INTEGER,
			segment_offset INTEGER,
			crc INTEGER,
			PRIMARY KEY (file_id, part_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_files_nzb ON files(nzb_id)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_file ON articles(file_id)`,
	}
	return s.withTx(func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("state: migrate: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("state: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("state: commit tx: %w", err)
	}
	return nil
}

// NzbRecord is the persisted slice of an NzbInfo's queue-level fields.
type NzbRecord struct {
	ID           string
	Name         string
	Category     string
	DestDir      string
	Priority     int
	Kind         int
	DeleteStatus int
	Paused       bool
}

// FileRecord is the persisted slice of a FileInfo's fields.
type FileRecord struct {
	ID             string
	NzbID          string
	Filename       string
	Size           int64
	RemainingSize  int64
	PartialState   int
	Paused         bool
	OutputFilename string
	CRC            uint32
}

// ArticleRecord is the persisted slice of an ArticleInfo's fields (no
// segmentData: that lives only in ArticleCache while in flight).
type ArticleRecord struct {
	FileID        string
	PartNumber    int
	MessageID     string
	Size          int64
	Status        int
	SegmentOffset int64
	CRC           uint32
}

// SaveDownloadQueue upserts the full queue snapshot (spec.md §6). Rows for
// NzbInfos no longer present are left untouched — callers call RemoveNzb or
// RemoveDeleteMarkedNzbs explicitly to prune them.
func (s *Store) SaveDownloadQueue(nzbs []NzbRecord) error {
	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO nzbs (id, name, category, dest_dir, priority, kind, delete_status, paused, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name=excluded.name, category=excluded.category, dest_dir=excluded.dest_dir,
				priority=excluded.priority, kind=excluded.kind, delete_status=excluded.delete_status,
				paused=excluded.paused, updated_at=excluded.updated_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		now := time.Now().Unix()
		for _, n := range nzbs {
			if _, err := stmt.Exec(n.ID, n.Name, n.Category, n.DestDir, n.Priority, n.Kind, n.DeleteStatus, n.Paused, now); err != nil {
				return fmt.Errorf("state: save nzb %s: %w", n.ID, err)
			}
		}
		return nil
	})
}

// SaveDownloadProgress upserts per-file progress counters (spec.md §6).
func (s *Store) SaveDownloadProgress(files []FileRecord) error {
	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO files (id, nzb_id, filename, size, remaining_size, partial_state, paused, output_filename, crc)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				filename=excluded.filename, size=excluded.size, remaining_size=excluded.remaining_size,
				partial_state=excluded.partial_state, paused=excluded.paused,
				output_filename=excluded.output_filename, crc=excluded.crc
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, f := range files {
			if _, err := stmt.Exec(f.ID, f.NzbID, f.Filename, f.Size, f.RemainingSize, f.PartialState, f.Paused, f.OutputFilename, f.CRC); err != nil {
				return fmt.Errorf("state: save file %s: %w", f.ID, err)
			}
		}
		return nil
	})
}

// SaveFileState persists one file's articles, replacing any previously
// stored rows for it (spec.md §6 "SaveFileState(file, completed?)").
func (s *Store) SaveFileState(file FileRecord, articles []ArticleRecord) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO files (id, nzb_id, filename, size, remaining_size, partial_state, paused, output_filename, crc)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				filename=excluded.filename, size=excluded.size, remaining_size=excluded.remaining_size,
				partial_state=excluded.partial_state, paused=excluded.paused,
				output_filename=excluded.output_filename, crc=excluded.crc
		`, file.ID, file.NzbID, file.Filename, file.Size, file.RemainingSize, file.PartialState, file.Paused, file.OutputFilename, file.CRC); err != nil {
			return fmt.Errorf("state: save file %s: %w", file.ID, err)
		}

		if _, err := tx.Exec(`DELETE FROM articles WHERE file_id = ?`, file.ID); err != nil {
			return fmt.Errorf("state: clear articles for %s: %w", file.ID, err)
		}
		stmt, err := tx.Prepare(`
			INSERT INTO articles (file_id, part_number, message_id, size, status, segment_offset, crc)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range articles {
			if _, err := stmt.Exec(a.FileID, a.PartNumber, a.MessageID, a.Size, a.Status, a.SegmentOffset, a.CRC); err != nil {
				return fmt.Errorf("state: save article %s/%d: %w", a.FileID, a.PartNumber, err)
			}
		}
		return nil
	})
}

// LoadFileState returns the persisted file record and its articles, or
// sql.ErrNoRows if fileID is unknown.
func (s *Store) LoadFileState(fileID string) (FileRecord, []ArticleRecord, error) {
	var f FileRecord
	row := s.db.QueryRow(`
		SELECT id, nzb_id, filename, size, remaining_size, partial_state, paused, output_filename, crc
		FROM files WHERE id = ?
	`, fileID)
	if err := row.Scan(&f.ID, &f.NzbID, &f.Filename, &f.Size, &f.RemainingSize, &f.PartialState, &f.Paused, &f.OutputFilename, &f.CRC); err != nil {
		return FileRecord{}, nil, fmt.Errorf("state: load file %s: %w", fileID, err)
	}

	rows, err := s.db.Query(`
		SELECT file_id, part_number, message_id, size, status, segment_offset, crc
		FROM articles WHERE file_id = ? ORDER BY part_number
	`, fileID)
	if err != nil {
		return FileRecord{}, nil, fmt.Errorf("state: load articles for %s: %w", fileID, err)
	}
	defer rows.Close()

	var articles []ArticleRecord
	for rows.Next() {
		var a ArticleRecord
		if err := rows.Scan(&a.FileID, &a.PartNumber, &a.MessageID, &a.Size, &a.Status, &a.SegmentOffset, &a.CRC); err != nil {
			return FileRecord{}, nil, fmt.Errorf("state: scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return f, articles, rows.Err()
}

// ListNzbs returns every persisted NzbInfo snapshot, most recently updated
// first. Grounded on internal/engine/state/state.go's ListAllDownloads,
// re-pointed at the nzbs table the CLI's offline ls/pause/resume/rm
// commands read and write when no daemon is running to ask directly.
func (s *Store) ListNzbs() ([]NzbRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, name, category, dest_dir, priority, kind, delete_status, paused
		FROM nzbs ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("state: list nzbs: %w", err)
	}
	defer rows.Close()

	var out []NzbRecord
	for rows.Next() {
		var n NzbRecord
		if err := rows.Scan(&n.ID, &n.Name, &n.Category, &n.DestDir, &n.Priority, &n.Kind, &n.DeleteStatus, &n.Paused); err != nil {
			return nil, fmt.Errorf("state: scan nzb: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SetNzbPaused updates one NzbInfo's paused flag (grounded on UpdateStatus).
// It reports sql.ErrNoRows if id is not a known NZB.
func (s *Store) SetNzbPaused(id string, paused bool) error {
	res, err := s.db.Exec(`UPDATE nzbs SET paused = ? WHERE id = ?`, paused, id)
	if err != nil {
		return fmt.Errorf("state: set paused %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetAllNzbsPaused updates every NZB not already marked for deletion
// (grounded on PauseAllDownloads/ResumeAllDownloads).
func (s *Store) SetAllNzbsPaused(paused bool) error {
	_, err := s.db.Exec(`UPDATE nzbs SET paused = ? WHERE delete_status = 0`, paused)
	if err != nil {
		return fmt.Errorf("state: set all paused: %w", err)
	}
	return nil
}

// SetNzbDeleteStatus records a deletion intent for one NzbInfo (the caller
// passes queue.DeleteManual/DeleteHealth/DeleteDupe as a bare int to avoid
// an import cycle back through queue). Reports sql.ErrNoRows if id is
// unknown.
func (s *Store) SetNzbDeleteStatus(id string, status int) error {
	res, err := s.db.Exec(`UPDATE nzbs SET delete_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("state: set delete status %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RemoveNzb deletes one NZB's row and (via ON DELETE CASCADE) its files and
// articles (grounded on RemoveFromMasterList).
func (s *Store) RemoveNzb(id string) error {
	_, err := s.db.Exec(`DELETE FROM nzbs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("state: remove nzb %s: %w", id, err)
	}
	return nil
}

// RemoveDeleteMarkedNzbs sweeps out every NZB row already carrying a
// non-None delete status, returning the count removed (grounded on
// RemoveCompletedDownloads). Rows of NZBs without a delete status, finished
// or not, are left in place.
func (s *Store) RemoveDeleteMarkedNzbs() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM nzbs WHERE delete_status != 0`)
	if err != nil {
		return 0, fmt.Errorf("state: remove delete-marked nzbs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DiscardFile removes a file's persisted state (spec.md §6 "DiscardFile(id,
// keepPartial, keepCompleted, discardPartial)"). keepPartial/keepCompleted
// skip the discard when the file's stored partial_state matches; the
// articles table row is always cascade-deleted with the file.
func (s *Store) DiscardFile(fileID string, keepPartial, keepCompleted, discardPartial bool) error {
	return s.withTx(func(tx *sql.Tx) error {
		var partialState int
		err := tx.QueryRow(`SELECT partial_state FROM files WHERE id = ?`, fileID).Scan(&partialState)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("state: discard lookup %s: %w", fileID, err)
		}

		const (
			partialStatePartial   = 1
			partialStateCompleted = 2
		)
		if keepPartial && partialState == partialStatePartial && !discardPartial {
			return nil
		}
		if keepCompleted && partialState == partialStateCompleted {
			return nil
		}

		if _, err := tx.Exec(`DELETE FROM articles WHERE file_id = ?`, fileID); err != nil {
			return fmt.Errorf("state: discard articles for %s: %w", fileID, err)
		}
		if _, err := tx.Exec(`DELETE FROM files WHERE id = ?`, fileID); err != nil {
			return fmt.Errorf("state: discard file %s: %w", fileID, err)
		}
		return nil
	})
}
