// Package snapshotstore provides a local SQLite index of the paired
// snapshot files the execution engine writes to disk: which
// (SnapshotId, mem path, state path) tuples exist, so a caller can
// enumerate and garbage-collect orphaned snapshot artifacts. The
// execution engine does not persist ExecutionRecords — this is
// bookkeeping for the on-disk snapshot files only.
package snapshotstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forgevm/forge/internal/ids"
)

// Entry describes one tracked snapshot.
type Entry struct {
	SnapshotID ids.SnapshotID
	MemPath    string
	StatePath  string
	CreatedAt  time.Time
}

// Store wraps a pure-Go SQLite database (no cgo) indexing snapshot
// artifacts.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dbPath in WAL mode and
// runs its migration.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create snapshot index directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open snapshot index: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate snapshot index: %w", err)
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id         TEXT PRIMARY KEY,
			mem_path   TEXT NOT NULL,
			state_path TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

// Record inserts or replaces the index entry for a snapshot.
func (s *Store) Record(snapshotID ids.SnapshotID, memPath, statePath string) error {
	_, err := s.db.Exec(`
		INSERT INTO snapshots (id, mem_path, state_path)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET mem_path = excluded.mem_path, state_path = excluded.state_path
	`, snapshotID.String(), memPath, statePath)
	return err
}

// Remove deletes the index entry for a snapshot. It does not remove the
// underlying files — callers unlink those separately.
func (s *Store) Remove(snapshotID ids.SnapshotID) error {
	_, err := s.db.Exec("DELETE FROM snapshots WHERE id = ?", snapshotID.String())
	return err
}

// List returns every tracked snapshot entry.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT id, mem_path, state_path, created_at FROM snapshots")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var idStr, memPath, statePath, createdAtStr string
		if err := rows.Scan(&idStr, &memPath, &statePath, &createdAtStr); err != nil {
			return nil, err
		}
		parsed, err := ids.ParseSnapshotID(idStr)
		if err != nil {
			return nil, err
		}
		createdAt, _ := time.Parse("2006-01-02 15:04:05", createdAtStr)
		entries = append(entries, Entry{
			SnapshotID: parsed,
			MemPath:    memPath,
			StatePath:  statePath,
			CreatedAt:  createdAt,
		})
	}
	return entries, rows.Err()
}

// Orphaned returns entries whose mem or state file is missing from disk.
func (s *Store) Orphaned() ([]Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	var orphans []Entry
	for _, e := range entries {
		if _, err := os.Stat(e.MemPath); err != nil {
			orphans = append(orphans, e)
			continue
		}
		if _, err := os.Stat(e.StatePath); err != nil {
			orphans = append(orphans, e)
		}
	}
	return orphans, nil
}
