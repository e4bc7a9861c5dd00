// Package sqlite provides a BlobStore backed by a SQLite database, for hosts
// that would rather keep one file than a spool directory.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/strongdm/crashline/pkg/crashline"
)

// Store keeps queued blobs in a single table.
type Store struct {
	db *sql.DB
}

var _ crashline.BlobStore = (*Store)(nil)

// New opens (or creates) the database at dbPath. Use ":memory:" for a
// throwaway store.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS blobs (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write creates or replaces a blob.
func (s *Store) Write(name string, data []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO blobs (name, payload, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		name, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write blob %s: %w", name, err)
	}
	return nil
}

// Read returns a blob or crashline.ErrBlobNotFound.
func (s *Store) Read(name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT payload FROM blobs WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, crashline.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", name, err)
	}
	return data, nil
}

// Delete removes a blob.
func (s *Store) Delete(name string) error {
	if _, err := s.db.Exec(`DELETE FROM blobs WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	return nil
}

// Exists reports whether a blob is present.
func (s *Store) Exists(name string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM blobs WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check blob %s: %w", name, err)
	}
	return n > 0, nil
}

// List returns all blob names in insertion order.
func (s *Store) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM blobs ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan blob name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Prune truncates the write-ahead log once the table is empty.
func (s *Store) Prune() error {
	names, err := s.List()
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return nil
	}
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("failed to checkpoint: %w", err)
	}
	return nil
}
