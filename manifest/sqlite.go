package manifest

import (
	"database/sql"
	"fmt"
	"sync"
)

// SchemaVersion is the current schema version
const SchemaVersion = "1"

// SQLite is a SQLite-backed store. It keeps the artifacts of every run
// made with the same database.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLite creates a new SQLite store at the given path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS artifacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			depth INTEGER NOT NULL,
			module_key TEXT NOT NULL,
			source TEXT NOT NULL,
			dest TEXT NOT NULL,
			bytes INTEGER NOT NULL,
			blocks INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS artifacts_run ON artifacts (run_id);
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLite{db: db}

	version, err := s.getMetadataUnlocked("schema_version")
	if err != nil {
		db.Close()
		return nil, err
	}
	switch version {
	case "":
		if err := s.setMetadataUnlocked("schema_version", SchemaVersion); err != nil {
			db.Close()
			return nil, err
		}
	case SchemaVersion:
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported schema version: %s (expected %s)",
			version, SchemaVersion)
	}

	return s, nil
}

// Record adds the artifact to the store.
func (s *SQLite) Record(a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO artifacts
			(run_id, depth, module_key, source, dest, bytes, blocks)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.RunID, a.Depth, a.Key, a.Source, a.Dest, a.Bytes, a.Blocks)
	return err
}

// Artifacts returns the artifacts recorded for the run.
func (s *SQLite) Artifacts(runID string) ([]Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT run_id, depth, module_key, source, dest, bytes, blocks
		FROM artifacts WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var as []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.RunID, &a.Depth, &a.Key,
			&a.Source, &a.Dest, &a.Bytes, &a.Blocks); err != nil {
			return nil, err
		}
		as = append(as, a)
	}
	return as, rows.Err()
}

// Runs returns the distinct run IDs in the store, oldest first.
func (s *SQLite) Runs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT run_id FROM artifacts GROUP BY run_id ORDER BY MIN(id)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// getMetadataUnlocked retrieves metadata without locking (caller must hold lock).
func (s *SQLite) getMetadataUnlocked(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// setMetadataUnlocked stores metadata without locking (caller must hold lock).
func (s *SQLite) setMetadataUnlocked(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
