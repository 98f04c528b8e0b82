// Package userdir persists the set of user identities that have ever
// talked to the bot. Sessions are volatile; this directory is what the
// scheduled notifier fans out over after a restart.
package userdir

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the sqlite-backed user directory.
type Store struct {
	db *sql.DB
}

// Open creates or opens the directory database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		first_seen TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add records a user identity. Adding an already-known user is a no-op.
func (s *Store) Add(userID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO users (id, first_seen) VALUES (?, ?)`,
		userID, time.Now().Format(time.RFC3339Nano),
	)
	return err
}

// All returns every known user id, oldest first.
func (s *Store) All() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM users ORDER BY first_seen, id`)
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
