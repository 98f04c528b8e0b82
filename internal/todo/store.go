// Package todo is the per-user todo list behind the todo_app tool.
// Every query is scoped by user id; one user can never see or delete
// another user's items.
package todo

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when an item does not exist for that user.
var ErrNotFound = errors.New("todo item not found")

// DefaultCategory is used when the model does not name one.
const DefaultCategory = "general"

// Item is one todo entry.
type Item struct {
	ID        string
	UserID    string
	Category  string
	Text      string
	Due       *time.Time
	CreatedAt time.Time
}

// Store is the sqlite-backed todo store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the todo database at path.
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
	CREATE TABLE IF NOT EXISTS todos (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		text TEXT NOT NULL,
		due TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_todos_user ON todos(user_id, category);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add stores a new item and returns it.
func (s *Store) Add(userID, category, text string, due *time.Time) (*Item, error) {
	if category == "" {
		category = DefaultCategory
	}
	item := &Item{
		ID:        uuid.NewString(),
		UserID:    userID,
		Category:  category,
		Text:      text,
		Due:       due,
		CreatedAt: time.Now(),
	}

	var dueStr sql.NullString
	if due != nil {
		dueStr = sql.NullString{String: due.Format(time.RFC3339), Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO todos (id, user_id, category, text, due, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, item.Category, item.Text, dueStr,
		item.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// List returns the user's items, oldest first. An empty category
// means all categories.
func (s *Store) List(userID, category string) ([]Item, error) {
	query := `SELECT id, user_id, category, text, due, created_at FROM todos WHERE user_id = ?`
	args := []any{userID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	// rowid keeps insertion order even when two inserts share a
	// timestamp.
	query += ` ORDER BY rowid`

	return s.queryItems(query, args...)
}

// Delete removes one of the user's items by id.
func (s *Store) Delete(userID, id string) error {
	res, err := s.db.Exec(`DELETE FROM todos WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Categories lists the user's distinct categories.
func (s *Store) Categories(userID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT category FROM todos WHERE user_id = ? ORDER BY category`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteCategory removes all of the user's items in a category and
// returns how many were deleted.
func (s *Store) DeleteCategory(userID, category string) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM todos WHERE user_id = ? AND category = ?`, userID, category)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Overdue returns the user's items whose due date has passed.
func (s *Store) Overdue(userID string, now time.Time) ([]Item, error) {
	return s.queryItems(
		`SELECT id, user_id, category, text, due, created_at FROM todos
		 WHERE user_id = ? AND due IS NOT NULL AND due < ? ORDER BY due`,
		userID, now.Format(time.RFC3339),
	)
}

func (s *Store) queryItems(query string, args ...any) ([]Item, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item    Item
			due     sql.NullString
			created string
		)
		if err := rows.Scan(&item.ID, &item.UserID, &item.Category, &item.Text, &due, &created); err != nil {
			return nil, err
		}
		if due.Valid {
			t, err := time.Parse(time.RFC3339, due.String)
			if err == nil {
				item.Due = &t
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			item.CreatedAt = t
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
