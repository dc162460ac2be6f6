package storage

import (
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists records in a local SQLite database, the durable
// equivalent of browser local storage for the CLI entry points.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[NewSQLiteStore] open")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[NewSQLiteStore] create table")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "[SQLiteStore.Get] query")
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO records (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return errors.Wrap(err, "[SQLiteStore.Set] exec")
}

func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM records WHERE key = ?`, key)
	return errors.Wrap(err, "[SQLiteStore.Delete] exec")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
