package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
)

// Backend is the persistence layer behind a [Store]: a flat string key/value space.
//
// Apply must make all sets and deletes visible together or not at all.
type Backend interface {
	Get(key string) (value string, ok bool, err error)
	Apply(set map[string]string, del []string) error
}

// MemoryBackend keeps values in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryBackend creates an empty [MemoryBackend].
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: map[string]string{}}
}

func (m *MemoryBackend) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryBackend) Apply(set map[string]string, del []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range del {
		delete(m.values, k)
	}
	for k, v := range set {
		m.values[k] = v
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// SQLiteBackend persists values in the credentials table of a SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend wraps an open database whose migrations have already been applied.
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// OpenSQLite opens (or creates) the database at path and runs the embedded migrations.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate credential database: %w", err)
	}
	return NewSQLiteBackend(db), nil
}

func (s *SQLiteBackend) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM credentials WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read credential %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteBackend) Apply(set map[string]string, del []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, k := range del {
		if _, err := tx.Exec("DELETE FROM credentials WHERE key = ?", k); err != nil {
			return fmt.Errorf("failed to delete credential %s: %w", k, err)
		}
	}

	for k, v := range set {
		_, err := tx.Exec(`
			INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, k, v)
		if err != nil {
			return fmt.Errorf("failed to write credential %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit credentials: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
