package workspace

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/xlttj/liveserve/pkg/logging"

	_ "modernc.org/sqlite"
)

// SQLiteKV is a KV backed by a single SQLite table
type SQLiteKV struct {
	db     *sql.DB
	mutex  sync.RWMutex
	dbPath string
}

// NewSQLiteKV opens (creating if needed) the database at dbPath
func NewSQLiteKV(dbPath string) (*SQLiteKV, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Attempt to set restrictive permissions on first creation
	if _, statErr := os.Stat(dbPath); os.IsNotExist(statErr) {
		f, ferr := os.OpenFile(dbPath, os.O_CREATE|os.O_RDONLY, 0600)
		if ferr == nil {
			_ = f.Close()
		}
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: all writers are serialized through it
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	kv := &SQLiteKV{
		db:     db,
		dbPath: dbPath,
	}

	if err := kv.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.LogDebug("SQLite workspace store initialized at: %s", dbPath)
	return kv, nil
}

// initializeSchema creates the key/value table
func (s *SQLiteKV) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteKV) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound
func (s *SQLiteKV) Get(key string) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key
func (s *SQLiteKV) Set(key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (s *SQLiteKV) Delete(key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Scan returns all entries whose key starts with prefix
func (s *SQLiteKV) Scan(prefix string) (map[string]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.db.Query(`SELECT key, value FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			logging.LogError("Failed to scan kv row: %v", err)
			continue
		}
		out[key] = value
	}
	return out, rows.Err()
}

// Update reads keys, applies fn and writes the result in one transaction
func (s *SQLiteKV) Update(keys []string, fn func(current map[string]string) (map[string]string, error)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	current := make(map[string]string, len(keys))
	for _, key := range keys {
		var value string
		err := tx.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read key %s: %w", key, err)
		}
		current[key] = value
	}

	changes, err := fn(current)
	if err != nil {
		return err
	}

	changed := make([]string, 0, len(changes))
	for key := range changes {
		changed = append(changed, key)
	}
	sort.Strings(changed)

	for _, key := range changed {
		value := changes[key]
		if value == "" {
			if _, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
				return fmt.Errorf("failed to delete key %s: %w", key, err)
			}
			continue
		}
		if _, err := tx.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return fmt.Errorf("failed to write key %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logging.LogDebug("Committed kv update: %s", strings.Join(changed, ", "))
	return nil
}
