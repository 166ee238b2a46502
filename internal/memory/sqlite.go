package memory

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/autopilot/internal/filelock"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is a Store backed by a SQLite database. A cross-process
// advisory lock next to the database file keeps concurrent agent processes
// from sharing one memory database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	lock   *filelock.Lock
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// initializes the schema. Returns an error if another process already holds
// the database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	var lock *filelock.Lock

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}

		lock = filelock.New(dbPath + ".lock")
		acquired, err := lock.TryAcquire()
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, fmt.Errorf("memory database %s is in use by another process", dbPath)
		}
	}

	store, err := openAndInitStore(dbPath)
	if err != nil {
		if lock != nil {
			lock.Release()
		}
		return nil, err
	}
	store.lock = lock
	return store, nil
}

// openAndInitStore opens the database connection and initializes schema.
func openAndInitStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Configure SQLite for concurrent access with retry logic.
	// Set busy_timeout FIRST so subsequent operations wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000", // 64MB cache
	}

	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on
// lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}

		// Only retry on "database is locked" errors
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}

		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database and releases the cross-process lock.
func (s *SQLiteStore) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	if s.lock != nil {
		if lerr := s.lock.Release(); lerr != nil && err == nil {
			err = lerr
		}
		s.lock = nil
	}
	return err
}

// Store persists an entry.
func (s *SQLiteStore) Store(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	metadataJSON := "{}"
	if len(entry.Metadata) > 0 {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	query := `INSERT INTO memories (id, type, content, metadata, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Type,
		entry.Content,
		metadataJSON,
		entry.Importance,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// Query returns entries whose content matches any query keyword, ranked by
// importance then recency.
func (s *SQLiteStore) Query(ctx context.Context, query string, limit int) ([]*Entry, error) {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return s.Recent(ctx, limit)
	}

	conditions := make([]string, len(tokens))
	args := make([]interface{}, 0, len(tokens)+1)
	for i, tok := range tokens {
		conditions[i] = "lower(content) LIKE ?"
		args = append(args, "%"+tok+"%")
	}

	stmt := fmt.Sprintf(`SELECT id, type, content, metadata, importance, created_at
		FROM memories WHERE %s
		ORDER BY importance DESC, created_at DESC`, strings.Join(conditions, " OR "))
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}

	return s.queryEntries(ctx, stmt, args...)
}

// ByType returns the most recent entries of one type.
func (s *SQLiteStore) ByType(ctx context.Context, entryType string, limit int) ([]*Entry, error) {
	stmt := `SELECT id, type, content, metadata, importance, created_at
		FROM memories WHERE type = ? ORDER BY created_at DESC`
	args := []interface{}{entryType}
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryEntries(ctx, stmt, args...)
}

// Recent returns the most recent entries of any type.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	stmt := `SELECT id, type, content, metadata, importance, created_at
		FROM memories ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryEntries(ctx, stmt, args...)
}

// Count returns the number of stored entries per type.
func (s *SQLiteStore) Count(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM memories GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var entryType string
		var n int
		if err := rows.Scan(&entryType, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[entryType] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) queryEntries(ctx context.Context, stmt string, args ...interface{}) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var metadataJSON string
		if err := rows.Scan(&e.ID, &e.Type, &e.Content, &metadataJSON, &e.Importance, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		if metadataJSON != "" && metadataJSON != "{}" {
			if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %s: %w", e.ID, err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
