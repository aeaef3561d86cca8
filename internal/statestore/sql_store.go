package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/archonops/supervisor/internal/model"
)

// SQLStore backs the state namespace with a single-row SQL table holding
// the JSON snapshot, dialect-normalized the way the teacher's
// v2/session/store.go and v2/task/store.go normalize "sqlite3" to
// "sqlite" and branch table-creation SQL per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect string
	key     string
}

const createStateTableSQL = `
CREATE TABLE IF NOT EXISTS supervisor_state (
    state_key VARCHAR(255) PRIMARY KEY,
    state_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

// NewSQLStore opens the state table for a given dialect ("postgres",
// "mysql", "sqlite"/"sqlite3") and stateKey, creating the table if absent.
func NewSQLStore(db *sql.DB, dialect, stateKey string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sql store: db connection is required")
	}
	normalized := dialect
	if dialect == "sqlite3" {
		normalized = "sqlite"
	}
	switch normalized {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("sql store: unsupported dialect %q", dialect)
	}

	s := &SQLStore{db: db, dialect: normalized, key: stateKey}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createStateTableSQL); err != nil {
		return nil, fmt.Errorf("sql store: create table: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Load(ctx context.Context) (*model.SupervisorState, error) {
	row := s.db.QueryRowContext(ctx, s.selectSQL(), s.key)
	var stateJSON string
	var updatedAt time.Time
	if err := row.Scan(&stateJSON, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sql store: load: %w", err)
	}
	return unmarshalState([]byte(stateJSON))
}

func (s *SQLStore) Save(ctx context.Context, state *model.SupervisorState) error {
	b, err := marshalState(state)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.upsertSQL(), s.key, string(b), time.Now().UTC()); err != nil {
		return fmt.Errorf("sql store: save: %w", err)
	}
	return nil
}

func (s *SQLStore) Exists(ctx context.Context) (bool, error) {
	var count int
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM supervisor_state WHERE state_key = "+s.placeholder(1), s.key)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("sql store: exists: %w", err)
	}
	return count > 0, nil
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) selectSQL() string {
	return "SELECT state_json, updated_at FROM supervisor_state WHERE state_key = " + s.placeholder(1)
}

// upsertSQL returns a dialect-specific UPSERT, matching the teacher's
// per-dialect branching for schema-affecting SQL.
func (s *SQLStore) upsertSQL() string {
	switch s.dialect {
	case "postgres":
		return `INSERT INTO supervisor_state (state_key, state_json, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (state_key) DO UPDATE SET state_json = EXCLUDED.state_json, updated_at = EXCLUDED.updated_at`
	case "mysql":
		return `INSERT INTO supervisor_state (state_key, state_json, updated_at) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE state_json = VALUES(state_json), updated_at = VALUES(updated_at)`
	default: // sqlite
		return `INSERT INTO supervisor_state (state_key, state_json, updated_at) VALUES (?, ?, ?)
ON CONFLICT (state_key) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`
	}
}
