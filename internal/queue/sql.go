package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/archonops/supervisor/internal/model"
)

// SQLQueue backs the queue namespace with an append-only, auto-incrementing
// table: Enqueue inserts a row, Dequeue transactionally selects and deletes
// the lowest id (FIFO), grounded on the same dialect-normalization pattern
// as statestore.SQLStore.
type SQLQueue struct {
	db      *sql.DB
	dialect string
}

const createQueueTableSQL = `
CREATE TABLE IF NOT EXISTS task_queue (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    task_json TEXT NOT NULL,
    enqueued_at TIMESTAMP NOT NULL
)`

const createQueueTablePostgresSQL = `
CREATE TABLE IF NOT EXISTS task_queue (
    seq BIGSERIAL PRIMARY KEY,
    task_json TEXT NOT NULL,
    enqueued_at TIMESTAMP NOT NULL
)`

const createQueueTableMySQLSQL = `
CREATE TABLE IF NOT EXISTS task_queue (
    seq BIGINT AUTO_INCREMENT PRIMARY KEY,
    task_json TEXT NOT NULL,
    enqueued_at TIMESTAMP NOT NULL
)`

// NewSQLQueue opens (creating if absent) the queue table for a dialect.
func NewSQLQueue(db *sql.DB, dialect string) (*SQLQueue, error) {
	normalized := dialect
	if dialect == "sqlite3" {
		normalized = "sqlite"
	}
	ddl := createQueueTableSQL
	switch normalized {
	case "postgres":
		ddl = createQueueTablePostgresSQL
	case "mysql":
		ddl = createQueueTableMySQLSQL
	case "sqlite":
	default:
		return nil, fmt.Errorf("sql queue: unsupported dialect %q", dialect)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("sql queue: create table: %w", err)
	}
	return &SQLQueue{db: db, dialect: normalized}, nil
}

func (q *SQLQueue) Enqueue(ctx context.Context, t *model.Task) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	placeholder := "?, ?"
	if q.dialect == "postgres" {
		placeholder = "$1, $2"
	}
	_, err = q.db.ExecContext(ctx,
		"INSERT INTO task_queue (task_json, enqueued_at) VALUES ("+placeholder+")",
		string(b), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sql queue: enqueue: %w", err)
	}
	return nil
}

func (q *SQLQueue) Dequeue(ctx context.Context) (*model.Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sql queue: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, "SELECT seq, task_json FROM task_queue ORDER BY seq ASC LIMIT 1")
	var seq int64
	var taskJSON string
	if err := row.Scan(&seq, &taskJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sql queue: select head: %w", err)
	}

	placeholder := "?"
	if q.dialect == "postgres" {
		placeholder = "$1"
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM task_queue WHERE seq = "+placeholder, seq); err != nil {
		return nil, fmt.Errorf("sql queue: delete head: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sql queue: commit: %w", err)
	}

	var t model.Task
	if err := json.Unmarshal([]byte(taskJSON), &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &t, nil
}

func (q *SQLQueue) Len(ctx context.Context) (int, error) {
	var n int
	row := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM task_queue")
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("sql queue: len: %w", err)
	}
	return n, nil
}
