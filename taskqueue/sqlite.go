package taskqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const taskSchema = `
CREATE TABLE IF NOT EXISTS tasks (
    task_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    result JSON,
    error TEXT
);
CREATE INDEX IF NOT EXISTS idx_tasks_status_updated ON tasks(status, updated_at);
`

// SQLiteStore persists task records in a SQLite database, so task status
// survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the tasks table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening task database: %w", err)
	}
	if _, err := db.Exec(taskSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing task schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *Record) error {
	result, err := marshalResult(rec.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, status, created_at, updated_at, result, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.Status, rec.CreatedAt, rec.UpdatedAt, result, rec.Error)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", rec.TaskID, err)
	}
	return nil
}

func (s *SQLiteStore) Find(ctx context.Context, id string) (*Record, error) {
	var rec Record
	var result sql.NullString
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT task_id, status, created_at, updated_at, result, error
		 FROM tasks WHERE task_id = ?`, id).
		Scan(&rec.TaskID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &result, &errMsg)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("finding task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding task %s: %w", id, err)
	}

	if result.Valid && result.String != "" {
		var v any
		if err := json.Unmarshal([]byte(result.String), &v); err == nil {
			rec.Result = v
		}
	}
	if errMsg.Valid {
		rec.Error = errMsg.String
	}
	return &rec, nil
}

func (s *SQLiteStore) Update(ctx context.Context, rec *Record) error {
	result, err := marshalResult(rec.Result)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ?, result = ?, error = ?
		 WHERE task_id = ?`,
		rec.Status, rec.UpdatedAt, result, rec.Error, rec.TaskID)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", rec.TaskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating task %s: %w", rec.TaskID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE status IN (?, ?, ?) AND updated_at < ?`,
		StatusCompleted, StatusError, StatusCancelled, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalResult(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding task result: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
