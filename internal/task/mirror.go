package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Compile-time checks that SQLiteMirror implements Mirror and History.
var (
	_ Mirror  = (*SQLiteMirror)(nil)
	_ History = (*SQLiteMirror)(nil)
)

// SQLiteMirror is a durable, best-effort copy of task records backed by
// SQLite. It exists for audit and ownership queries that outlive the
// in-memory queue; it is never read on the hot path.
type SQLiteMirror struct {
	db   *sql.DB
	path string
}

const mirrorSchema = `CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	task_type TEXT NOT NULL,
	status TEXT NOT NULL,
	kwargs_json TEXT,
	owner_id TEXT,
	error_message TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// OpenMirror initializes or connects to the mirror database.
func OpenMirror(path string) (*SQLiteMirror, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(mirrorSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tasks table: %w", err)
	}

	return &SQLiteMirror{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (m *SQLiteMirror) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// SaveTask inserts or replaces the durable copy of a task.
func (m *SQLiteMirror) SaveTask(ctx context.Context, t *Task) error {
	if t == nil {
		return errors.New("task is nil")
	}

	kwargsJSON, err := json.Marshal(t.Kwargs)
	if err != nil {
		return fmt.Errorf("marshal kwargs: %w", err)
	}

	_, err = m.db.ExecContext(
		ctx,
		`INSERT INTO tasks (id, task_type, status, kwargs_json, owner_id, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             status = excluded.status,
             kwargs_json = excluded.kwargs_json,
             owner_id = excluded.owner_id,
             error_message = excluded.error_message,
             updated_at = excluded.updated_at`,
		t.ID,
		t.Type,
		string(t.Status),
		string(kwargsJSON),
		nullableString(t.OwnerID),
		nullableString(t.Error),
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
		t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

// FindTask fetches the durable copy of a task by id.
func (m *SQLiteMirror) FindTask(ctx context.Context, taskID string) (*Task, error) {
	row := m.db.QueryRowContext(
		ctx,
		`SELECT id, task_type, status, kwargs_json, owner_id, error_message, created_at, updated_at
         FROM tasks WHERE id = ?`,
		taskID,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// TasksByOwner returns the durable task copies for an owner, newest first.
func (m *SQLiteMirror) TasksByOwner(ctx context.Context, ownerID string) ([]*Task, error) {
	rows, err := m.db.QueryContext(
		ctx,
		`SELECT id, task_type, status, kwargs_json, owner_id, error_message, created_at, updated_at
         FROM tasks WHERE owner_id = ? ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query by owner: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id         string
		taskType   string
		statusStr  string
		kwargsRaw  sql.NullString
		ownerID    sql.NullString
		errMessage sql.NullString
		createdRaw string
		updatedRaw string
	)

	if err := scanner.Scan(&id, &taskType, &statusStr, &kwargsRaw, &ownerID, &errMessage, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	t := &Task{
		ID:      id,
		Type:    taskType,
		Status:  Status(statusStr),
		OwnerID: ownerID.String,
		Error:   errMessage.String,
	}
	if kwargsRaw.Valid && kwargsRaw.String != "" {
		if err := json.Unmarshal([]byte(kwargsRaw.String), &t.Kwargs); err != nil {
			return nil, fmt.Errorf("unmarshal kwargs: %w", err)
		}
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		t.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		t.UpdatedAt = updated
	}
	return t, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
