// Package store implements the durable task queue backing the worker loop.
//
// The store is the only synchronization point between producer processes and
// the worker: every cross-process handoff happens through a status-column
// compare-and-swap, never through application-level locking.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"tavern/internal/logging"
	"tavern/internal/types"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the status permits no further transition.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one durable unit of generation work.
type Task struct {
	ID           string                 `json:"id"`
	Avatar       string                 `json:"avatar"`
	Model        string                 `json:"model"`
	SystemPrompt string                 `json:"systemPrompt"`
	Messages     []types.Message        `json:"messages"`
	Tools        []types.ToolDefinition `json:"tools,omitempty"`
	Status       Status                 `json:"status"`
	Response     string                 `json:"response,omitempty"`
	Error        string                 `json:"error,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	LastUpdated  time.Time              `json:"lastUpdated"`

	// ClaimedAt is set when a worker claims the task. Operator visibility
	// only; nothing reclaims a stuck task based on it.
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`
}

// claimAttempts bounds how many candidate rows one ClaimNext call will
// contend for before reporting an empty queue.
const claimAttempts = 8

// TaskStore persists tasks in SQLite.
type TaskStore struct {
	db     *sql.DB
	dbPath string
}

// NewTaskStore opens (or creates) the task database at path.
func NewTaskStore(path string) (*TaskStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewTaskStore")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set synchronous=NORMAL: %v", err)
	}

	s := &TaskStore{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("task store ready at %s", path)
	return s, nil
}

// Close closes the underlying database.
func (s *TaskStore) Close() error {
	return s.db.Close()
}

// Create inserts a new pending task and returns its ID.
// Fails only on storage unavailability; the caller (producer facade) owns
// retry policy.
func (s *TaskStore) Create(ctx context.Context, avatar, model, systemPrompt string, messages []types.Message, tools []types.ToolDefinition) (string, error) {
	id := "task_" + uuid.NewString()

	msgJSON, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("marshal messages: %w", err)
	}
	var toolsJSON sql.NullString
	if len(tools) > 0 {
		b, err := json.Marshal(tools)
		if err != nil {
			return "", fmt.Errorf("marshal tools: %w", err)
		}
		toolsJSON = sql.NullString{String: string(b), Valid: true}
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, avatar, model, system_prompt, messages, tools, status, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, id, avatar, model, systemPrompt, string(msgJSON), toolsJSON, StatusPending, now, now)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}

	logging.Queue("created task %s (avatar=%s, model=%s, messages=%d)", id, avatar, model, len(messages))
	return id, nil
}

// ClaimNext atomically transitions one pending task to processing and
// returns it. Returns (nil, nil) when no task is pending.
//
// The transition itself is a single conditional UPDATE guarded on the
// current status, so under concurrent callers at most one observes a given
// task move from pending to processing. Losing the race just means trying
// the next candidate.
func (s *TaskStore) ClaimNext(ctx context.Context) (*Task, error) {
	now := time.Now().UTC()

	for attempt := 0; attempt < claimAttempts; attempt++ {
		var id string
		err := s.db.QueryRowContext(ctx, `
			SELECT id FROM tasks
			WHERE status = ?
			ORDER BY created_at ASC, id ASC
			LIMIT 1;
		`, StatusPending).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select pending task: %w", err)
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE tasks
			SET status = ?, claimed_at = ?, last_updated = ?
			WHERE id = ? AND status = ?;
		`, StatusProcessing, now, now, id, StatusPending)
		if err != nil {
			return nil, fmt.Errorf("claim task %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected != 1 {
			// Another worker won this row. Next candidate.
			logging.QueueDebug("lost claim race for %s, retrying", id)
			continue
		}

		logging.Queue("claimed task %s", id)
		return s.Get(ctx, id)
	}
	return nil, nil
}

// Complete writes the terminal completed status with the response.
// Idempotent when re-called with the same response; a conflicting payload
// on an already-terminal task is rejected with ErrTaskTerminal.
func (s *TaskStore) Complete(ctx context.Context, id, response string) error {
	return s.finish(ctx, id, StatusCompleted, response, "")
}

// Fail writes the terminal failed status with the error message.
func (s *TaskStore) Fail(ctx context.Context, id, errMsg string) error {
	return s.finish(ctx, id, StatusFailed, "", errMsg)
}

func (s *TaskStore) finish(ctx context.Context, id string, to Status, response, errMsg string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, response = ?, error = ?, last_updated = ?
		WHERE id = ? AND status = ?;
	`, to, response, errMsg, now, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("finish task %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish rows affected: %w", err)
	}
	if affected == 1 {
		logging.Queue("task %s -> %s", id, to)
		return nil
	}

	// Nothing transitioned. Distinguish missing, unclaimed, repeat, and
	// conflicting-terminal calls.
	task, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if task.Status == to && task.Response == response && task.Error == errMsg {
		return nil // Same terminal write twice; harmless.
	}
	if task.Status.IsTerminal() {
		logging.Get(logging.CategoryQueue).Warn(
			"rejected conflicting terminal write for %s (status=%s)", id, task.Status)
		return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, id, task.Status)
	}
	return fmt.Errorf("%w: %s is %s", ErrTaskNotProcessing, id, task.Status)
}

// Get returns the task with the given ID.
func (s *TaskStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, avatar, model, system_prompt, messages, tools, status, response, error,
		       created_at, last_updated, claimed_at
		FROM tasks WHERE id = ?;
	`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, err
}

// List returns the most recently created tasks, newest first.
func (s *TaskStore) List(ctx context.Context, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, avatar, model, system_prompt, messages, tools, status, response, error,
		       created_at, last_updated, claimed_at
		FROM tasks ORDER BY created_at DESC, id DESC LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task      Task
		msgJSON   string
		toolsJSON sql.NullString
		response  sql.NullString
		errMsg    sql.NullString
		claimedAt sql.NullTime
	)
	err := row.Scan(&task.ID, &task.Avatar, &task.Model, &task.SystemPrompt, &msgJSON, &toolsJSON,
		&task.Status, &response, &errMsg, &task.CreatedAt, &task.LastUpdated, &claimedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(msgJSON), &task.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages for %s: %w", task.ID, err)
	}
	if toolsJSON.Valid && toolsJSON.String != "" {
		if err := json.Unmarshal([]byte(toolsJSON.String), &task.Tools); err != nil {
			return nil, fmt.Errorf("unmarshal tools for %s: %w", task.ID, err)
		}
	}
	task.Response = response.String
	task.Error = errMsg.String
	if claimedAt.Valid {
		t := claimedAt.Time
		task.ClaimedAt = &t
	}
	return &task, nil
}
