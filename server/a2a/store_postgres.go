package a2a

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// PostgresTaskStore implements TaskStore on a single Postgres table. The
// task and history are stored as two jsonb columns of one row, so a save is
// atomic across the pair (unlike the file store).
type PostgresTaskStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ TaskStore = (*PostgresTaskStore)(nil)

const createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS a2a_tasks (
	id         TEXT PRIMARY KEY,
	task       JSONB NOT NULL,
	history    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgresTaskStore opens the database and ensures the tasks table exists.
func NewPostgresTaskStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresTaskStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTasksTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure a2a_tasks table: %w", err)
	}
	return &PostgresTaskStore{db: db, logger: logger.Named("pg-task-store")}, nil
}

// Save upserts the task row. Marshalling through JSON gives the same
// deep-copy boundary the other stores provide.
func (s *PostgresTaskStore) Save(ctx context.Context, data *TaskAndHistory) error {
	taskBytes, err := json.Marshal(data.Task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", data.Task.ID, err)
	}
	history := data.History
	if history == nil {
		history = []a2aSchema.Message{}
	}
	historyBytes, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history for task %s: %w", data.Task.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO a2a_tasks (id, task, history, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET task = EXCLUDED.task, history = EXCLUDED.history, updated_at = now()`,
		data.Task.ID, taskBytes, historyBytes)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", data.Task.ID, err)
	}
	return nil
}

// Load reads the task row back.
func (s *PostgresTaskStore) Load(ctx context.Context, taskID string) (*TaskAndHistory, error) {
	var taskBytes, historyBytes []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT task, history FROM a2a_tasks WHERE id = $1`, taskID).
		Scan(&taskBytes, &historyBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, a2aSchema.NewTaskNotFoundError(taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	var task a2aSchema.Task
	if err := json.Unmarshal(taskBytes, &task); err != nil {
		return nil, fmt.Errorf("failed to parse stored task %s: %w", taskID, err)
	}
	history := []a2aSchema.Message{}
	if err := json.Unmarshal(historyBytes, &history); err != nil {
		s.logger.Warn("Malformed stored history, starting with empty history",
			zap.String("taskID", taskID), zap.Error(err))
		history = []a2aSchema.Message{}
	}
	return &TaskAndHistory{Task: &task, History: history}, nil
}

// Close releases the database handle.
func (s *PostgresTaskStore) Close() error {
	return s.db.Close()
}
