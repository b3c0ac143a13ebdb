package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// DefaultTaskStoreDir is the base directory used by NewFileTaskStore when
// none is configured: a hidden sub-directory of the working directory.
const DefaultTaskStoreDir = ".a2a-tasks"

// FileTaskStore implements TaskStore with one JSON file pair per task:
// <id>.json holds the task, <id>.history.json holds the message history
// wrapped as {"messageHistory": [...]}. The two files are written
// independently, so a crash between the writes may leave the history one
// save behind the task; loads tolerate that.
type FileTaskStore struct {
	baseDir string
	logger  *zap.Logger
}

var _ TaskStore = (*FileTaskStore)(nil)

// historyFile is the wrapper layout of the <id>.history.json file.
type historyFile struct {
	MessageHistory []a2aSchema.Message `json:"messageHistory"`
}

// NewFileTaskStore creates a file-backed store rooted at baseDir. An empty
// baseDir selects DefaultTaskStoreDir. The directory is created lazily on
// first save.
func NewFileTaskStore(baseDir string, logger *zap.Logger) *FileTaskStore {
	if baseDir == "" {
		baseDir = DefaultTaskStoreDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileTaskStore{
		baseDir: baseDir,
		logger:  logger.Named("file-task-store"),
	}
}

// safeTaskID validates that the id cannot escape the base directory.
// Ids containing path separators or parent references are rejected.
func safeTaskID(taskID string) (string, error) {
	if taskID == "" {
		return "", a2aSchema.NewInvalidParamsError("task id must not be empty")
	}
	if strings.ContainsAny(taskID, `/\`) || strings.Contains(taskID, "..") {
		return "", a2aSchema.NewInvalidParamsError(
			fmt.Sprintf("invalid task id %q: path separators and parent references are not allowed", taskID)).WithTask(taskID)
	}
	return taskID, nil
}

func (s *FileTaskStore) taskPath(safeID string) string {
	return filepath.Join(s.baseDir, safeID+".json")
}

func (s *FileTaskStore) historyPath(safeID string) string {
	return filepath.Join(s.baseDir, safeID+".history.json")
}

// Save writes both files, creating the base directory if absent.
func (s *FileTaskStore) Save(ctx context.Context, data *TaskAndHistory) error {
	safeID, err := safeTaskID(data.Task.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create task store directory %s: %w", s.baseDir, err)
	}

	taskBytes, err := json.MarshalIndent(data.Task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", safeID, err)
	}
	history := data.History
	if history == nil {
		history = []a2aSchema.Message{}
	}
	historyBytes, err := json.MarshalIndent(historyFile{MessageHistory: history}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history for task %s: %w", safeID, err)
	}

	if err := os.WriteFile(s.taskPath(safeID), taskBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write task file for %s: %w", safeID, err)
	}
	if err := os.WriteFile(s.historyPath(safeID), historyBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write history file for %s: %w", safeID, err)
	}
	return nil
}

// Load reads the file pair back. A missing task file is TaskNotFound. A
// missing or unreadable history file degrades to an empty history with a
// warning; it never fails the load.
func (s *FileTaskStore) Load(ctx context.Context, taskID string) (*TaskAndHistory, error) {
	safeID, err := safeTaskID(taskID)
	if err != nil {
		return nil, err
	}

	taskBytes, err := os.ReadFile(s.taskPath(safeID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, a2aSchema.NewTaskNotFoundError(taskID)
		}
		return nil, fmt.Errorf("failed to read task file for %s: %w", safeID, err)
	}
	var task a2aSchema.Task
	if err := json.Unmarshal(taskBytes, &task); err != nil {
		return nil, fmt.Errorf("failed to parse task file for %s: %w", safeID, err)
	}

	history := []a2aSchema.Message{}
	historyBytes, err := os.ReadFile(s.historyPath(safeID))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Warn("History file not found, starting with empty history",
			zap.String("taskID", taskID))
	case err != nil:
		s.logger.Warn("Failed to read history file, starting with empty history",
			zap.String("taskID", taskID), zap.Error(err))
	default:
		var wrapped historyFile
		if err := json.Unmarshal(historyBytes, &wrapped); err != nil || wrapped.MessageHistory == nil {
			s.logger.Warn("Malformed history file, starting with empty history",
				zap.String("taskID", taskID), zap.Error(err))
		} else {
			history = wrapped.MessageHistory
		}
	}

	return &TaskAndHistory{Task: &task, History: history}, nil
}
