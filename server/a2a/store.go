package a2a

import (
	"context"
	"sync"

	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// TaskAndHistory is the atomic unit of persistence: the task object plus the
// ordered message history that belongs to it. Store operations load and save
// the pair together.
type TaskAndHistory struct {
	Task    *a2aSchema.Task
	History []a2aSchema.Message
}

// TaskStore persists TaskAndHistory pairs keyed by task id. Implementations
// are single-process abstractions and must be safe for concurrent use.
// Both operations work on deep copies: a caller can never mutate stored
// state through a returned value, and a caller's later mutations never leak
// into the store.
type TaskStore interface {
	// Load returns the pair for taskID, or an A2AError with code
	// ErrorCodeTaskNotFound when no such task exists.
	Load(ctx context.Context, taskID string) (*TaskAndHistory, error)
	// Save overwrites the stored pair for data.Task.ID.
	Save(ctx context.Context, data *TaskAndHistory) error
}

// InMemoryTaskStore implements TaskStore using an in-memory map.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*TaskAndHistory
}

var _ TaskStore = (*InMemoryTaskStore)(nil)

// NewInMemoryTaskStore creates a new InMemoryTaskStore.
func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]*TaskAndHistory),
	}
}

// Save stores a deep copy of the pair in the map.
func (s *InMemoryTaskStore) Save(ctx context.Context, data *TaskAndHistory) error {
	stored := copyTaskAndHistory(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[stored.Task.ID] = stored
	return nil
}

// Load retrieves a deep copy of the pair from the map.
func (s *InMemoryTaskStore) Load(ctx context.Context, taskID string) (*TaskAndHistory, error) {
	s.mu.RLock()
	data, exists := s.tasks[taskID]
	s.mu.RUnlock()
	if !exists {
		return nil, a2aSchema.NewTaskNotFoundError(taskID)
	}
	return copyTaskAndHistory(data), nil
}
