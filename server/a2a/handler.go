package a2a

import (
	"context"
	"sync"

	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// YieldUpdate is one element produced by a task handler: either a status
// update or an artifact update. Exactly one of the fields must be set; the
// engine drops updates that set both or neither.
type YieldUpdate struct {
	Status   *a2aSchema.TaskStatus
	Artifact *a2aSchema.Artifact
}

// StatusUpdate builds a status yield with the given state and optional
// agent message text.
func StatusUpdate(state a2aSchema.TaskState, messageText string) YieldUpdate {
	status := &a2aSchema.TaskStatus{State: state}
	if messageText != "" {
		status.Message = a2aSchema.AgentTextMessage(messageText)
	}
	return YieldUpdate{Status: status}
}

// ArtifactUpdate builds an artifact yield.
func ArtifactUpdate(artifact a2aSchema.Artifact) YieldUpdate {
	return YieldUpdate{Artifact: &artifact}
}

// TaskHandler is the agent logic driven by the engine. It receives the task
// context and a channel to yield updates through, and returns once the run
// is finished. A non-nil error marks the task failed. The handler should
// stop early when ctx is done or tc.IsCancelled() reports true; cancellation
// is cooperative and never preemptive.
type TaskHandler func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error

// TaskContext is the view of a task handed to a handler for one run.
type TaskContext struct {
	// UserMessage is the client message that triggered this run.
	UserMessage a2aSchema.Message

	mu      sync.RWMutex
	task    *a2aSchema.Task
	history []a2aSchema.Message

	isCancelled func() bool
}

// Task returns a snapshot of the task as of the last merged update. The
// returned value is shared with the engine and must not be mutated.
func (tc *TaskContext) Task() *a2aSchema.Task {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.task
}

// History returns the message history as of the last merged update.
func (tc *TaskContext) History() []a2aSchema.Message {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.history
}

// IsCancelled reports whether a cancel request for this task is pending.
// Handlers poll this between units of work.
func (tc *TaskContext) IsCancelled() bool {
	if tc.isCancelled == nil {
		return false
	}
	return tc.isCancelled()
}

// refresh installs the latest persisted snapshot so the handler observes
// merged state on its next read.
func (tc *TaskContext) refresh(current *TaskAndHistory) {
	tc.mu.Lock()
	tc.task = current.Task
	tc.history = current.History
	tc.mu.Unlock()
}
