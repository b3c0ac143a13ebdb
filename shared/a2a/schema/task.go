package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskState enumerates the lifecycle states of an A2A task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateUnknown       TaskState = "unknown"
)

// Terminal reports whether the state ends a task run for good.
// input-required is deliberately not terminal: it closes a stream but a
// later client message reopens the task.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the enumerated task states.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateUnknown:
		return true
	default:
		return false
	}
}

// timestampLayout is ISO-8601 UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp marshals as an ISO-8601 UTC string with millisecond precision.
type Timestamp time.Time

// Now returns the current time as a Timestamp, truncated to milliseconds.
func Now() Timestamp {
	return Timestamp(time.Now().UTC().Truncate(time.Millisecond))
}

// Time returns the underlying time value.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(timestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	// Accept any RFC3339 variant on input; emit the canonical layout.
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	*t = Timestamp(parsed.UTC())
	return nil
}

// TaskStatus describes the current state of a task, an optional trailing
// agent message, and the moment the status was recorded.
type TaskStatus struct {
	State TaskState `json:"state"`
	// Optional message from the agent accompanying this status.
	Message *Message `json:"message,omitempty"`
	// Refreshed on every status or artifact merge.
	Timestamp Timestamp `json:"timestamp"`
}

// Task is the unit of work tracked by the server. Message history is kept
// alongside the task by the store, not inside the task object itself, so
// wire responses never leak history unless a method chooses to include it.
type Task struct {
	// Caller-chosen opaque identifier. (Required, non-empty)
	ID string `json:"id"`
	// Optional identifier grouping related tasks.
	SessionID *string `json:"sessionId,omitempty"`
	// Current status of the task. (Required)
	Status TaskStatus `json:"status"`
	// Artifacts produced so far, ordered by index when indices are present.
	Artifacts []Artifact `json:"artifacts,omitempty"`
	// Free-form metadata supplied by the client.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
