package schema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTaskUnmarshal(t *testing.T) {
	t.Run("Unmarshal JSON from request", func(t *testing.T) {
		jsonData := `{
			"id": "1",
			"sessionId": "2",
			"status": {
				"state": "failed",
				"timestamp": "2025-04-17T10:34:18.117Z",
				"message": {
					"role": "agent",
					"parts": [{"text": "No type"}]
				}
			},
			"artifacts": []
		}`

		var task Task
		if err := json.Unmarshal([]byte(jsonData), &task); err != nil {
			t.Fatalf("Failed to unmarshal Task JSON: %v", err)
		}

		if task.ID != "1" {
			t.Errorf("Expected task ID '1', got '%s'", task.ID)
		}
		if task.Status.State != TaskStateFailed {
			t.Errorf("Expected status 'failed', got '%s'", task.Status.State)
		}
		if task.Status.Message == nil || task.Status.Message.Parts[0].Text == nil {
			t.Fatal("Expected status message with a text part")
		}
	})
}

func TestTimestampFormat(t *testing.T) {
	ts := Timestamp(time.Date(2025, 4, 17, 10, 34, 18, 117_000_000, time.UTC))
	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("Failed to marshal timestamp: %v", err)
	}
	if string(data) != `"2025-04-17T10:34:18.117Z"` {
		t.Errorf("Unexpected timestamp encoding: %s", data)
	}

	var decoded Timestamp
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal timestamp: %v", err)
	}
	if !decoded.Time().Equal(ts.Time()) {
		t.Errorf("Round trip changed timestamp: %v != %v", decoded.Time(), ts.Time())
	}
}

func TestTimestampRejectsGarbage(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"not-a-time"`), &ts); err == nil {
		t.Error("Expected error for invalid timestamp")
	}
}

func TestTaskStateTerminal(t *testing.T) {
	terminal := []TaskState{TaskStateCompleted, TaskStateCanceled, TaskStateFailed}
	for _, state := range terminal {
		if !state.Terminal() {
			t.Errorf("Expected %s to be terminal", state)
		}
	}
	open := []TaskState{TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired, TaskStateUnknown}
	for _, state := range open {
		if state.Terminal() {
			t.Errorf("Expected %s to not be terminal", state)
		}
	}
}

func TestA2AErrorTagging(t *testing.T) {
	err := NewInvalidParamsError("bad input").WithTask("t-9")
	if err.Code != ErrorCodeInvalidParams {
		t.Errorf("Expected code %d, got %d", ErrorCodeInvalidParams, err.Code)
	}
	if !strings.Contains(err.Error(), "t-9") {
		t.Errorf("Expected task id in error string, got %q", err.Error())
	}
	// WithTask must not overwrite an existing task id.
	again := err.WithTask("other")
	if again.TaskID != "t-9" {
		t.Errorf("Expected task id to stay 't-9', got %q", again.TaskID)
	}
}
