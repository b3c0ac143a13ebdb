package a2a

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/shared"
	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

func sendParams(taskID, text string) *a2aSchema.TaskSendParams {
	return &a2aSchema.TaskSendParams{
		ID: taskID,
		Message: a2aSchema.Message{
			Role:  "user",
			Parts: []a2aSchema.Part{a2aSchema.TextPart(text)},
		},
	}
}

func textOf(t *testing.T, msg a2aSchema.Message) string {
	t.Helper()
	require.NotEmpty(t, msg.Parts)
	require.NotNil(t, msg.Parts[0].Text)
	return *msg.Parts[0].Text
}

// echo unary: working + completed with agent messages (scenario coverage
// for the plain send path).
func TestSendEchoUnary(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		updates <- StatusUpdate(a2aSchema.TaskStateWorking, "working")
		updates <- StatusUpdate(a2aSchema.TaskStateCompleted, "done")
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	task, err := cap.HandleTaskSend(context.Background(), sendParams("t1", "hi"))
	require.NoError(t, err)

	assert.Equal(t, a2aSchema.TaskStateCompleted, task.Status.State)
	assert.Empty(t, task.Artifacts)

	stored, err := store.Load(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, stored.History, 3)
	assert.Equal(t, "user", stored.History[0].Role)
	assert.Equal(t, "hi", textOf(t, stored.History[0]))
	assert.Equal(t, "working", textOf(t, stored.History[1]))
	assert.Equal(t, "done", textOf(t, stored.History[2]))
}

// artifact append across two yields at the same index.
func TestSendArtifactAppend(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		updates <- StatusUpdate(a2aSchema.TaskStateWorking, "")
		updates <- ArtifactUpdate(a2aSchema.Artifact{
			Name:  ptrTo("out.txt"),
			Index: ptrTo(0),
			Parts: []a2aSchema.Part{a2aSchema.TextPart("A")},
		})
		updates <- ArtifactUpdate(a2aSchema.Artifact{
			Name:      ptrTo("out.txt"),
			Index:     ptrTo(0),
			Append:    ptrTo(true),
			Parts:     []a2aSchema.Part{a2aSchema.TextPart("B")},
			LastChunk: ptrTo(true),
		})
		updates <- StatusUpdate(a2aSchema.TaskStateCompleted, "")
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	task, err := cap.HandleTaskSend(context.Background(), sendParams("t2", "go"))
	require.NoError(t, err)

	require.Len(t, task.Artifacts, 1)
	artifact := task.Artifacts[0]
	assert.Equal(t, "out.txt", *artifact.Name)
	require.Len(t, artifact.Parts, 2)
	assert.Equal(t, "A", *artifact.Parts[0].Text)
	assert.Equal(t, "B", *artifact.Parts[1].Text)
	require.NotNil(t, artifact.LastChunk)
	assert.True(t, *artifact.LastChunk)
}

// handler crash: task persisted as failed, unary call surfaces -32603.
func TestSendHandlerCrash(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		updates <- StatusUpdate(a2aSchema.TaskStateWorking, "")
		return errors.New("boom")
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	_, err := cap.HandleTaskSend(context.Background(), sendParams("t4", "hi"))
	var a2aErr *a2aSchema.A2AError
	require.ErrorAs(t, err, &a2aErr)
	assert.Equal(t, a2aSchema.ErrorCodeInternalError, a2aErr.Code)
	assert.Contains(t, a2aErr.Message, "boom")

	stored, err := store.Load(context.Background(), "t4")
	require.NoError(t, err)
	assert.Equal(t, a2aSchema.TaskStateFailed, stored.Task.Status.State)
	require.NotNil(t, stored.Task.Status.Message)
	assert.Contains(t, textOf(t, *stored.Task.Status.Message), "boom")
}

// A panicking handler is indistinguishable from one returning an error.
func TestSendHandlerPanic(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		panic("kaput")
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	_, err := cap.HandleTaskSend(context.Background(), sendParams("t-panic", "hi"))
	var a2aErr *a2aSchema.A2AError
	require.ErrorAs(t, err, &a2aErr)
	assert.Equal(t, a2aSchema.ErrorCodeInternalError, a2aErr.Code)
	assert.Contains(t, a2aErr.Message, "kaput")

	stored, err := store.Load(context.Background(), "t-panic")
	require.NoError(t, err)
	assert.Equal(t, a2aSchema.TaskStateFailed, stored.Task.Status.State)
}

// terminal reopen: a second send resets completed -> submitted and keeps
// the full history.
func TestSendTerminalReopen(t *testing.T) {
	store := NewInMemoryTaskStore()
	var observedStates []a2aSchema.TaskState
	var mu sync.Mutex
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		mu.Lock()
		observedStates = append(observedStates, tc.Task().Status.State)
		mu.Unlock()
		updates <- StatusUpdate(a2aSchema.TaskStateCompleted, "done")
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	_, err := cap.HandleTaskSend(context.Background(), sendParams("t5", "first"))
	require.NoError(t, err)

	task, err := cap.HandleTaskSend(context.Background(), sendParams("t5", "second"))
	require.NoError(t, err)
	assert.Equal(t, a2aSchema.TaskStateCompleted, task.Status.State)

	mu.Lock()
	require.Len(t, observedStates, 2)
	assert.Equal(t, a2aSchema.TaskStateSubmitted, observedStates[0])
	// The second run starts from the reset state, not the terminal one.
	assert.Equal(t, a2aSchema.TaskStateSubmitted, observedStates[1])
	mu.Unlock()

	stored, err := store.Load(context.Background(), "t5")
	require.NoError(t, err)
	require.Len(t, stored.History, 4)
	assert.Equal(t, "first", textOf(t, stored.History[0]))
	assert.Equal(t, "done", textOf(t, stored.History[1]))
	assert.Equal(t, "second", textOf(t, stored.History[2]))
	assert.Equal(t, "done", textOf(t, stored.History[3]))
}

// input-required ends the run for the unary caller; the next message
// resumes as working.
func TestSendInputRequiredThenResume(t *testing.T) {
	store := NewInMemoryTaskStore()
	var runs int
	var mu sync.Mutex
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		mu.Lock()
		runs++
		run := runs
		mu.Unlock()
		if run == 1 {
			updates <- StatusUpdate(a2aSchema.TaskStateInputRequired, "need the code")
			return nil
		}
		assert.Equal(t, a2aSchema.TaskStateWorking, tc.Task().Status.State)
		updates <- StatusUpdate(a2aSchema.TaskStateCompleted, "thanks")
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	task, err := cap.HandleTaskSend(context.Background(), sendParams("t-input", "start"))
	require.NoError(t, err)
	assert.Equal(t, a2aSchema.TaskStateInputRequired, task.Status.State)

	task, err = cap.HandleTaskSend(context.Background(), sendParams("t-input", "code=123"))
	require.NoError(t, err)
	assert.Equal(t, a2aSchema.TaskStateCompleted, task.Status.State)
}

func TestSendValidation(t *testing.T) {
	cap := NewA2ACapability(zap.NewNop(), NewInMemoryTaskStore(), nil)

	var a2aErr *a2aSchema.A2AError

	_, err := cap.HandleTaskSend(context.Background(), &a2aSchema.TaskSendParams{})
	require.ErrorAs(t, err, &a2aErr)
	assert.Equal(t, a2aSchema.ErrorCodeInvalidParams, a2aErr.Code)

	_, err = cap.HandleTaskSend(context.Background(), &a2aSchema.TaskSendParams{ID: "x"})
	require.ErrorAs(t, err, &a2aErr)
	assert.Equal(t, a2aSchema.ErrorCodeInvalidParams, a2aErr.Code)
}

func TestGetUnknownTask(t *testing.T) {
	cap := NewA2ACapability(zap.NewNop(), NewInMemoryTaskStore(), nil)

	_, err := cap.HandleTaskGet(context.Background(), &a2aSchema.TaskQueryParams{ID: "ghost"})
	var a2aErr *a2aSchema.A2AError
	require.ErrorAs(t, err, &a2aErr)
	assert.Equal(t, a2aSchema.ErrorCodeTaskNotFound, a2aErr.Code)
}

func TestCancelUnknownTask(t *testing.T) {
	cap := NewA2ACapability(zap.NewNop(), NewInMemoryTaskStore(), nil)

	_, err := cap.HandleTaskCancel(context.Background(), &a2aSchema.TaskIdParams{ID: "ghost"})
	var a2aErr *a2aSchema.A2AError
	require.ErrorAs(t, err, &a2aErr)
	assert.Equal(t, a2aSchema.ErrorCodeTaskNotFound, a2aErr.Code)
}

// cancel of a terminal task is a no-op success, not an error.
func TestCancelTerminalTaskIsNoOp(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		updates <- StatusUpdate(a2aSchema.TaskStateCompleted, "done")
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	_, err := cap.HandleTaskSend(context.Background(), sendParams("t-done", "hi"))
	require.NoError(t, err)

	task, err := cap.HandleTaskCancel(context.Background(), &a2aSchema.TaskIdParams{ID: "t-done"})
	require.NoError(t, err)
	assert.Equal(t, a2aSchema.TaskStateCompleted, task.Status.State)
}

func TestCancelIdleTask(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		updates <- StatusUpdate(a2aSchema.TaskStateInputRequired, "waiting")
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	_, err := cap.HandleTaskSend(context.Background(), sendParams("t-idle", "hi"))
	require.NoError(t, err)

	task, err := cap.HandleTaskCancel(context.Background(), &a2aSchema.TaskIdParams{ID: "t-idle"})
	require.NoError(t, err)
	assert.Equal(t, a2aSchema.TaskStateCanceled, task.Status.State)
	require.NotNil(t, task.Status.Message)
	assert.Contains(t, textOf(t, *task.Status.Message), "cancelled by request")

	// With no running handler the pending-cancel flag is dropped right away.
	assert.False(t, cap.isCancelled("t-idle"))
}

// collectEvents drives a streaming run and returns the emitted events.
func collectEvents(t *testing.T, cap *A2ACapability, params *a2aSchema.TaskSendParams) []shared.A2AStreamEvent {
	t.Helper()
	var events []shared.A2AStreamEvent
	err := cap.HandleTaskSendSubscribe(context.Background(), params, func(ev shared.A2AStreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	return events
}

func assertExactlyOneFinal(t *testing.T, events []shared.A2AStreamEvent) {
	t.Helper()
	require.NotEmpty(t, events)
	finals := 0
	for _, ev := range events {
		if ev.Final {
			finals++
		}
	}
	assert.Equal(t, 1, finals, "exactly one final event expected")
	assert.True(t, events[len(events)-1].Final, "final event must be last")
}

func TestSubscribeStreamsUpdatesInOrder(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		updates <- StatusUpdate(a2aSchema.TaskStateWorking, "working")
		updates <- ArtifactUpdate(a2aSchema.Artifact{
			Name:  ptrTo("out.txt"),
			Parts: []a2aSchema.Part{a2aSchema.TextPart("data")},
		})
		updates <- StatusUpdate(a2aSchema.TaskStateCompleted, "done")
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	events := collectEvents(t, cap, sendParams("t-sse", "hi"))

	require.Len(t, events, 3)
	require.NotNil(t, events[0].Status)
	assert.Equal(t, a2aSchema.TaskStateWorking, events[0].Status.Status.State)
	assert.False(t, events[0].Final)

	require.NotNil(t, events[1].Artifact)
	assert.False(t, events[1].Final)

	require.NotNil(t, events[2].Status)
	assert.Equal(t, a2aSchema.TaskStateCompleted, events[2].Status.Status.State)
	assertExactlyOneFinal(t, events)
}

// Yields after a terminal status are merged nowhere and never emitted.
func TestSubscribeStopsAtTerminal(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		updates <- StatusUpdate(a2aSchema.TaskStateCompleted, "done")
		updates <- StatusUpdate(a2aSchema.TaskStateWorking, "zombie")
		updates <- ArtifactUpdate(a2aSchema.Artifact{
			Name:  ptrTo("late.txt"),
			Parts: []a2aSchema.Part{a2aSchema.TextPart("late")},
		})
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	events := collectEvents(t, cap, sendParams("t-stop", "hi"))

	require.Len(t, events, 1)
	assertExactlyOneFinal(t, events)

	stored, err := store.Load(context.Background(), "t-stop")
	require.NoError(t, err)
	assert.Equal(t, a2aSchema.TaskStateCompleted, stored.Task.Status.State)
	assert.Empty(t, stored.Task.Artifacts)
}

// Handler returning without a terminal yield forces a completed final event.
func TestSubscribeForcesCompleted(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		updates <- StatusUpdate(a2aSchema.TaskStateWorking, "almost")
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	events := collectEvents(t, cap, sendParams("t-force", "hi"))

	require.Len(t, events, 2)
	assert.Equal(t, a2aSchema.TaskStateCompleted, events[1].Status.Status.State)
	assertExactlyOneFinal(t, events)
}

// input-required closes the stream with a final event.
func TestSubscribeInputRequiredIsFinal(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		updates <- StatusUpdate(a2aSchema.TaskStateInputRequired, "more please")
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	events := collectEvents(t, cap, sendParams("t-more", "hi"))

	require.Len(t, events, 1)
	assert.Equal(t, a2aSchema.TaskStateInputRequired, events[0].Status.Status.State)
	assertExactlyOneFinal(t, events)
}

// Handler failure surfaces as a final failed event, not a transport error.
func TestSubscribeHandlerFailure(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		updates <- StatusUpdate(a2aSchema.TaskStateWorking, "")
		return errors.New("boom")
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	events := collectEvents(t, cap, sendParams("t-sse-fail", "hi"))

	require.Len(t, events, 2)
	final := events[1]
	require.NotNil(t, final.Status)
	assert.Equal(t, a2aSchema.TaskStateFailed, final.Status.Status.State)
	assert.Contains(t, textOf(t, *final.Status.Status.Message), "boom")
	assertExactlyOneFinal(t, events)
}

// cancellation observed: a concurrent cancel flips the polling predicate,
// the handler yields canceled, and the stream ends with a canceled final.
func TestSubscribeCancellationObserved(t *testing.T) {
	store := NewInMemoryTaskStore()

	started := make(chan struct{})
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		updates <- StatusUpdate(a2aSchema.TaskStateWorking, "spinning")
		close(started)
		for i := 0; i < 500; i++ {
			if tc.IsCancelled() {
				updates <- StatusUpdate(a2aSchema.TaskStateCanceled, "stopped")
				return nil
			}
			time.Sleep(5 * time.Millisecond)
		}
		updates <- StatusUpdate(a2aSchema.TaskStateCompleted, "never cancelled")
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	var mu sync.Mutex
	var events []shared.A2AStreamEvent
	done := make(chan error, 1)
	go func() {
		done <- cap.HandleTaskSendSubscribe(context.Background(), sendParams("t3", "spin"), func(ev shared.A2AStreamEvent) error {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
			return nil
		})
	}()

	<-started
	task, err := cap.HandleTaskCancel(context.Background(), &a2aSchema.TaskIdParams{ID: "t3"})
	require.NoError(t, err)
	assert.Equal(t, a2aSchema.TaskStateCanceled, task.Status.State)

	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, a2aSchema.TaskStateWorking, events[0].Status.Status.State)
	last := events[len(events)-1]
	require.NotNil(t, last.Status)
	assert.Equal(t, a2aSchema.TaskStateCanceled, last.Status.Status.State)
	assertExactlyOneFinal(t, events)

	// Termination is observed shortly after the stream ends, which clears
	// the pending-cancel flag.
	assert.Eventually(t, func() bool { return !cap.isCancelled("t3") },
		2*time.Second, 10*time.Millisecond)
}

// Status timestamps never go backwards across the yields of one run.
func TestStatusTimestampMonotonic(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		for i := 0; i < 5; i++ {
			updates <- StatusUpdate(a2aSchema.TaskStateWorking, "tick")
		}
		updates <- StatusUpdate(a2aSchema.TaskStateCompleted, "")
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	var timestamps []time.Time
	err := cap.HandleTaskSendSubscribe(context.Background(), sendParams("t-time", "hi"), func(ev shared.A2AStreamEvent) error {
		if ev.Status != nil {
			timestamps = append(timestamps, ev.Status.Status.Timestamp.Time())
		}
		return nil
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(timestamps), 2)
	for i := 1; i < len(timestamps); i++ {
		assert.False(t, timestamps[i].Before(timestamps[i-1]),
			"timestamp %d went backwards", i)
	}
}

// The session id is generated when the client omits one.
func TestSendGeneratesSessionID(t *testing.T) {
	store := NewInMemoryTaskStore()
	handler := func(ctx context.Context, tc *TaskContext, updates chan<- YieldUpdate) error {
		return nil
	}
	cap := NewA2ACapability(zap.NewNop(), store, handler)

	task, err := cap.HandleTaskSend(context.Background(), sendParams("t-sess", "hi"))
	require.NoError(t, err)
	require.NotNil(t, task.SessionID)
	assert.NotEmpty(t, *task.SessionID)
}
