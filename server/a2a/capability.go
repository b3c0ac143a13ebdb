package a2a

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/shared"
	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// updateBuffer is the capacity of the channel between a handler and the
// engine. The engine consumes one update at a time; the buffer only absorbs
// bursts, it does not change ordering.
const updateBuffer = 16

const cancelledByRequestText = "Task cancelled by request."

// EmitFunc delivers one stream event to the transport during a
// tasks/sendSubscribe run. An error return means the client is gone; the
// engine stops emitting but still finalizes task state.
type EmitFunc func(event shared.A2AStreamEvent) error

// A2ACapability is the task lifecycle engine. It loads or creates task
// state, drives the agent handler as a producer of incremental updates,
// merges and persists every update, and exposes the four task operations
// to the transport layer.
type A2ACapability struct {
	logger  *zap.Logger
	store   TaskStore
	handler TaskHandler

	// Pending cancel requests, keyed by task id. An id stays in the set
	// from the cancel request until the engine observes termination of
	// the task's running handler (or immediately, when none is running);
	// handlers observe it through their polling predicate.
	cancelMu      sync.Mutex
	cancellations map[string]struct{}
	activeRuns    map[string]int

	// Per-task save serialization, so a cancel's save and a handler
	// loop's save never interleave mid-write.
	locksMu   sync.Mutex
	taskLocks map[string]*sync.Mutex
}

// NewA2ACapability creates the engine around a store and an agent handler.
func NewA2ACapability(logger *zap.Logger, store TaskStore, handler TaskHandler) *A2ACapability {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &A2ACapability{
		logger:        logger.Named("a2a-capability"),
		store:         store,
		handler:       handler,
		cancellations: make(map[string]struct{}),
		activeRuns:    make(map[string]int),
		taskLocks:     make(map[string]*sync.Mutex),
	}
}

// --- Cancellation set ---

func (ac *A2ACapability) requestCancellation(taskID string) {
	ac.cancelMu.Lock()
	ac.cancellations[taskID] = struct{}{}
	ac.cancelMu.Unlock()
}

func (ac *A2ACapability) clearCancellation(taskID string) {
	ac.cancelMu.Lock()
	delete(ac.cancellations, taskID)
	ac.cancelMu.Unlock()
}

func (ac *A2ACapability) isCancelled(taskID string) bool {
	ac.cancelMu.Lock()
	_, ok := ac.cancellations[taskID]
	ac.cancelMu.Unlock()
	return ok
}

func (ac *A2ACapability) beginRun(taskID string) {
	ac.cancelMu.Lock()
	ac.activeRuns[taskID]++
	ac.cancelMu.Unlock()
}

// endRun marks the run finished and drops any pending cancel request for
// the task: termination has been observed.
func (ac *A2ACapability) endRun(taskID string) {
	ac.cancelMu.Lock()
	if ac.activeRuns[taskID] <= 1 {
		delete(ac.activeRuns, taskID)
		delete(ac.cancellations, taskID)
	} else {
		ac.activeRuns[taskID]--
	}
	ac.cancelMu.Unlock()
}

func (ac *A2ACapability) hasActiveRun(taskID string) bool {
	ac.cancelMu.Lock()
	_, ok := ac.activeRuns[taskID]
	ac.cancelMu.Unlock()
	return ok
}

// --- Save serialization ---

func (ac *A2ACapability) taskLock(taskID string) *sync.Mutex {
	ac.locksMu.Lock()
	defer ac.locksMu.Unlock()
	lock, ok := ac.taskLocks[taskID]
	if !ok {
		lock = &sync.Mutex{}
		ac.taskLocks[taskID] = lock
	}
	return lock
}

func (ac *A2ACapability) save(ctx context.Context, data *TaskAndHistory) error {
	lock := ac.taskLock(data.Task.ID)
	lock.Lock()
	defer lock.Unlock()
	return ac.store.Save(ctx, data)
}

// --- Params validation ---

func ValidateSendParams(params *a2aSchema.TaskSendParams) *a2aSchema.A2AError {
	if params == nil || params.ID == "" {
		return a2aSchema.NewInvalidParamsError("task id is required and must be a non-empty string")
	}
	if params.Message.Parts == nil {
		return a2aSchema.NewInvalidParamsError("message with a parts array is required").WithTask(params.ID)
	}
	return nil
}

// --- Load-or-create ---

// loadOrSetupTask prepares the task pair for a new handler run: it creates
// the task on first sight, otherwise appends the incoming user message and
// normalizes the state (terminal tasks reset to submitted with history
// preserved, input-required resumes as working), then persists.
func (ac *A2ACapability) loadOrSetupTask(ctx context.Context, params *a2aSchema.TaskSendParams, logger *zap.Logger) (*TaskAndHistory, error) {
	data, err := ac.store.Load(ctx, params.ID)

	var a2aErr *a2aSchema.A2AError
	switch {
	case err == nil:
		data.History = append(data.History, copyMessage(params.Message))
		state := data.Task.Status.State
		switch {
		case state.Terminal():
			logger.Info("Reopening task in terminal state",
				zap.String("previousState", string(state)))
			data = applyUpdateToTaskAndHistory(data, StatusUpdate(a2aSchema.TaskStateSubmitted, ""))
		case state == a2aSchema.TaskStateInputRequired:
			logger.Debug("Resuming task waiting for input")
			data = applyUpdateToTaskAndHistory(data, StatusUpdate(a2aSchema.TaskStateWorking, ""))
		default:
			// submitted, working, unknown: leave as-is.
		}

	case errors.As(err, &a2aErr) && a2aErr.Code == a2aSchema.ErrorCodeTaskNotFound:
		logger.Info("Creating new task")
		sessionID := params.SessionID
		if sessionID == nil {
			sessionID = shared.PointerTo(uuid.NewString())
		}
		data = &TaskAndHistory{
			Task: &a2aSchema.Task{
				ID:        params.ID,
				SessionID: sessionID,
				Status: a2aSchema.TaskStatus{
					State:     a2aSchema.TaskStateSubmitted,
					Timestamp: a2aSchema.Now(),
				},
				Artifacts: []a2aSchema.Artifact{},
				Metadata:  copyMetadataMap(params.Metadata),
			},
			History: []a2aSchema.Message{copyMessage(params.Message)},
		}

	default:
		return nil, err
	}

	if err := ac.save(ctx, data); err != nil {
		return nil, fmt.Errorf("failed to save task state before handler start: %w", err)
	}
	return data, nil
}

// --- Handler driving ---

type handlerRun struct {
	tc      *TaskContext
	updates chan YieldUpdate
	errCh   chan error
}

// startHandler launches the agent handler as a goroutine producing updates.
// A panic inside the handler surfaces as an error, which the caller turns
// into a failed task.
func (ac *A2ACapability) startHandler(ctx context.Context, data *TaskAndHistory, userMessage a2aSchema.Message) *handlerRun {
	taskID := data.Task.ID
	run := &handlerRun{
		tc: &TaskContext{
			UserMessage: copyMessage(userMessage),
			task:        copyTask(data.Task),
			history:     copyMessages(data.History),
			isCancelled: func() bool { return ac.isCancelled(taskID) },
		},
		updates: make(chan YieldUpdate, updateBuffer),
		errCh:   make(chan error, 1),
	}

	go func() {
		defer close(run.updates)
		defer func() {
			if r := recover(); r != nil {
				run.errCh <- fmt.Errorf("handler panicked: %v", r)
			}
		}()
		run.errCh <- ac.handler(ctx, run.tc, run.updates)
	}()
	return run
}

// drain discards remaining updates so a handler blocked on a send can
// finish after the consumer stopped merging.
func drain(updates <-chan YieldUpdate) {
	for range updates {
	}
}

func validYield(update YieldUpdate) bool {
	return (update.Status != nil) != (update.Artifact != nil)
}

// --- tasks/send ---

// HandleTaskSend runs the handler to completion and returns the final
// persisted task.
func (ac *A2ACapability) HandleTaskSend(ctx context.Context, params *a2aSchema.TaskSendParams) (*a2aSchema.Task, error) {
	if err := ValidateSendParams(params); err != nil {
		return nil, err
	}
	logger := ac.logger.With(zap.String("taskID", params.ID), zap.String("method", "tasks/send"))

	current, err := ac.loadOrSetupTask(ctx, params, logger)
	if err != nil {
		return nil, err
	}

	ac.beginRun(params.ID)
	defer ac.endRun(params.ID)
	run := ac.startHandler(ctx, current, params.Message)

	terminal := false
	var saveErr error
	for update := range run.updates {
		if !validYield(update) {
			logger.Warn("Dropping invalid yield update (must set exactly one of status/artifact)")
			continue
		}
		if terminal || saveErr != nil {
			// A terminal status ends the run's merges; later yields
			// from the same run are discarded.
			continue
		}
		current = applyUpdateToTaskAndHistory(current, update)
		if err := ac.save(ctx, current); err != nil {
			logger.Error("Failed to save task state after update", zap.Error(err))
			saveErr = err
			continue
		}
		run.tc.refresh(current)
		if update.Status != nil && current.Task.Status.State.Terminal() {
			terminal = true
		}
	}

	handlerErr := <-run.errCh

	if saveErr != nil {
		return nil, a2aSchema.NewInternalError(
			fmt.Sprintf("failed to persist task state: %v", saveErr), nil).WithTask(params.ID)
	}

	if handlerErr != nil {
		logger.Error("Handler finished with an error", zap.Error(handlerErr))
		current = applyUpdateToTaskAndHistory(current,
			StatusUpdate(a2aSchema.TaskStateFailed, handlerErr.Error()))
		if err := ac.save(ctx, current); err != nil {
			logger.Error("Failed to save failed task state", zap.Error(err))
		}
		return nil, a2aSchema.NewInternalError(handlerErr.Error(), nil).WithTask(params.ID)
	}

	logger.Debug("tasks/send completed",
		zap.String("finalState", string(current.Task.Status.State)))
	return copyTask(current.Task), nil
}

// --- tasks/sendSubscribe ---

// HandleTaskSendSubscribe runs the handler and emits one stream event per
// merged update. Exactly one emitted event carries Final=true; it is always
// the last. Handler failures become a final failed status event, never a
// transport error.
func (ac *A2ACapability) HandleTaskSendSubscribe(ctx context.Context, params *a2aSchema.TaskSendParams, emit EmitFunc) error {
	if err := ValidateSendParams(params); err != nil {
		return err
	}
	logger := ac.logger.With(zap.String("taskID", params.ID), zap.String("method", "tasks/sendSubscribe"))

	current, err := ac.loadOrSetupTask(ctx, params, logger)
	if err != nil {
		return err
	}

	ac.beginRun(params.ID)
	backgroundFinish := false
	defer func() {
		if !backgroundFinish {
			ac.endRun(params.ID)
		}
	}()
	run := ac.startHandler(ctx, current, params.Message)

	finalSent := false
	emitBroken := false
	for update := range run.updates {
		if !validYield(update) {
			logger.Warn("Dropping invalid yield update (must set exactly one of status/artifact)")
			continue
		}

		current = applyUpdateToTaskAndHistory(current, update)
		if err := ac.save(ctx, current); err != nil {
			// Headers are long gone; terminate the stream best-effort.
			logger.Error("Failed to save task state during streaming", zap.Error(err))
			go drain(run.updates)
			<-run.errCh
			return nil
		}
		run.tc.refresh(current)

		var event shared.A2AStreamEvent
		if update.Status != nil {
			state := current.Task.Status.State
			final := state.Terminal() || state == a2aSchema.TaskStateInputRequired
			event = shared.A2AStreamEvent{
				Status: &a2aSchema.TaskStatusUpdateEvent{
					ID:     current.Task.ID,
					Status: copyStatus(current.Task.Status),
					Final:  final,
				},
				Final: final,
			}
		} else {
			event = shared.A2AStreamEvent{
				Artifact: &a2aSchema.TaskArtifactUpdateEvent{
					ID:       current.Task.ID,
					Artifact: copyArtifact(*update.Artifact),
				},
			}
		}

		if !emitBroken {
			if err := emit(event); err != nil {
				logger.Warn("Failed to emit stream event, client likely disconnected", zap.Error(err))
				emitBroken = true
			}
		}
		if event.Final {
			// A final status ends the run's merges even when the event
			// could not be delivered to a departed client.
			finalSent = true
			break
		}
	}

	if finalSent {
		// The stream is over. Later yields of this run are discarded; the
		// run's termination is observed in the background so a pending
		// cancel request is eventually cleared.
		backgroundFinish = true
		taskID := params.ID
		go func() {
			drain(run.updates)
			<-run.errCh
			ac.endRun(taskID)
		}()
		logger.Debug("tasks/sendSubscribe stream finished",
			zap.String("finalState", string(current.Task.Status.State)))
		return nil
	}

	handlerErr := <-run.errCh

	if handlerErr != nil && !finalSent {
		logger.Error("Handler finished with an error during streaming", zap.Error(handlerErr))
		current = applyUpdateToTaskAndHistory(current,
			StatusUpdate(a2aSchema.TaskStateFailed, handlerErr.Error()))
		if err := ac.save(ctx, current); err != nil {
			logger.Error("Failed to save failed task state", zap.Error(err))
		}
		if !emitBroken {
			failEvent := shared.A2AStreamEvent{
				Status: &a2aSchema.TaskStatusUpdateEvent{
					ID:     current.Task.ID,
					Status: copyStatus(current.Task.Status),
					Final:  true,
				},
				Final: true,
			}
			if err := emit(failEvent); err != nil {
				logger.Warn("Failed to emit final failed event", zap.Error(err))
			}
		}
		return nil
	}

	if !finalSent {
		state := current.Task.Status.State
		if !state.Terminal() && state != a2aSchema.TaskStateInputRequired {
			logger.Debug("Handler finished without terminal yield, completing task")
			current = applyUpdateToTaskAndHistory(current,
				StatusUpdate(a2aSchema.TaskStateCompleted, ""))
			if err := ac.save(ctx, current); err != nil {
				logger.Error("Failed to save completed task state", zap.Error(err))
				return nil
			}
		}
		if !emitBroken {
			finalEvent := shared.A2AStreamEvent{
				Status: &a2aSchema.TaskStatusUpdateEvent{
					ID:     current.Task.ID,
					Status: copyStatus(current.Task.Status),
					Final:  true,
				},
				Final: true,
			}
			if err := emit(finalEvent); err != nil {
				logger.Warn("Failed to emit final event", zap.Error(err))
			}
		}
	}

	logger.Debug("tasks/sendSubscribe stream finished",
		zap.String("finalState", string(current.Task.Status.State)))
	return nil
}

// --- tasks/get ---

// HandleTaskGet returns the stored task. History is never included in the
// response; historyLength on the wire is advisory and ignored.
func (ac *A2ACapability) HandleTaskGet(ctx context.Context, params *a2aSchema.TaskQueryParams) (*a2aSchema.Task, error) {
	if params == nil || params.ID == "" {
		return nil, a2aSchema.NewInvalidParamsError("task id is required and must be a non-empty string")
	}
	data, err := ac.store.Load(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	return data.Task, nil
}

// --- tasks/cancel ---

// HandleTaskCancel requests cooperative cancellation. A terminal task is
// returned unchanged; otherwise the canceled status is written immediately
// and the running handler, if any, observes the request through its polling
// predicate. The call never waits for the handler.
func (ac *A2ACapability) HandleTaskCancel(ctx context.Context, params *a2aSchema.TaskIdParams) (*a2aSchema.Task, error) {
	if params == nil || params.ID == "" {
		return nil, a2aSchema.NewInvalidParamsError("task id is required and must be a non-empty string")
	}
	logger := ac.logger.With(zap.String("taskID", params.ID), zap.String("method", "tasks/cancel"))

	data, err := ac.store.Load(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	if data.Task.Status.State.Terminal() {
		logger.Debug("Cancel of task already in terminal state is a no-op",
			zap.String("state", string(data.Task.Status.State)))
		return data.Task, nil
	}

	ac.requestCancellation(params.ID)
	data = applyUpdateToTaskAndHistory(data,
		StatusUpdate(a2aSchema.TaskStateCanceled, cancelledByRequestText))
	if err := ac.save(ctx, data); err != nil {
		ac.clearCancellation(params.ID)
		logger.Error("Failed to save canceled task state", zap.Error(err))
		return nil, a2aSchema.NewInternalError("failed to save canceled task state", nil).WithTask(params.ID)
	}
	// With a handler running, the flag stays set until the engine observes
	// that run terminate, so the handler's polling predicate can see it.
	if !ac.hasActiveRun(params.ID) {
		ac.clearCancellation(params.ID)
	}

	logger.Info("Task canceled")
	return data.Task, nil
}
