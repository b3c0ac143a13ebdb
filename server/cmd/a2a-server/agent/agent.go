// Package agent implements the example agent shipped with the server
// binary. It inspects the triggering user message and runs one of a few
// scenarios, which makes it handy for exercising the full protocol surface
// from a client: plain completion, artifact streaming, input-required,
// cancellation polling and failure.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/server/a2a"
	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// Handler returns the scenario-based task handler used by the example server.
func Handler(logger *zap.Logger) a2a.TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("example-agent")

	return func(ctx context.Context, tc *a2a.TaskContext, updates chan<- a2a.YieldUpdate) error {
		taskID := tc.Task().ID
		runLog := log.With(zap.String("taskID", taskID))
		runLog.Info("Agent handler started")

		input := userText(tc.UserMessage)
		scenario := pickScenario(input)
		runLog.Info("Determined scenario", zap.String("scenario", scenario))

		if err := yield(ctx, updates, a2a.StatusUpdate(a2aSchema.TaskStateWorking, "Processing your request...")); err != nil {
			return err
		}

		switch scenario {
		case "fail":
			time.Sleep(200 * time.Millisecond)
			return fmt.Errorf("simulated processing error: %s", input)

		case "input":
			return yield(ctx, updates, a2a.StatusUpdate(a2aSchema.TaskStateInputRequired,
				"Please provide the secret code to continue."))

		case "cancel":
			// Long-running loop that honors cooperative cancellation.
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for i := 0; i < 100; i++ {
				if tc.IsCancelled() {
					runLog.Info("Cancellation observed by handler")
					return yield(ctx, updates, a2a.StatusUpdate(a2aSchema.TaskStateCanceled,
						"Stopped on cancellation request."))
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
			return yield(ctx, updates, a2a.StatusUpdate(a2aSchema.TaskStateCompleted,
				"Long task finished without cancellation."))

		case "stream":
			for i := 0; i < 3; i++ {
				if tc.IsCancelled() {
					return yield(ctx, updates, a2a.StatusUpdate(a2aSchema.TaskStateCanceled,
						"Stopped on cancellation request."))
				}
				chunk := fmt.Sprintf("chunk %d of 3\n", i+1)
				artifact := a2aSchema.Artifact{
					Name:      ptr("stream.txt"),
					Index:     ptr(0),
					Parts:     []a2aSchema.Part{a2aSchema.TextPart(chunk)},
					Append:    ptr(i > 0),
					LastChunk: ptr(i == 2),
				}
				if err := yield(ctx, updates, a2a.ArtifactUpdate(artifact)); err != nil {
					return err
				}
				time.Sleep(150 * time.Millisecond)
			}
			return yield(ctx, updates, a2a.StatusUpdate(a2aSchema.TaskStateCompleted,
				"Finished streaming artifacts."))

		default:
			artifact := a2aSchema.Artifact{
				Name:  ptr("response.txt"),
				Parts: []a2aSchema.Part{a2aSchema.TextPart(fmt.Sprintf("You said: %q\n", input))},
			}
			if err := yield(ctx, updates, a2a.ArtifactUpdate(artifact)); err != nil {
				return err
			}
			return yield(ctx, updates, a2a.StatusUpdate(a2aSchema.TaskStateCompleted,
				"Task completed successfully."))
		}
	}
}

func pickScenario(input string) string {
	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "fail_test"):
		return "fail"
	case strings.Contains(lower, "input_test"):
		return "input"
	case strings.Contains(lower, "cancel_test"):
		return "cancel"
	case strings.Contains(lower, "stream_test"):
		return "stream"
	default:
		return "echo"
	}
}

// userText extracts the first text part of the triggering message.
func userText(msg a2aSchema.Message) string {
	for _, part := range msg.Parts {
		if part.Text != nil {
			return *part.Text
		}
	}
	return ""
}

// yield sends one update unless the run context is already gone.
func yield(ctx context.Context, updates chan<- a2a.YieldUpdate, update a2a.YieldUpdate) error {
	select {
	case updates <- update:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ptr[T any](v T) *T {
	return &v
}
