package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/shared"
	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// StreamEvent is one event received from a tasks/sendSubscribe stream.
// Exactly one of Status/Artifact is set for protocol events. Err reports
// either a JSON-RPC error frame, after which reading continues, or a
// transport-level read failure, after which the channel is closed.
type StreamEvent struct {
	Status   *a2aSchema.TaskStatusUpdateEvent
	Artifact *a2aSchema.TaskArtifactUpdateEvent
	Err      error
}

// Final reports whether this event ends the stream.
func (e StreamEvent) Final() bool {
	return e.Status != nil && e.Status.Final
}

// SendTaskSubscribe performs a tasks/sendSubscribe call and returns a
// channel of stream events. The channel closes after the final event, on a
// transport error, or when ctx is done. The server sends each event as a
// `data:` frame carrying a JSON-RPC success envelope.
func (c *Client) SendTaskSubscribe(ctx context.Context, params *a2aSchema.TaskSendParams) (<-chan StreamEvent, error) {
	logger := c.logger.With(zap.String("method", "tasks/sendSubscribe"), zap.String("taskID", params.ID))

	resp, err := c.post(ctx, "tasks/sendSubscribe", params, "text/event-stream")
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/event-stream") {
		// The server answered with a plain JSON-RPC body: an error response.
		defer resp.Body.Close()
		var errResp shared.JSONRPCErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != nil {
			return nil, errResp.Error
		}
		return nil, fmt.Errorf("expected SSE response, got Content-Type %q", contentType)
	}

	events := make(chan StreamEvent, 4)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		c.readStream(ctx, resp.Body, events, logger)
	}()
	return events, nil
}

// readStream parses `data:` frames until the final event, EOF, or ctx done.
func (c *Client) readStream(ctx context.Context, body io.Reader, events chan<- StreamEvent, logger *zap.Logger) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue // frame separator or keepalive comment
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			logger.Debug("Ignoring unexpected SSE line", zap.String("line", line))
			continue
		}

		event, err := parseStreamFrame([]byte(data))
		if err != nil {
			logger.Warn("Failed to parse stream frame", zap.Error(err))
			continue
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return
		}
		if event.Final() {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Warn("Stream ended with error", zap.Error(err))
		select {
		case events <- StreamEvent{Err: err}:
		case <-ctx.Done():
		}
	}
}

// parseStreamFrame decodes one JSON-RPC envelope into a stream event. The
// two event shapes are told apart by which payload field is present.
func parseStreamFrame(data []byte) (StreamEvent, error) {
	var envelope struct {
		JSONRPC string               `json:"jsonrpc"`
		Result  *json.RawMessage     `json:"result"`
		Error   *shared.JSONRPCError `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return StreamEvent{}, fmt.Errorf("malformed stream envelope: %w", err)
	}
	if envelope.Error != nil {
		return StreamEvent{Err: envelope.Error}, nil
	}
	if envelope.Result == nil {
		return StreamEvent{}, fmt.Errorf("stream envelope has neither result nor error")
	}

	var probe struct {
		Status   *json.RawMessage `json:"status"`
		Artifact *json.RawMessage `json:"artifact"`
	}
	if err := json.Unmarshal(*envelope.Result, &probe); err != nil {
		return StreamEvent{}, fmt.Errorf("malformed stream event: %w", err)
	}

	switch {
	case probe.Status != nil:
		var statusEvent a2aSchema.TaskStatusUpdateEvent
		if err := json.Unmarshal(*envelope.Result, &statusEvent); err != nil {
			return StreamEvent{}, fmt.Errorf("malformed status event: %w", err)
		}
		return StreamEvent{Status: &statusEvent}, nil
	case probe.Artifact != nil:
		var artifactEvent a2aSchema.TaskArtifactUpdateEvent
		if err := json.Unmarshal(*envelope.Result, &artifactEvent); err != nil {
			return StreamEvent{}, fmt.Errorf("malformed artifact event: %w", err)
		}
		return StreamEvent{Artifact: &artifactEvent}, nil
	default:
		return StreamEvent{}, fmt.Errorf("stream event has neither status nor artifact")
	}
}
