package transport

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/server/a2a"
	"github.com/agenticdao/a2aserver/shared"
	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// handleSendSubscribe serves a tasks/sendSubscribe request as an SSE stream.
// Parameter validation happens before headers go out, so invalid requests
// still get a plain JSON-RPC error response. Once the stream has started,
// every merged update becomes one `data:` frame carrying a JSON-RPC success
// envelope, and the stream ends after the single frame with final=true.
func (t *Transport) handleSendSubscribe(w http.ResponseWriter, r *http.Request, reqID *shared.RequestID, params *a2aSchema.TaskSendParams, logger *zap.Logger) {
	if err := a2a.ValidateSendParams(params); err != nil {
		t.writeError(w, http.StatusOK, reqID, err, logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("Streaming unsupported (http.Flusher missing)")
		t.writeError(w, http.StatusOK, reqID,
			a2aSchema.NewInternalError("streaming is not supported by this server", nil), logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(event shared.A2AStreamEvent) error {
		var result any
		switch {
		case event.Status != nil:
			result = event.Status
		case event.Artifact != nil:
			result = event.Artifact
		default:
			// Unknown event variant: log and skip, never break the stream.
			logger.Warn("Skipping stream event with no payload")
			return nil
		}

		resp, err := shared.NewSuccessResponse(reqID, result)
		if err != nil {
			logger.Error("Failed to marshal stream event", zap.Error(err))
			return nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			logger.Error("Failed to marshal stream envelope", zap.Error(err))
			return nil
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		logger.Debug("Sent SSE event", zap.Bool("final", event.Final))
		return nil
	}

	if err := t.capability.HandleTaskSendSubscribe(r.Context(), params, emit); err != nil {
		// Headers are already sent; the stream just ends. The engine has
		// logged and persisted whatever state it could.
		logger.Error("Streaming request failed after headers were sent", zap.Error(err))
	}
}
