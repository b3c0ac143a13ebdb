package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/server/a2a"
	"github.com/agenticdao/a2aserver/shared"
	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
	"github.com/agenticdao/a2aserver/shared/config"
)

const (
	// A2APath is the JSON-RPC POST endpoint.
	A2APath = "/"
	// AgentCardPath is the well-known discovery endpoint.
	AgentCardPath = "/.well-known/agent.json"
)

// Transport routes HTTP traffic to the A2A capability: the JSON-RPC POST
// dispatcher, the SSE streamer for tasks/sendSubscribe, and the agent card
// GET endpoint.
type Transport struct {
	logger     *zap.Logger
	cfg        config.IConfig
	capability *a2a.A2ACapability
	authGate   *AuthGate // nil when the gate is disabled
	agentURL   string
}

// New creates a transport. authGate may be nil.
func New(logger *zap.Logger, cfg config.IConfig, capability *a2a.A2ACapability, authGate *AuthGate) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if capability == nil {
		return nil, errors.New("a2a capability cannot be nil")
	}
	return &Transport{
		logger:     logger.Named("transport"),
		cfg:        cfg,
		capability: capability,
		authGate:   authGate,
	}, nil
}

// RegisterA2AHandlers installs the A2A routes on the mux. agentURL is the
// externally visible base URL advertised in the agent card.
func (t *Transport) RegisterA2AHandlers(mux *http.ServeMux, agentURL string) {
	t.agentURL = agentURL
	mux.HandleFunc(A2APath, func(w http.ResponseWriter, r *http.Request) {
		t.setCORSHeaders(w)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPost:
			t.handleA2APOST(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc(AgentCardPath, func(w http.ResponseWriter, r *http.Request) {
		t.setCORSHeaders(w)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			t.handleAgentCardGET(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func (t *Transport) setCORSHeaders(w http.ResponseWriter) {
	origin, err := t.cfg.CORSOrigin()
	if err != nil || origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+
		HeaderSignature+", "+HeaderNonce+", "+HeaderPublicKey)
}

// handleAgentCardGET serves the agent card. The card is resolved from
// config on every request so a config reload is visible immediately.
func (t *Transport) handleAgentCardGET(w http.ResponseWriter, r *http.Request) {
	card, err := t.cfg.AgentCard(t.agentURL)
	if err != nil {
		t.logger.Error("Failed to build agent card", zap.Error(err))
		http.Error(w, "Failed to build agent card", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(card); err != nil {
		t.logger.Error("Failed to write agent card", zap.Error(err))
	}
}

// handleA2APOST processes one JSON-RPC request on the A2A endpoint.
func (t *Transport) handleA2APOST(w http.ResponseWriter, r *http.Request) {
	logger := t.logger

	// Auth gate runs before any parsing; rejections are the only errors
	// that use a non-200 status.
	if t.authGate != nil {
		if authErr := t.authGate.Verify(r.Context(), r); authErr != nil {
			logger.Warn("Request rejected by auth gate", zap.Error(authErr))
			t.writeError(w, http.StatusForbidden, nil, authErr, logger)
			return
		}
	}

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read request body", zap.Error(err))
		t.writeError(w, http.StatusOK, nil, a2aSchema.NewParseError(err.Error()), logger)
		return
	}
	defer r.Body.Close()

	// First make sure the body is valid JSON at all, so envelope problems
	// can be told apart from syntax problems.
	var raw json.RawMessage
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		t.writeError(w, http.StatusOK, nil, a2aSchema.NewParseError(err.Error()), logger)
		return
	}

	var req shared.JSONRPCRequest
	if err := json.Unmarshal(bodyBytes, &req); err != nil {
		t.writeError(w, http.StatusOK, nil, a2aSchema.NewInvalidRequestError(err.Error()), logger)
		return
	}
	if rpcErr := validateEnvelope(&req); rpcErr != nil {
		t.writeError(w, http.StatusOK, req.ID, rpcErr, logger)
		return
	}

	logger = logger.With(zap.String("method", req.Method), zap.String("reqID", req.ID.String()))

	params := []byte("{}")
	if req.Params != nil {
		params = *req.Params
	}

	switch req.Method {
	case "tasks/send":
		var sendParams a2aSchema.TaskSendParams
		if err := json.Unmarshal(params, &sendParams); err != nil {
			t.writeError(w, http.StatusOK, req.ID, a2aSchema.NewInvalidParamsError(err.Error()), logger)
			return
		}
		task, err := t.capability.HandleTaskSend(r.Context(), &sendParams)
		if err != nil {
			t.writeError(w, http.StatusOK, req.ID, err, logger.With(zap.String("taskID", sendParams.ID)))
			return
		}
		t.writeSuccess(w, req.ID, task, logger)

	case "tasks/sendSubscribe":
		var sendParams a2aSchema.TaskSendParams
		if err := json.Unmarshal(params, &sendParams); err != nil {
			t.writeError(w, http.StatusOK, req.ID, a2aSchema.NewInvalidParamsError(err.Error()), logger)
			return
		}
		t.handleSendSubscribe(w, r, req.ID, &sendParams, logger.With(zap.String("taskID", sendParams.ID)))

	case "tasks/get":
		var queryParams a2aSchema.TaskQueryParams
		if err := json.Unmarshal(params, &queryParams); err != nil {
			t.writeError(w, http.StatusOK, req.ID, a2aSchema.NewInvalidParamsError(err.Error()), logger)
			return
		}
		task, err := t.capability.HandleTaskGet(r.Context(), &queryParams)
		if err != nil {
			t.writeError(w, http.StatusOK, req.ID, err, logger.With(zap.String("taskID", queryParams.ID)))
			return
		}
		t.writeSuccess(w, req.ID, task, logger)

	case "tasks/cancel":
		var idParams a2aSchema.TaskIdParams
		if err := json.Unmarshal(params, &idParams); err != nil {
			t.writeError(w, http.StatusOK, req.ID, a2aSchema.NewInvalidParamsError(err.Error()), logger)
			return
		}
		task, err := t.capability.HandleTaskCancel(r.Context(), &idParams)
		if err != nil {
			t.writeError(w, http.StatusOK, req.ID, err, logger.With(zap.String("taskID", idParams.ID)))
			return
		}
		t.writeSuccess(w, req.ID, task, logger)

	case "tasks/pushNotification/set", "tasks/pushNotification/get":
		t.writeError(w, http.StatusOK, req.ID, a2aSchema.NewPushNotificationNotSupportedError(), logger)

	case "tasks/resubscribe":
		t.writeError(w, http.StatusOK, req.ID, a2aSchema.NewUnsupportedOperationError(req.Method), logger)

	default:
		t.writeError(w, http.StatusOK, req.ID, a2aSchema.NewMethodNotFoundError(req.Method), logger)
	}
}

// validateEnvelope checks the JSON-RPC 2.0 invariants the decoder cannot.
func validateEnvelope(req *shared.JSONRPCRequest) *a2aSchema.A2AError {
	if req.JSONRPC != shared.JSONRPCVersion {
		return a2aSchema.NewInvalidRequestError(`jsonrpc must be "2.0"`)
	}
	if req.Method == "" {
		return a2aSchema.NewInvalidRequestError("method is required and must be a string")
	}
	if req.Params != nil {
		trimmed := firstNonSpace(*req.Params)
		if trimmed != '{' && trimmed != '[' {
			return a2aSchema.NewInvalidRequestError("params must be an object or an array")
		}
	}
	return nil
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}

func (t *Transport) writeSuccess(w http.ResponseWriter, id *shared.RequestID, result any, logger *zap.Logger) {
	resp, err := shared.NewSuccessResponse(id, result)
	if err != nil {
		logger.Error("Failed to marshal response result", zap.Error(err))
		t.writeError(w, http.StatusOK, id, a2aSchema.NewInternalError("failed to marshal response", nil), logger)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError normalizes any error into a JSON-RPC error body. Errors other
// than *A2AError become InternalError.
func (t *Transport) writeError(w http.ResponseWriter, httpStatus int, id *shared.RequestID, err error, logger *zap.Logger) {
	var a2aErr *a2aSchema.A2AError
	if !errors.As(err, &a2aErr) {
		a2aErr = a2aSchema.NewInternalError(err.Error(), nil)
	}

	fields := []zap.Field{zap.Int("code", a2aErr.Code), zap.String("message", a2aErr.Message)}
	if a2aErr.TaskID != "" {
		fields = append(fields, zap.String("taskID", a2aErr.TaskID))
	}
	if !id.IsNull() {
		fields = append(fields, zap.String("reqID", id.String()))
	}
	logger.Warn("Responding with JSON-RPC error", fields...)

	if id == nil {
		id = shared.NewRequestID(nil)
	}
	resp := shared.JSONRPCErrorResponse{
		JSONRPC: shared.JSONRPCVersion,
		ID:      id,
		Error: &shared.JSONRPCError{
			Code:    a2aErr.Code,
			Message: a2aErr.Message,
			Data:    a2aErr.Data,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
