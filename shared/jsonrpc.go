package shared

import (
	"encoding/json"
	"fmt"
)

const (
	JSONRPCVersion = "2.0"
)

// RequestID holds a JSON-RPC request identifier, which may be a string, a
// number, or null. The raw form is kept so responses can echo the id exactly
// as the client sent it.
type RequestID struct {
	value any
}

// NewRequestID wraps a decoded id value. Accepts string, float64/int or nil.
func NewRequestID(v any) *RequestID {
	return &RequestID{value: v}
}

// Value returns the underlying id as wrapped or decoded. Decoding yields a
// string, a float64 or nil.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// IsNull reports whether the id is absent or JSON null.
func (id *RequestID) IsNull() bool {
	return id == nil || id.value == nil
}

func (id *RequestID) String() string {
	if id == nil || id.value == nil {
		return "<null>"
	}
	return fmt.Sprintf("%v", id.value)
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.(type) {
	case string, float64, nil:
		id.value = v
		return nil
	default:
		return fmt.Errorf("request id must be a string, number or null, got %T", v)
	}
}

// JSONRPCRequest is the envelope accepted on the A2A POST endpoint.
type JSONRPCRequest struct {
	JSONRPC string           `json:"jsonrpc"` // Must be "2.0"
	ID      *RequestID       `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  *json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents the structure for sending successful JSON-RPC responses.
type JSONRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *RequestID       `json:"id"` // Must be present and same as request ID
	Result  *json.RawMessage `json:"result"`
}

// JSONRPCErrorResponse is the envelope used for all failed requests.
type JSONRPCErrorResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      *RequestID    `json:"id"`
	Error   *JSONRPCError `json:"error"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error type code
	Message string      `json:"message"`        // Short error description
	Data    interface{} `json:"data,omitempty"` // Additional error information
}

// Error implements the Go error interface for JSONRPCError.
func (e *JSONRPCError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewSuccessResponse wraps a result value into a success envelope.
func NewSuccessResponse(id *RequestID, result any) (*JSONRPCResponse, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	rawMsg := json.RawMessage(raw)
	return &JSONRPCResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  &rawMsg,
	}, nil
}
