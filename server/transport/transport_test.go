package transport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/server/a2a"
	"github.com/agenticdao/a2aserver/server/transport"
	"github.com/agenticdao/a2aserver/shared"
	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
	"github.com/agenticdao/a2aserver/shared/config"
)

func echoHandler(ctx context.Context, tc *a2a.TaskContext, updates chan<- a2a.YieldUpdate) error {
	updates <- a2a.StatusUpdate(a2aSchema.TaskStateWorking, "working")
	updates <- a2a.StatusUpdate(a2aSchema.TaskStateCompleted, "done")
	return nil
}

func newTestServer(t *testing.T, store a2a.TaskStore, gate *transport.AuthGate) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.NewInternalConfig()
	if store == nil {
		store = a2a.NewInMemoryTaskStore()
	}
	capability := a2a.NewA2ACapability(logger, store, echoHandler)
	tr, err := transport.New(logger, cfg, capability, gate)
	require.NoError(t, err)

	mux := http.NewServeMux()
	tr.RegisterA2AHandlers(mux, "http://localhost:41241/")
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type rpcEnvelope struct {
	JSONRPC string               `json:"jsonrpc"`
	ID      any                  `json:"id"`
	Result  *json.RawMessage     `json:"result"`
	Error   *shared.JSONRPCError `json:"error"`
}

func postJSON(t *testing.T, url, body string) (*http.Response, rpcEnvelope) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var envelope rpcEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func TestDispatcherParseError(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp, envelope := postJSON(t, srv.URL, "{not json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, a2aSchema.ErrorCodeParseError, envelope.Error.Code)
	assert.Nil(t, envelope.ID)
}

func TestDispatcherInvalidEnvelope(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	cases := []struct {
		name string
		body string
	}{
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"tasks/get","params":{}}`},
		{"missing method", `{"jsonrpc":"2.0","id":1,"params":{}}`},
		{"params not object or array", `{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":"nope"}`},
		{"id wrong type", `{"jsonrpc":"2.0","id":{"k":1},"method":"tasks/get","params":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, envelope := postJSON(t, srv.URL, tc.body)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			require.NotNil(t, envelope.Error)
			assert.Equal(t, a2aSchema.ErrorCodeInvalidRequest, envelope.Error.Code)
		})
	}
}

func TestDispatcherMethodNotFound(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	_, envelope := postJSON(t, srv.URL, `{"jsonrpc":"2.0","id":7,"method":"tasks/unknown","params":{}}`)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, a2aSchema.ErrorCodeMethodNotFound, envelope.Error.Code)
	assert.Equal(t, float64(7), envelope.ID)
}

func TestDispatcherReservedMethods(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	_, envelope := postJSON(t, srv.URL, `{"jsonrpc":"2.0","id":1,"method":"tasks/pushNotification/set","params":{}}`)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, a2aSchema.ErrorCodePushNotificationNotSupported, envelope.Error.Code)

	_, envelope = postJSON(t, srv.URL, `{"jsonrpc":"2.0","id":2,"method":"tasks/resubscribe","params":{}}`)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, a2aSchema.ErrorCodeUnsupportedOperation, envelope.Error.Code)
}

func TestDispatcherTaskSend(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	body := `{"jsonrpc":"2.0","id":"req-1","method":"tasks/send","params":{"id":"t1","message":{"role":"user","parts":[{"type":"text","text":"hi"}]}}}`
	resp, envelope := postJSON(t, srv.URL, body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, envelope.Error)
	assert.Equal(t, "req-1", envelope.ID)

	var task a2aSchema.Task
	require.NoError(t, json.Unmarshal(*envelope.Result, &task))
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, a2aSchema.TaskStateCompleted, task.Status.State)
}

func TestDispatcherTaskGetAndCancel(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	_, envelope := postJSON(t, srv.URL, `{"jsonrpc":"2.0","id":1,"method":"tasks/send","params":{"id":"t-g","message":{"role":"user","parts":[{"type":"text","text":"hi"}]}}}`)
	require.Nil(t, envelope.Error)

	_, envelope = postJSON(t, srv.URL, `{"jsonrpc":"2.0","id":2,"method":"tasks/get","params":{"id":"t-g"}}`)
	require.Nil(t, envelope.Error)
	var task a2aSchema.Task
	require.NoError(t, json.Unmarshal(*envelope.Result, &task))
	assert.Equal(t, a2aSchema.TaskStateCompleted, task.Status.State)

	// Cancel of the completed task is a no-op success.
	_, envelope = postJSON(t, srv.URL, `{"jsonrpc":"2.0","id":3,"method":"tasks/cancel","params":{"id":"t-g"}}`)
	require.Nil(t, envelope.Error)
	require.NoError(t, json.Unmarshal(*envelope.Result, &task))
	assert.Equal(t, a2aSchema.TaskStateCompleted, task.Status.State)
}

func TestDispatcherTaskNotFound(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	_, envelope := postJSON(t, srv.URL, `{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{"id":"ghost"}}`)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, a2aSchema.ErrorCodeTaskNotFound, envelope.Error.Code)

	_, envelope = postJSON(t, srv.URL, `{"jsonrpc":"2.0","id":2,"method":"tasks/cancel","params":{"id":"ghost"}}`)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, a2aSchema.ErrorCodeTaskNotFound, envelope.Error.Code)
}

// Path-traversal ids are rejected with invalid-params when the disk store
// backs the server.
func TestDispatcherRejectsTraversalIDOnFileStore(t *testing.T) {
	store := a2a.NewFileTaskStore(t.TempDir(), zap.NewNop())
	srv := newTestServer(t, store, nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"tasks/send","params":{"id":"../escape","message":{"role":"user","parts":[{"type":"text","text":"hi"}]}}}`
	resp, envelope := postJSON(t, srv.URL, body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, a2aSchema.ErrorCodeInvalidParams, envelope.Error.Code)
}

func TestAgentCardEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp, err := http.Get(srv.URL + "/.well-known/agent.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var card a2aSchema.AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	assert.NotEmpty(t, card.Name)
	assert.True(t, card.Capabilities.Streaming)
	assert.NotEmpty(t, card.URL)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
