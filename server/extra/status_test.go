package extra_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/server/extra"
	"github.com/agenticdao/a2aserver/shared/config"
)

func TestStatusHandler(t *testing.T) {
	cfg := config.NewInternalConfig()
	cfg.ServerNameValue = "Probe Agent"
	cfg.ServerVersionValue = "9.9.9"

	handler := extra.StatusHandler(cfg, zap.NewNop())
	recorder := httptest.NewRecorder()
	handler(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	var response extra.StatusResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "Probe Agent", response.Name)
	assert.Equal(t, "9.9.9", response.Version)
}
