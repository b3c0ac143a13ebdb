package extra

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/shared/config"
)

// StatusResponse represents the response structure for the status endpoint.
type StatusResponse struct {
	Status  string `json:"status"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// StatusHandler creates an HTTP handler for checking server liveness.
func StatusHandler(cfg config.IConfig, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handlerLogger := logger.With(zap.String("handler", "StatusHandler"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := StatusResponse{Status: "ok"}
		if name, err := cfg.ServerName(); err == nil {
			response.Name = name
		}
		if version, err := cfg.ServerVersion(); err == nil {
			response.Version = version
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			handlerLogger.Error("Failed to write status response", zap.Error(err))
		}
	}
}
