package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/server/a2a"
	"github.com/agenticdao/a2aserver/server/transport"
	"github.com/agenticdao/a2aserver/shared/config"
)

// ServerBuilder accumulates the pieces assembled by Start and the server
// options before the HTTP server is launched.
type ServerBuilder struct {
	ctx        context.Context
	logger     *zap.Logger
	cfg        config.IConfig
	listenAddr string
	mux        *http.ServeMux

	store   a2a.TaskStore
	handler a2a.TaskHandler
	ledger  transport.SubscriptionLedger

	capability *a2a.A2ACapability
}

// ServerOption defines a function type for configuring the ServerBuilder.
type ServerOption func(*ServerBuilder) error
