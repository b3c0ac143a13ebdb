package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/server/a2a"
	"github.com/agenticdao/a2aserver/server/extra"
	"github.com/agenticdao/a2aserver/server/transport"
	"github.com/agenticdao/a2aserver/shared/config"
)

// Start assembles and starts the A2A server with the provided options.
// It returns a channel reporting listener errors; the server itself shuts
// down when ctx is cancelled.
func Start(ctx context.Context, logger *zap.Logger, cfg config.IConfig, options ...ServerOption) (<-chan error, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	listenAddr, err := cfg.ListenAddr()
	if err != nil {
		return nil, fmt.Errorf("failed to get listen address: %w", err)
	}

	builder := &ServerBuilder{
		ctx:        ctx,
		logger:     logger,
		cfg:        cfg,
		listenAddr: listenAddr,
		mux:        http.NewServeMux(),
	}

	for _, option := range options {
		if err := option(builder); err != nil {
			return nil, fmt.Errorf("failed to apply server option: %w", err)
		}
	}

	if builder.handler == nil {
		return nil, errors.New("a task handler is required (use WithTaskHandler)")
	}
	if builder.store == nil {
		store, err := buildTaskStore(ctx, logger, cfg)
		if err != nil {
			return nil, err
		}
		builder.store = store
	}
	builder.capability = a2a.NewA2ACapability(logger, builder.store, builder.handler)

	var authGate *transport.AuthGate
	authEnabled, err := cfg.AuthEnabled()
	if err != nil {
		return nil, fmt.Errorf("failed to read auth setting: %w", err)
	}
	if authEnabled {
		agentKey, err := cfg.AgentIdentityKey()
		if err != nil {
			return nil, fmt.Errorf("failed to read agent identity key: %w", err)
		}
		authGate = transport.NewAuthGate(logger, agentKey, builder.ledger)
		logger.Info("Auth gate enabled", zap.Bool("ledgerConfigured", builder.ledger != nil))
	}

	transportInstance, err := transport.New(logger, cfg, builder.capability, authGate)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	transportInstance.RegisterA2AHandlers(builder.mux, agentURLFor(cfg, builder.listenAddr))
	builder.mux.HandleFunc("/status", extra.StatusHandler(cfg, logger))

	serverInstance, listenerErrChan, startErr := transport.StartHTTPServer(
		ctx, logger, cfg, builder.mux, builder.listenAddr)
	if startErr != nil {
		return nil, fmt.Errorf("failed to start HTTP server: %w", startErr)
	}

	go func() {
		select {
		case err, ok := <-listenerErrChan:
			if ok && err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server listener failed", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("Shutdown signal received, stopping server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			transport.ShutdownHTTPServer(shutdownCtx, logger, serverInstance)
			logger.Info("Server stopped.")
		}
	}()

	return listenerErrChan, nil
}

// buildTaskStore constructs the store selected by configuration.
func buildTaskStore(ctx context.Context, logger *zap.Logger, cfg config.IConfig) (a2a.TaskStore, error) {
	storeType, err := cfg.TaskStoreType()
	if err != nil {
		return nil, fmt.Errorf("failed to read task store type: %w", err)
	}
	switch storeType {
	case config.TaskStoreMemory:
		return a2a.NewInMemoryTaskStore(), nil
	case config.TaskStoreFile:
		dir, err := cfg.TaskStoreDir()
		if err != nil {
			return nil, fmt.Errorf("failed to read task store directory: %w", err)
		}
		return a2a.NewFileTaskStore(dir, logger), nil
	case config.TaskStorePostgres:
		dsn, err := cfg.TaskStoreDSN()
		if err != nil || dsn == "" {
			return nil, fmt.Errorf("postgres task store requires a DSN: %w", err)
		}
		return a2a.NewPostgresTaskStore(ctx, dsn, logger)
	default:
		return nil, fmt.Errorf("unknown task store type %q", storeType)
	}
}

// agentURLFor derives the externally visible base URL advertised in the
// agent card from the listen address and SSL settings.
func agentURLFor(cfg config.IConfig, listenAddr string) string {
	scheme := "http"
	if sslEnabled, err := cfg.SSLEnabled(); err == nil && sslEnabled {
		scheme = "https"
	}
	hostPort := listenAddr
	if strings.HasPrefix(hostPort, ":") {
		hostPort = "localhost" + hostPort
	}
	return fmt.Sprintf("%s://%s%s", scheme, hostPort, transport.A2APath)
}
