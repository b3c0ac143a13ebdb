package server

import (
	"errors"

	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/server/a2a"
	"github.com/agenticdao/a2aserver/server/transport"
)

// WithListenAddr overrides the listen address from the config.
func WithListenAddr(addr string) ServerOption {
	return func(b *ServerBuilder) error {
		if addr != "" {
			b.listenAddr = addr
			b.logger.Info("Overriding listen address", zap.String("newAddress", addr))
		}
		return nil
	}
}

// WithTaskHandler sets the agent logic driven by the task engine. Required.
func WithTaskHandler(handler a2a.TaskHandler) ServerOption {
	return func(b *ServerBuilder) error {
		if handler == nil {
			return errors.New("task handler cannot be nil")
		}
		b.handler = handler
		return nil
	}
}

// WithTaskStore overrides the store selected by configuration.
func WithTaskStore(store a2a.TaskStore) ServerOption {
	return func(b *ServerBuilder) error {
		if store == nil {
			return errors.New("task store cannot be nil")
		}
		b.store = store
		return nil
	}
}

// WithSubscriptionLedger supplies the external ledger consulted by the auth
// gate. Only meaningful when auth is enabled in configuration.
func WithSubscriptionLedger(ledger transport.SubscriptionLedger) ServerOption {
	return func(b *ServerBuilder) error {
		b.ledger = ledger
		return nil
	}
}
