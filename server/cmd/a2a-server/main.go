package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agenticdao/a2aserver/server"
	"github.com/agenticdao/a2aserver/server/cmd/a2a-server/agent"
	"github.com/agenticdao/a2aserver/shared/config"
)

func main() {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := loggerConfig.Build()
	defer logger.Sync()

	listenAddr := flag.String("listen", "", "Address and port to listen on (default :41241)")
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	var cfg config.IConfig
	if *configPath != "" {
		yamlCfg, err := config.NewYamlConfig(*configPath, logger)
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.String("path", *configPath), zap.Error(err))
		}
		cfg = yamlCfg
	} else {
		cfg = config.NewInternalConfig()
	}
	defer cfg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Starting A2A server")

	errChan, startErr := server.Start(ctx, logger, cfg,
		server.WithListenAddr(*listenAddr),
		server.WithTaskHandler(agent.Handler(logger)),
	)
	if startErr != nil {
		logger.Error("Failed to start server", zap.Error(startErr))
		os.Exit(1)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signalCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server listener error", zap.Error(err))
			cancel()
			os.Exit(1)
		}
		cancel()
	}

	// Give the graceful shutdown a moment to run before the process exits.
	time.Sleep(500 * time.Millisecond)
	logger.Info("Server stopped")
}
