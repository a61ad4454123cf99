// Command server runs the relay as a standalone HTTP server.
package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	relay "github.com/lanrelay/relay"
	"github.com/lanrelay/relay/internal/config"
	"github.com/lanrelay/relay/internal/constants"
	"github.com/lanrelay/relay/internal/util"
)

// initializeLogger builds the zap logger from the log configuration.
func initializeLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Log.StandardOutput {
		zapCfg.OutputPaths = []string{"stdout"}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

// runWithSignalChannel is a testable version of run that accepts a signal channel
func runWithSignalChannel(sigChan chan os.Signal) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := initializeLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	if err := relay.Register(r, cfg, logger); err != nil {
		return err
	}

	server := relay.NewHTTPServer(r, cfg.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		logger.Infow("Server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case sig := <-sigChan:
		logger.Infow("Shutting down gracefully", "signal", sig.String())
	}

	ctx, cancel := util.NewTimeoutContext(constants.ShutdownTimeout)
	defer cancel()

	if err := relay.Shutdown(ctx); err != nil {
		logger.Warnw("Relay shutdown error", "error", err)
	}
	return server.Shutdown(ctx)
}

func main() {
	if err := runMain(); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

// runMain is the testable main function
func runMain() error {
	sigChan := setupSignalHandler()
	return runWithSignalChannel(sigChan)
}
