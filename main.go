package main

import (
	"chatrelay/internal/config"
	"chatrelay/internal/http/http_server"
	"chatrelay/internal/relay"
	"chatrelay/internal/ws"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Registry actor: the process-wide routing table. Every connection
	// handler works through clones of this handle.
	registry := relay.NewRegistry(ctx)

	// 4. WS server bridging upgraded connections onto the registry
	wsSrv := ws.NewWsServer(ctx, registry, ws.Options{
		WriteWait:  cfg.WsWriteWait,
		PongWait:   cfg.WsPongWait,
		PingPeriod: cfg.WsPingPeriod,
		ReadLimit:  cfg.WsReadLimit,
	})

	// 5. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, registry)

	go func() {
		<-ctx.Done()
		if err := httpServer.Dispose(); err != nil {
			Log.Error("Failed to shut down HTTP server", zap.Error(err))
		}
	}()

	if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
