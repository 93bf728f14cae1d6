// Command eventsvc runs the Event Service: a broker-agnostic pub/sub proxy
// that accepts JSON event envelopes over HTTP and fans them out over
// Server-Sent-Events streams.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/soorma-platform/soorma/pkg/bus"
	"github.com/soorma-platform/soorma/pkg/eventsvc"
	"github.com/soorma-platform/soorma/pkg/svcconfig"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v; continuing with existing environment", envPath, err)
	}

	gin.SetMode(getEnv("GIN_MODE", "release"))

	cfg, err := svcconfig.LoadEventServiceConfig(filepath.Join(*configDir, "eventsvc.yaml"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var adapter bus.Adapter
	switch cfg.Adapter {
	case svcconfig.AdapterNATS:
		adapter = bus.NewNATSAdapter(cfg.NATSURL)
	default:
		adapter = bus.NewMemoryAdapter()
	}
	if err := adapter.Connect(ctx); err != nil {
		log.Fatalf("failed to connect bus adapter: %v", err)
	}
	defer func() { _ = adapter.Disconnect(context.Background()) }()

	manager := eventsvc.NewConnectionManager(adapter, cfg.StreamMaxQueueSize, cfg.StreamHeartbeatInterval)
	handlers := eventsvc.NewHandlers(manager)

	router := gin.New()
	router.Use(gin.Recovery())
	handlers.Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slog.Info("event service listening", "port", cfg.Port, "adapter", cfg.Adapter)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("event service: listen failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("event service shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("event service: graceful shutdown failed", "error", err)
	}
}
