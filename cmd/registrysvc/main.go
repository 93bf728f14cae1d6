// Command registrysvc runs the Registry Service: durable event and agent
// discovery with heartbeat-driven TTL liveness and a background reaper.
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

	"github.com/soorma-platform/soorma/pkg/dbutil"
	"github.com/soorma-platform/soorma/pkg/registry"
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

	cfg, err := svcconfig.LoadRegistryConfig(filepath.Join(*configDir, "registrysvc.yaml"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}

	dbCfg, err := svcconfig.ParseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to parse DATABASE_URL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dbutil.Open(ctx, dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := dbutil.RunMigrations(db, registry.MigrationsFS, "migrations", dbCfg.Database); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	store := registry.NewStore(db)
	svc := registry.NewService(store, cfg.AgentTTL)

	reaper := registry.NewReaper(store, cfg.AgentTTL, cfg.AgentCleanupInterval)
	reaper.Start(ctx)
	defer reaper.Stop()

	handlers := registry.NewHandlers(svc)
	router := gin.New()
	router.Use(gin.Recovery())
	handlers.Register(router)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		slog.Info("registry service listening", "port", cfg.Port, "agent_ttl", cfg.AgentTTL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("registry service: listen failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("registry service shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("registry service: graceful shutdown failed", "error", err)
	}
}
