// Command memorysvc runs the Memory Service: tenant-scoped working,
// episodic, semantic, and procedural memory, plus the Plan/Task execution
// contracts (§4.7) exposed over the same HTTP surface.
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
	"github.com/soorma-platform/soorma/pkg/embedding"
	"github.com/soorma-platform/soorma/pkg/embedding/httpembed"
	"github.com/soorma-platform/soorma/pkg/embedding/local"
	"github.com/soorma-platform/soorma/pkg/memory"
	"github.com/soorma-platform/soorma/pkg/plan"
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

	cfg, err := svcconfig.LoadMemoryConfig(filepath.Join(*configDir, "memorysvc.yaml"))
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

	if err := dbutil.RunMigrations(db, memory.MigrationsFS, "migrations", dbCfg.Database); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	var embedder embedding.Provider
	switch cfg.EmbeddingBackend {
	case svcconfig.EmbeddingHTTP:
		embedder = httpembed.New(cfg.EmbeddingURL, cfg.EmbeddingModelDim)
	default:
		embedder = local.New(cfg.EmbeddingModelDim)
	}

	memStore := memory.NewStore(db)
	memSvc := memory.NewService(memStore, embedder)
	memHandlers := memory.NewHandlers(memSvc)

	planStore := plan.NewStore(db)
	planSvc := plan.NewService(planStore, memSvc.DeletePlanCascade)
	planHandlers := plan.NewHandlers(planSvc)

	router := gin.New()
	router.Use(gin.Recovery())
	memHandlers.Register(router)
	planHandlers.Register(router)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		slog.Info("memory service listening", "port", cfg.Port, "embedding_backend", cfg.EmbeddingBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("memory service: listen failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("memory service shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("memory service: graceful shutdown failed", "error", err)
	}
}
