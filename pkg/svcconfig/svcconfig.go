// Package svcconfig loads the three binaries' configuration. Each binary
// accepts a closed set of environment variables (§6.5) and, optionally, a
// YAML file of the same shape for settings that change rarely (CORS
// origins, retention windows) — mirroring the teacher's two-path config
// loading (tarsy.yaml merged with env-driven overrides), generalized from
// the teacher's agent/MCP/LLM-specific YAML to this platform's own
// settings.
package svcconfig

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/soorma-platform/soorma/pkg/dbutil"
)

// AdapterKind selects the Event Service's bus backend.
type AdapterKind string

const (
	AdapterMemory AdapterKind = "memory"
	AdapterNATS   AdapterKind = "nats"
)

// EventServiceConfig holds cmd/eventsvc settings.
type EventServiceConfig struct {
	Adapter                 AdapterKind   `yaml:"adapter"`
	NATSURL                 string        `yaml:"nats_url"`
	Port                    string        `yaml:"port"`
	StreamMaxQueueSize      int           `yaml:"stream_max_queue_size"`
	StreamHeartbeatInterval time.Duration `yaml:"stream_heartbeat_interval"`
}

// DefaultEventServiceConfig returns the built-in defaults merged under any
// user-supplied YAML.
func DefaultEventServiceConfig() *EventServiceConfig {
	return &EventServiceConfig{
		Adapter:                 AdapterMemory,
		Port:                    "8080",
		StreamMaxQueueSize:      1024,
		StreamHeartbeatInterval: 30 * time.Second,
	}
}

// LoadEventServiceConfig loads defaults, merges an optional YAML file, then
// applies env-var overrides — both paths are wired, matching the teacher's
// support for .env plus YAML.
func LoadEventServiceConfig(yamlPath string) (*EventServiceConfig, error) {
	cfg := DefaultEventServiceConfig()
	if err := mergeYAML(yamlPath, cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("ADAPTER"); v != "" {
		cfg.Adapter = AdapterKind(v)
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v, ok := envInt("STREAM_MAX_QUEUE_SIZE"); ok {
		cfg.StreamMaxQueueSize = v
	}
	if v, ok := envDuration("STREAM_HEARTBEAT_INTERVAL_S"); ok {
		cfg.StreamHeartbeatInterval = v
	}
	return cfg, nil
}

// RegistryConfig holds cmd/registrysvc settings.
type RegistryConfig struct {
	DatabaseURL               string        `yaml:"database_url"`
	Port                      string        `yaml:"port"`
	AgentTTL                  time.Duration `yaml:"agent_ttl"`
	AgentCleanupInterval      time.Duration `yaml:"agent_cleanup_interval"`
	CORSOrigins               []string      `yaml:"cors_origins"`
	IsProd                    bool          `yaml:"is_prod"`
}

// DefaultRegistryConfig returns the built-in defaults.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		Port:                 "8081",
		AgentTTL:             300 * time.Second,
		AgentCleanupInterval: 60 * time.Second,
	}
}

// LoadRegistryConfig mirrors LoadEventServiceConfig's two-path loading.
func LoadRegistryConfig(yamlPath string) (*RegistryConfig, error) {
	cfg := DefaultRegistryConfig()
	if err := mergeYAML(yamlPath, cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v, ok := envDuration("AGENT_TTL_SECONDS"); ok {
		cfg.AgentTTL = v
	}
	if v, ok := envDuration("AGENT_CLEANUP_INTERVAL_SECONDS"); ok {
		cfg.AgentCleanupInterval = v
	}
	if v := os.Getenv("IS_PROD"); v != "" {
		cfg.IsProd = v == "true" || v == "1"
	}
	return cfg, nil
}

// EmbeddingBackend selects the Memory Service's embedding provider.
type EmbeddingBackend string

const (
	EmbeddingLocal EmbeddingBackend = "local"
	EmbeddingHTTP  EmbeddingBackend = "http"
)

// MemoryConfig holds cmd/memorysvc settings.
type MemoryConfig struct {
	DatabaseURL       string           `yaml:"database_url"`
	Port              string           `yaml:"port"`
	EmbeddingModelDim int              `yaml:"embedding_model_dim"`
	EmbeddingBackend  EmbeddingBackend `yaml:"embedding_backend"`
	EmbeddingURL      string           `yaml:"embedding_url"`
}

// DefaultMemoryConfig returns the built-in defaults.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		Port:              "8082",
		EmbeddingModelDim: 256,
		EmbeddingBackend:  EmbeddingLocal,
	}
}

// LoadMemoryConfig mirrors LoadEventServiceConfig's two-path loading.
func LoadMemoryConfig(yamlPath string) (*MemoryConfig, error) {
	cfg := DefaultMemoryConfig()
	if err := mergeYAML(yamlPath, cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v, ok := envInt("EMBEDDING_MODEL_DIM"); ok {
		cfg.EmbeddingModelDim = v
	}
	if v := os.Getenv("EMBEDDING_BACKEND"); v != "" {
		cfg.EmbeddingBackend = EmbeddingBackend(v)
	}
	if v := os.Getenv("EMBEDDING_URL"); v != "" {
		cfg.EmbeddingURL = v
	}
	return cfg, nil
}

// ParseDatabaseURL splits a postgres:// URL into a dbutil.Config. Accepts
// the same DSN shape golang-migrate and pgx both understand.
func ParseDatabaseURL(raw string) (dbutil.Config, error) {
	return parsePostgresURL(raw)
}

// mergeYAML reads path (if non-empty and present) and merges its fields
// over dst's already-populated defaults using mergo, exactly as the
// teacher's loader merges tarsy.yaml's Queue block over built-in defaults.
func mergeYAML(path string, dst any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	data = expandEnv(data)

	// Decode into a fresh value of the same concrete type so mergo has two
	// structs of matching shape to merge.
	userCfg := reflect.New(reflect.TypeOf(dst).Elem()).Interface()
	if err := yaml.Unmarshal(data, userCfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := mergo.Merge(dst, userCfg, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge config file %s: %w", path, err)
	}
	return nil
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// expandEnv expands ${VAR}/$VAR references in YAML content, matching the
// teacher's pkg/config/envexpand.go ExpandEnv.
func expandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), os.Getenv))
}
