// Package config provides environment-aware configuration management for
// the ingestion and graph-projection core.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/chainledger/musicgraph/infrastructure/runtime"
)

// Mode selects the ingestion runtime posture (spec §6 INGEST_MODE).
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// Config holds every environment-tunable value the core recognizes (spec §6),
// plus the ingestion tuning §5's concurrency model requires.
type Config struct {
	// Graph store connection (GRAPH_URI/GRAPH_USER/GRAPH_PASSWORD, with
	// NEO4J_* aliases accepted).
	GraphURI      string
	GraphUser     string
	GraphPassword string

	// AllowUnsignedEvents is test-only; signature verification of anchored
	// events happens upstream of this core.
	AllowUnsignedEvents bool
	RequireAccountAuth  bool
	Mode                Mode

	// Ingestion tuning.
	Workers        int
	DedupCacheSize int
	GraphPoolSize  int
	RetryBudget    time.Duration
	RetryBackoff   time.Duration
	ReconcileCron  string

	// Logging.
	LogLevel  string
	LogFormat string
}

// Load loads a .env file (dev convenience) and reads the recognized
// environment variables over the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: could not load .env: %v\n", err)
	}

	cfg := defaultConfig()
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		GraphUser:          "neo4j",
		RequireAccountAuth: true,
		Mode:               ModeProd,
		Workers:            4,
		DedupCacheSize:     100_000,
		GraphPoolSize:      100,
		RetryBudget:        30 * time.Second,
		RetryBackoff:       2 * time.Second,
		ReconcileCron:      "@every 1m",
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

func (c *Config) loadFromEnv() error {
	c.GraphURI = getEnvAlias("", "GRAPH_URI", "NEO4J_URI")
	c.GraphUser = getEnvAlias(c.GraphUser, "GRAPH_USER", "NEO4J_USER")
	c.GraphPassword = getEnvAlias("", "GRAPH_PASSWORD", "NEO4J_PASSWORD")

	c.AllowUnsignedEvents = runtime.ResolveBool(c.AllowUnsignedEvents, "ALLOW_UNSIGNED_EVENTS")
	c.RequireAccountAuth = runtime.ResolveBool(c.RequireAccountAuth, "REQUIRE_ACCOUNT_AUTH")

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("INGEST_MODE"))); v != "" {
		switch Mode(v) {
		case ModeDev, ModeProd:
			c.Mode = Mode(v)
		default:
			return fmt.Errorf("invalid INGEST_MODE: %s (must be dev or prod)", v)
		}
	}

	c.Workers = runtime.ResolveInt(0, "INGEST_WORKERS", c.Workers)
	c.DedupCacheSize = runtime.ResolveInt(0, "INGEST_DEDUP_CACHE_SIZE", c.DedupCacheSize)
	c.GraphPoolSize = runtime.ResolveInt(0, "INGEST_GRAPH_POOL_SIZE", c.GraphPoolSize)
	c.RetryBudget = runtime.ResolveDuration(0, "INGEST_RETRY_BUDGET", c.RetryBudget)

	c.LogLevel = runtime.ResolveString("", "LOG_LEVEL", c.LogLevel)
	c.LogFormat = runtime.ResolveString("", "LOG_FORMAT", c.LogFormat)

	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.GraphURI == "" && c.Mode == ModeProd {
		return fmt.Errorf("GRAPH_URI is required in prod mode")
	}
	if c.Workers < 1 || c.Workers > 256 {
		return fmt.Errorf("INGEST_WORKERS must be between 1 and 256, got %d", c.Workers)
	}
	if c.DedupCacheSize < 1 {
		return fmt.Errorf("INGEST_DEDUP_CACHE_SIZE must be positive, got %d", c.DedupCacheSize)
	}
	if c.GraphPoolSize < 1 {
		return fmt.Errorf("INGEST_GRAPH_POOL_SIZE must be positive, got %d", c.GraphPoolSize)
	}
	return nil
}

// IsDev reports whether the configured mode allows test-only relaxations.
func (c *Config) IsDev() bool { return c.Mode == ModeDev }

// Helper functions

func getEnvAlias(defaultValue string, keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return defaultValue
}
