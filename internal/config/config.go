package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Embedding     EmbeddingConfig     `json:"embedding"`
	Simulation    SimulationConfig    `json:"simulation"`
	Consolidation ConsolidationConfig `json:"consolidation"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Arango ArangoConfig `json:"arango"`
	Redis  RedisConfig  `json:"redis"`
}

type ArangoConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Endpoint returns the HTTP endpoint for the ArangoDB server.
func (c ArangoConfig) Endpoint() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

type RedisConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns the host:port address for the Redis server.
// An empty host means Redis is disabled.
func (c RedisConfig) Addr() string {
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"` // "api", "ollama" or "hash"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

type SimulationConfig struct {
	TickMillis int     `json:"tick_millis"`
	Speed      float64 `json:"speed"`
}

type ConsolidationConfig struct {
	Enabled       bool `json:"enabled"`
	IntervalHours int  `json:"interval_hours"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration built purely from environment variables,
// used when no config file is present.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:     envInt("PORT", 8080),
			LogLevel: envStr("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Arango: ArangoConfig{
				Host:     envStr("ARANGO_HOST", "localhost"),
				Port:     envInt("ARANGO_PORT", 8529),
				Database: envStr("ARANGO_DATABASE", "agentic_worm_memory"),
				Username: envStr("ARANGO_USERNAME", ""),
				Password: envStr("ARANGO_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host: envStr("REDIS_HOST", ""),
				Port: envInt("REDIS_PORT", 6379),
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  envStr("EMBEDDING_PROVIDER", "hash"),
			Endpoint:  envStr("EMBEDDING_ENDPOINT", ""),
			Model:     envStr("EMBEDDING_MODEL", "all-minilm"),
			APIKey:    envStr("EMBEDDING_API_KEY", ""),
			Dimension: envInt("EMBEDDING_DIMENSION", 384),
		},
		Simulation: SimulationConfig{
			TickMillis: envInt("SIMULATION_TICK_MILLIS", 250),
			Speed:      envFloat("SIMULATION_SPEED", 1.0),
		},
		Consolidation: ConsolidationConfig{
			Enabled:       envBool("CONSOLIDATION_ENABLED", true),
			IntervalHours: envInt("CONSOLIDATION_INTERVAL_HOURS", 24),
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Arango.Host == "" {
		c.Database.Arango.Host = "localhost"
	}
	if c.Database.Arango.Port == 0 {
		c.Database.Arango.Port = 8529
	}
	if c.Database.Arango.Database == "" {
		c.Database.Arango.Database = "agentic_worm_memory"
	}
	if c.Database.Redis.Port == 0 {
		c.Database.Redis.Port = 6379
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "hash"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 384
	}
	if c.Simulation.TickMillis == 0 {
		c.Simulation.TickMillis = 250
	}
	if c.Simulation.Speed == 0 {
		c.Simulation.Speed = 1.0
	}
	if c.Consolidation.IntervalHours == 0 {
		c.Consolidation.IntervalHours = 24
	}
}

func envStr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(name string, fallback float64) float64 {
	if v := os.Getenv(name); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	switch os.Getenv(name) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}
