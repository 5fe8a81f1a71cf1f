// Package config loads process configuration for the Explo persistence
// and domain core: storage backend selection, connection parameters for
// both backends, the optional Redis read cache, and logging level.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend selects which store.Backend implementation the process wires
// up (spec §6 DATABASE_BACKEND).
type Backend string

const (
	// BackendDocstore is the document-store (MongoDB) backend — the
	// direct descendant of the original NDB-backed deployment.
	BackendDocstore Backend = "docstore"
	// BackendSQLStore is the relational (PostgreSQL) backend.
	BackendSQLStore Backend = "sqlstore"
)

// Config holds all configuration for the Explo services (apiserver and
// statsjob share this struct).
type Config struct {
	// Storage
	DatabaseBackend Backend        `yaml:"database_backend"`
	DatabaseURL     string         `yaml:"database_url"` // required when DatabaseBackend == sqlstore
	Mongo           MongoConfig    `yaml:"mongo"`
	Postgres        DatabaseConfig `yaml:"postgres"`

	// Identity of the deployment (mirrors spec §6 PROJECT_ID)
	ProjectID string `yaml:"project_id"`

	// Optional read cache fronting the document store
	Redis RedisConfig `yaml:"redis"`

	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error (default: info)

	// Stats pipeline
	Stats StatsConfig `yaml:"stats"`
}

// MongoConfig holds document-store connection parameters.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// Connection pool parameters (optional, defaults from pgxpool apply if not set)
	MaxConns          int32  `yaml:"max_conns"`           // default: max(4, NumCPU)
	MinConns          int32  `yaml:"min_conns"`           // default: 0
	MaxConnLifetime   string `yaml:"max_conn_lifetime"`   // duration, e.g. "1h"
	MaxConnIdleTime   string `yaml:"max_conn_idle_time"`  // duration, e.g. "30m"
	HealthCheckPeriod string `yaml:"health_check_period"` // duration, e.g. "1m"
}

// DSN returns the PostgreSQL connection string, preferring DatabaseURL
// when the caller has set one directly (spec §6 DATABASE_URL).
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	d := c.Postgres
	base := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)

	var params []string
	if d.MaxConns > 0 {
		params = append(params, fmt.Sprintf("pool_max_conns=%d", d.MaxConns))
	}
	if d.MinConns > 0 {
		params = append(params, fmt.Sprintf("pool_min_conns=%d", d.MinConns))
	}
	if d.MaxConnLifetime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_lifetime=%s", d.MaxConnLifetime))
	}
	if d.MaxConnIdleTime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_idle_time=%s", d.MaxConnIdleTime))
	}
	if d.HealthCheckPeriod != "" {
		params = append(params, fmt.Sprintf("pool_health_check_period=%s", d.HealthCheckPeriod))
	}
	if len(params) > 0 {
		return base + "&" + strings.Join(params, "&")
	}
	return base
}

// RedisConfig holds the optional read-cache client parameters. Host
// empty means the cache is disabled and reads go straight to the
// document store.
type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DB   int    `yaml:"db"`
}

// Enabled reports whether a Redis read cache is configured.
func (r RedisConfig) Enabled() bool { return r.Host != "" }

// Addr returns the host:port address for a redis client.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

// StatsConfig holds parameters for the nightly stats/rating pipeline.
type StatsConfig struct {
	// TopN is how many entries RebuildRatings keeps per Elo kind.
	TopN int `yaml:"top_n"`
}

// Default returns Config with sensible defaults, mirroring the teacher's
// DefaultLoginServer pattern.
func Default() Config {
	return Config{
		DatabaseBackend: BackendDocstore,
		Mongo: MongoConfig{
			URI:      "mongodb://127.0.0.1:27017",
			Database: "explo",
		},
		Postgres: DatabaseConfig{
			Host:    "127.0.0.1",
			Port:    5432,
			User:    "explo",
			Password: "explo",
			DBName:  "explo",
			SSLMode: "disable",
		},
		LogLevel: "info",
		Stats: StatsConfig{
			TopN: 100,
		},
	}
}

// Load loads config from a YAML file, then applies environment variable
// overrides (spec §6). If the file doesn't exist, defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays the spec §6 environment variables onto cfg, so a
// container deployment can configure the process without a YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_BACKEND"); v != "" {
		switch v {
		case "ndb":
			cfg.DatabaseBackend = BackendDocstore
		case "postgresql":
			cfg.DatabaseBackend = BackendSQLStore
		default:
			cfg.DatabaseBackend = Backend(v)
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("PROJECT_ID"); v != "" {
		cfg.ProjectID = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Redis.Port)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
