/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string
	DBBackend   DatabaseBackend
	DBDSN       string

	JWTSigningKey string
	MetricsBind   string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Redis snapshot cache
	CacheEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS event mirror
	EventBusEnabled bool
	NATSURL         string
	NodeID          string

	// Network parameter file (YAML); empty means built-in defaults.
	NetworkParamsFile string
	Network           NetworkParams
}

// NetworkParams are the execution-network constants the engine runs
// against. They are deployment facts, not tunables, so they live in a
// versioned YAML file rather than the environment.
type NetworkParams struct {
	GasCeiling          uint64    `yaml:"gas_ceiling"`
	GasPrice            uint64    `yaml:"gas_price"`
	BlockTime           int       `yaml:"block_time_seconds"`
	Genesis             time.Time `yaml:"genesis"`
	ConfirmationBlocks  uint64    `yaml:"confirmation_latency_blocks"`
	ConfirmationSeconds uint64    `yaml:"confirmation_latency_seconds"`
}

// DefaultNetworkParams returns the built-in network constants.
func DefaultNetworkParams() NetworkParams {
	return NetworkParams{
		GasCeiling:          3_141_592,
		GasPrice:            20,
		BlockTime:           14,
		Genesis:             time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		ConfirmationBlocks:  1,
		ConfirmationSeconds: 15,
	}
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("SKULD_ENV", "development"),
		HTTPBind:    getEnv("SKULD_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("SKULD_HTTP_PORT", 8080),
		BaseURL:     getEnv("SKULD_BASE_URL", ""),
		DBBackend:   DatabaseBackend(getEnv("SKULD_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:       getEnv("SKULD_DB_DSN", ""),

		JWTSigningKey: getEnv("SKULD_JWT_SIGNING_KEY", ""),
		MetricsBind:   getEnv("SKULD_METRICS_BIND", "127.0.0.1:9000"),

		TracingEnabled:    getEnvBool("SKULD_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("SKULD_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("SKULD_TRACING_SAMPLE_RATE", 1.0),

		CacheEnabled:  getEnvBool("SKULD_CACHE_ENABLED", false),
		RedisAddr:     getEnv("SKULD_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("SKULD_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("SKULD_REDIS_DB", 0),

		EventBusEnabled: getEnvBool("SKULD_EVENTBUS_ENABLED", false),
		NATSURL:         getEnv("SKULD_NATS_URL", "nats://localhost:4222"),
		NodeID:          getEnv("SKULD_NODE_ID", ""),

		NetworkParamsFile: getEnv("SKULD_NETWORK_PARAMS_FILE", ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SKULD_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("SKULD_JWT_SIGNING_KEY must be provided")
	}

	params, err := loadNetworkParams(cfg.NetworkParamsFile)
	if err != nil {
		return nil, err
	}
	cfg.Network = params

	return cfg, nil
}

func loadNetworkParams(path string) (NetworkParams, error) {
	params := DefaultNetworkParams()
	if path == "" {
		return params, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("read network params %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("parse network params %s: %w", path, err)
	}
	if params.GasCeiling == 0 {
		return params, fmt.Errorf("network params %s: gas_ceiling must be positive", path)
	}
	if params.BlockTime <= 0 {
		return params, fmt.Errorf("network params %s: block_time_seconds must be positive", path)
	}
	return params, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}
