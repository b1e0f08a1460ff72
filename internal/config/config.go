// Package config loads gateway settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted by Config.Transport.
const (
	TransportStdio = "stdio"
	TransportGRPC  = "grpc"
	TransportHTTP  = "http"
	TransportAll   = "all"
)

// Config is immutable once Load returns.
type Config struct {
	SQL SQLConfig `yaml:"sql"`

	// ReadOnly disables every mutating operation.
	ReadOnly bool `yaml:"readonly"`

	Transport string `yaml:"transport"`
	GRPCPort  int    `yaml:"grpc_port"`
	HTTPPort  int    `yaml:"http_port"`
	LogLevel  string `yaml:"log_level"`

	// QueryTimeout bounds one statement run. Zero disables it.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	ClickHouseDSN string        `yaml:"clickhouse_dsn,omitempty"`
	PostgresDSN   string        `yaml:"postgres_dsn,omitempty"`
	AuthCacheTTL  time.Duration `yaml:"auth_cache_ttl"`

	// APIKeys restricts the static authenticator used when PostgresDSN is
	// empty. Empty accepts any well-formed key.
	APIKeys []string `yaml:"api_keys,omitempty"`
}

// SQLConfig is the SQL Server endpoint.
type SQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		SQL: SQLConfig{
			Host:     "localhost",
			Port:     1433,
			Database: "master",
		},
		Transport:    TransportStdio,
		GRPCPort:     50061,
		HTTPPort:     8088,
		LogLevel:     "info",
		QueryTimeout: 30 * time.Second,
		AuthCacheTTL: 30 * time.Second,
	}
}

// Load builds a Config. path may be empty, in which case SQLGATE_CONFIG is
// consulted; with neither set only defaults and environment apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("SQLGATE_CONFIG")
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv keeps the variable names of the stdio server this gateway
// replaces, so existing client launch configs keep working.
func (c *Config) applyEnv() {
	c.SQL.Host = envOrDefault("SERVER_NAME", c.SQL.Host)
	c.SQL.Port = envOrDefaultInt("PORT", c.SQL.Port)
	c.SQL.Database = envOrDefault("DATABASE_NAME", c.SQL.Database)
	c.SQL.User = envOrDefault("SQL_USERNAME", c.SQL.User)
	c.SQL.Password = envOrDefault("SQL_PASSWORD", c.SQL.Password)
	c.ReadOnly = envOrDefaultBool("READONLY", c.ReadOnly)

	c.Transport = envOrDefault("SQLGATE_TRANSPORT", c.Transport)
	c.GRPCPort = envOrDefaultInt("SQLGATE_GRPC_PORT", c.GRPCPort)
	c.HTTPPort = envOrDefaultInt("SQLGATE_HTTP_PORT", c.HTTPPort)
	c.LogLevel = envOrDefault("SQLGATE_LOG_LEVEL", c.LogLevel)

	timeoutMs := envOrDefaultInt("SQLGATE_QUERY_TIMEOUT_MS", int(c.QueryTimeout/time.Millisecond))
	c.QueryTimeout = time.Duration(timeoutMs) * time.Millisecond

	c.ClickHouseDSN = envOrDefault("CLICKHOUSE_DSN", c.ClickHouseDSN)
	c.PostgresDSN = envOrDefault("POSTGRES_DSN", c.PostgresDSN)

	ttl := envOrDefaultInt("SQLGATE_AUTH_CACHE_TTL_S", int(c.AuthCacheTTL/time.Second))
	c.AuthCacheTTL = time.Duration(ttl) * time.Second

	if v := os.Getenv("SQLGATE_API_KEYS"); v != "" {
		c.APIKeys = nil
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.APIKeys = append(c.APIKeys, k)
			}
		}
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SQL.Host) == "" {
		return fmt.Errorf("sql host is required")
	}
	if err := checkPort("sql port", c.SQL.Port); err != nil {
		return err
	}
	if strings.TrimSpace(c.SQL.Database) == "" {
		return fmt.Errorf("sql database is required")
	}
	switch c.Transport {
	case TransportStdio, TransportGRPC, TransportHTTP, TransportAll:
	default:
		return fmt.Errorf("unknown transport %q (want stdio, grpc, http or all)", c.Transport)
	}
	if err := checkPort("grpc port", c.GRPCPort); err != nil {
		return err
	}
	if err := checkPort("http port", c.HTTPPort); err != nil {
		return err
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query timeout must not be negative, got %s", c.QueryTimeout)
	}
	if c.AuthCacheTTL < 0 {
		return fmt.Errorf("auth cache ttl must not be negative, got %s", c.AuthCacheTTL)
	}
	return nil
}

func checkPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d out of range", name, port)
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// envOrDefaultBool treats only "true" (any case) as true, matching how
// READONLY has always been read.
func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return defaultVal
}
