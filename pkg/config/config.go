package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/therealutkarshpriyadarshi/vocabtree/internal/clustering"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/bow"
	"github.com/therealutkarshpriyadarshi/vocabtree/pkg/observability"
)

// Config holds all configuration
type Config struct {
	Tree      TreeConfig      `yaml:"tree"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// TreeConfig holds vocabulary tree build configuration
type TreeConfig struct {
	Branching     int    `yaml:"branching"`      // Centers per node (default: 10)
	Depth         int    `yaml:"depth"`          // Levels below the root (default: 6)
	Chooser       string `yaml:"chooser"`        // random, gonzalez or kmeanspp
	MaxIterations int    `yaml:"max_iterations"` // Lloyd iteration cap
	Seed          int64  `yaml:"seed"`
	Binary        bool   `yaml:"binary"` // Binary descriptors with Hamming distance
}

// DatabaseConfig holds BoW database file locations and preparation settings
type DatabaseConfig struct {
	TreePath     string `yaml:"tree_path"`
	InvertedPath string `yaml:"inverted_path"`
	DirectPath   string `yaml:"direct_path"`
	Weighting    string `yaml:"weighting"` // binary or tfidf
	Norm         string `yaml:"norm"`      // l1 or l2
	Workers      int    `yaml:"workers"`   // Parallel quantization workers
}

// ServerConfig holds gRPC and HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`      // Server host (default: "0.0.0.0")
	Port            int           `yaml:"port"`      // gRPC port (default: 50051)
	HTTPPort        int           `yaml:"http_port"` // REST port (default: 8080)
	MaxConnections  int           `yaml:"max_connections"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	EnableTLS       bool          `yaml:"enable_tls"`
	CertFile        string        `yaml:"cert_file"`
	KeyFile         string        `yaml:"key_file"`
}

// CacheConfig holds query score cache configuration
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// AuthConfig holds HTTP bearer token configuration
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
}

// RateLimitConfig holds HTTP rate limit configuration
type RateLimitConfig struct {
	Enabled        bool    `yaml:"enabled"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	Burst          int     `yaml:"burst"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR
	Format string `yaml:"format"` // json or console
}

// NewLogger builds the logger described by the log section
func (c LogConfig) NewLogger(output io.Writer) *observability.Logger {
	return observability.NewLoggerWithFormat(observability.ParseLogLevel(c.Level), observability.ParseFormat(c.Format), output)
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Tree: TreeConfig{
			Branching:     10,
			Depth:         6,
			Chooser:       clustering.KMeansPPChooser.String(),
			MaxIterations: clustering.DefaultMaxIterations,
			Seed:          42,
		},
		Database: DatabaseConfig{
			TreePath:     "./data/tree.yaml.gz",
			InvertedPath: "./data/inverted.yaml.gz",
			DirectPath:   "./data/direct.yaml.gz",
			Weighting:    bow.TFIDFWeighting.String(),
			Norm:         bow.L1Norm.String(),
			Workers:      4,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            50051,
			HTTPPort:        8080,
			MaxConnections:  1000,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Capacity: 1000,
			TTL:      5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSec: 100,
			Burst:          200,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "json",
		},
	}
}

// LoadFile loads configuration from a YAML file on top of the defaults.
// Environment variables override file values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := Default()
	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	// Tree configuration
	if k := os.Getenv("VOCAB_BRANCHING"); k != "" {
		if v, err := strconv.Atoi(k); err == nil {
			cfg.Tree.Branching = v
		}
	}
	if depth := os.Getenv("VOCAB_DEPTH"); depth != "" {
		if v, err := strconv.Atoi(depth); err == nil {
			cfg.Tree.Depth = v
		}
	}
	if chooser := os.Getenv("VOCAB_CHOOSER"); chooser != "" {
		cfg.Tree.Chooser = chooser
	}
	if iters := os.Getenv("VOCAB_MAX_ITERATIONS"); iters != "" {
		if v, err := strconv.Atoi(iters); err == nil {
			cfg.Tree.MaxIterations = v
		}
	}
	if seed := os.Getenv("VOCAB_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Tree.Seed = v
		}
	}
	if binary := os.Getenv("VOCAB_BINARY"); binary != "" {
		if v, err := strconv.ParseBool(binary); err == nil {
			cfg.Tree.Binary = v
		}
	}

	// Database configuration
	if path := os.Getenv("VOCAB_TREE_PATH"); path != "" {
		cfg.Database.TreePath = path
	}
	if path := os.Getenv("VOCAB_INVERTED_PATH"); path != "" {
		cfg.Database.InvertedPath = path
	}
	if path := os.Getenv("VOCAB_DIRECT_PATH"); path != "" {
		cfg.Database.DirectPath = path
	}
	if weighting := os.Getenv("VOCAB_WEIGHTING"); weighting != "" {
		cfg.Database.Weighting = weighting
	}
	if norm := os.Getenv("VOCAB_NORM"); norm != "" {
		cfg.Database.Norm = norm
	}
	if workers := os.Getenv("VOCAB_WORKERS"); workers != "" {
		if v, err := strconv.Atoi(workers); err == nil {
			cfg.Database.Workers = v
		}
	}

	// Server configuration
	if host := os.Getenv("VOCAB_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("VOCAB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if port := os.Getenv("VOCAB_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.HTTPPort = p
		}
	}
	if maxConn := os.Getenv("VOCAB_MAX_CONNECTIONS"); maxConn != "" {
		if mc, err := strconv.Atoi(maxConn); err == nil {
			cfg.Server.MaxConnections = mc
		}
	}
	if timeout := os.Getenv("VOCAB_REQUEST_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			cfg.Server.RequestTimeout = t
		}
	}
	if enableTLS := os.Getenv("VOCAB_ENABLE_TLS"); enableTLS == "true" {
		cfg.Server.EnableTLS = true
		cfg.Server.CertFile = os.Getenv("VOCAB_TLS_CERT")
		cfg.Server.KeyFile = os.Getenv("VOCAB_TLS_KEY")
	}

	// Cache configuration
	if cacheEnabled := os.Getenv("VOCAB_CACHE_ENABLED"); cacheEnabled == "false" {
		cfg.Cache.Enabled = false
	}
	if capacity := os.Getenv("VOCAB_CACHE_CAPACITY"); capacity != "" {
		if c, err := strconv.Atoi(capacity); err == nil {
			cfg.Cache.Capacity = c
		}
	}
	if ttl := os.Getenv("VOCAB_CACHE_TTL"); ttl != "" {
		if t, err := time.ParseDuration(ttl); err == nil {
			cfg.Cache.TTL = t
		}
	}

	// Auth and rate limit configuration
	if auth := os.Getenv("VOCAB_AUTH_ENABLED"); auth == "true" {
		cfg.Auth.Enabled = true
	}
	if secret := os.Getenv("VOCAB_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if rl := os.Getenv("VOCAB_RATE_LIMIT_ENABLED"); rl == "true" {
		cfg.RateLimit.Enabled = true
	}
	if rps := os.Getenv("VOCAB_RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimit.RequestsPerSec = v
		}
	}
	if burst := os.Getenv("VOCAB_RATE_LIMIT_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			cfg.RateLimit.Burst = v
		}
	}

	// Log configuration
	if level := os.Getenv("VOCAB_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := os.Getenv("VOCAB_LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Tree validation
	if c.Tree.Branching < 2 {
		return fmt.Errorf("invalid branching factor: %d (must be >= 2)", c.Tree.Branching)
	}
	if c.Tree.Depth < 1 {
		return fmt.Errorf("invalid depth: %d (must be >= 1)", c.Tree.Depth)
	}
	if _, err := clustering.ParseChooserType(c.Tree.Chooser); err != nil {
		return err
	}
	if c.Tree.MaxIterations < 1 {
		return fmt.Errorf("invalid max iterations: %d (must be > 0)", c.Tree.MaxIterations)
	}

	// Database validation
	if c.Database.TreePath == "" {
		return fmt.Errorf("tree path not specified")
	}
	if _, err := bow.ParseWeightingScheme(c.Database.Weighting); err != nil {
		return err
	}
	if _, err := bow.ParseNormType(c.Database.Norm); err != nil {
		return err
	}
	if c.Database.Workers < 1 {
		return fmt.Errorf("invalid workers: %d (must be > 0)", c.Database.Workers)
	}

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d (must be 1-65535)", c.Server.HTTPPort)
	}
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("invalid max connections: %d (must be > 0)", c.Server.MaxConnections)
	}
	if c.Server.EnableTLS {
		if c.Server.CertFile == "" || c.Server.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
	}

	// Cache validation
	if c.Cache.Enabled && c.Cache.Capacity < 1 {
		return fmt.Errorf("invalid cache capacity: %d (must be > 0)", c.Cache.Capacity)
	}

	// Auth and rate limit validation
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but JWT secret not specified")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSec <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("invalid rate limit: %v req/s, burst %d", c.RateLimit.RequestsPerSec, c.RateLimit.Burst)
	}

	// Log validation
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log format: %q (must be json or console)", c.Log.Format)
	}

	return nil
}

// Address returns the gRPC server address (host:port)
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HTTPAddress returns the REST server address (host:port)
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}
