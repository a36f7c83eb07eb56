package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	memcache "github.com/pior/memcache-async"
	"github.com/pior/memcache-async/codec"
)

type fileConfig struct {
	Addr               string        `toml:"addr"`
	ConnectTimeout     string        `toml:"connect_timeout"`
	LogLevel           string        `toml:"log_level"`
	WireLogging        bool          `toml:"wire_logging"`
	CompressionMinSize int           `toml:"compression_min_size"`
	Breaker            breakerConfig `toml:"breaker"`
}

type breakerConfig struct {
	MaxRequests uint32 `toml:"max_requests"`
	Interval    string `toml:"interval"`
	Timeout     string `toml:"timeout"`
}

type cliConfig struct {
	Addr           string
	ConnectTimeout time.Duration
	LogLevel       zapcore.Level
	WireLogging    bool

	// CompressionMinSize enables snappy compression of values at least this
	// large. Zero disables compression.
	CompressionMinSize int

	BreakerEnabled     bool
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

func defaultConfig() cliConfig {
	return cliConfig{
		Addr:               "localhost:11211",
		ConnectTimeout:     memcache.DefaultConnectTimeout,
		LogLevel:           zapcore.InfoLevel,
		BreakerMaxRequests: 1,
		BreakerInterval:    time.Minute,
		BreakerTimeout:     10 * time.Second,
	}
}

func loadConfig(path string) (cliConfig, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("addr") {
		if addr := strings.TrimSpace(raw.Addr); addr != "" {
			cfg.Addr = addr
		}
	}

	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return cliConfig{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}

	if meta.IsDefined("log_level") {
		level, err := zapcore.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return cliConfig{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = level
	}

	if meta.IsDefined("wire_logging") {
		cfg.WireLogging = raw.WireLogging
	}

	if meta.IsDefined("compression_min_size") {
		if raw.CompressionMinSize < 0 {
			return cliConfig{}, fmt.Errorf("compression_min_size must not be negative")
		}
		cfg.CompressionMinSize = raw.CompressionMinSize
	}

	if meta.IsDefined("breaker") {
		cfg.BreakerEnabled = true
	}

	if meta.IsDefined("breaker", "max_requests") {
		cfg.BreakerMaxRequests = raw.Breaker.MaxRequests
	}

	if meta.IsDefined("breaker", "interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Breaker.Interval))
		if err != nil {
			return cliConfig{}, fmt.Errorf("parse breaker.interval: %w", err)
		}
		cfg.BreakerInterval = d
	}

	if meta.IsDefined("breaker", "timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Breaker.Timeout))
		if err != nil {
			return cliConfig{}, fmt.Errorf("parse breaker.timeout: %w", err)
		}
		cfg.BreakerTimeout = d
	}

	return cfg, nil
}

// clientConfig builds the client configuration.
func (c cliConfig) clientConfig(logger *zap.Logger) memcache.Config {
	config := memcache.Config{
		ConnectTimeout: c.ConnectTimeout,
		Logger:         logger,
		WireLogging:    c.WireLogging,
		OnClose: func(err error) {
			if err != nil {
				logger.Warn("connection closed", zap.Error(err))
			}
		},
		OnUnsolicited: func(data []byte) {
			logger.Warn("unsolicited data from server", zap.ByteString("data", data))
		},
	}

	if c.CompressionMinSize > 0 {
		snappy := codec.NewSnappy(codec.Default{})
		snappy.MinSize = c.CompressionMinSize
		config.Codec = snappy
	}

	if c.BreakerEnabled {
		config.NewCircuitBreaker = memcache.NewCircuitBreakerConfig(c.BreakerMaxRequests, c.BreakerInterval, c.BreakerTimeout)
	}

	return config
}
