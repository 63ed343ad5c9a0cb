// Package config loads the sidecar's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/durabletask-sidecar/internal/log"
	"gopkg.in/yaml.v3"
)

// Config is the sidecar's top-level configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Health     HealthConfig     `yaml:"health"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// GRPCConfig controls the worker-facing gRPC listener.
type GRPCConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// HealthConfig controls the health/ready/metrics HTTP listener.
type HealthConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DispatcherConfig holds the dispatch-loop and bridge tunables.
type DispatcherConfig struct {
	MaxConcurrentOrchestratorWorkItems int           `yaml:"max_concurrent_orchestrator_work_items"`
	MaxConcurrentActivityWorkItems     int           `yaml:"max_concurrent_activity_work_items"`
	DelayAfterFetchError               time.Duration `yaml:"delay_after_fetch_error"`
	ReplyTimeout                       time.Duration `yaml:"reply_timeout"`
	StopGracePeriod                    time.Duration `yaml:"stop_grace_period"`

	// EmbedThresholdBytes is the past-events serialized-size bound past
	// which, when the worker advertises history streaming, events are
	// streamed instead of embedded in the work item.
	EmbedThresholdBytes int `yaml:"embed_threshold_bytes"`
	// ChunkBytes bounds the size of each streamed history chunk.
	ChunkBytes int `yaml:"chunk_bytes"`
}

// Default returns the configuration used when no file is loaded or a
// loaded file omits a field.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", JSON: false},
		GRPC: GRPCConfig{
			ListenAddr: "127.0.0.1:7890",
		},
		Health: HealthConfig{
			ListenAddr: "127.0.0.1:7891",
		},
		Dispatcher: DispatcherConfig{
			MaxConcurrentOrchestratorWorkItems: 100,
			MaxConcurrentActivityWorkItems:     100,
			DelayAfterFetchError:               5 * time.Second,
			ReplyTimeout:                       0,
			StopGracePeriod:                    time.Hour,
			EmbedThresholdBytes:                1024,
			ChunkBytes:                         256 * 1024,
		},
	}
}

// Load reads and merges a YAML file over Default(). A missing path returns
// Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// LogLevel converts the configured string into a log.Level, defaulting to
// info on an unrecognized value.
func (c Config) LogLevel() log.Level {
	switch c.Log.Level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
