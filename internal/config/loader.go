// Package config loads llmd settings from a file and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPort                 = 8080
	DefaultHost                 = ""
	DefaultModelsDir            = "./models"
	DefaultIdleTTLMinutes       = 15
	DefaultSweepIntervalMinutes = 15
	DefaultSessionTTLMinutes    = 30
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "console"
	DefaultMaxBodyBytes         = 1 << 20
)

// Environment variables read by ApplyEnv.
const (
	EnvPort      = "PORT"
	EnvModelsDir = "LLMD_MODELS_DIR"
	EnvLogLevel  = "LLMD_LOG_LEVEL"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified"; Merge skips them.
type Config struct {
	Port      int    `json:"port" yaml:"port" toml:"port"`
	Host      string `json:"host" yaml:"host" toml:"host"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`

	IdleTTLMinutes       int `json:"idle_ttl_minutes" yaml:"idle_ttl_minutes" toml:"idle_ttl_minutes"`
	SweepIntervalMinutes int `json:"sweep_interval_minutes" yaml:"sweep_interval_minutes" toml:"sweep_interval_minutes"`
	SessionTTLMinutes    int `json:"session_ttl_minutes" yaml:"session_ttl_minutes" toml:"session_ttl_minutes"`
	// Characters of earlier turns rendered into each chat prompt (0 = default).
	SessionHistoryChars int `json:"session_history_chars" yaml:"session_history_chars" toml:"session_history_chars"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`

	// In-process engine tuning (builds with -tags=llama).
	LlamaContext   int `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads   int `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
	LlamaGPULayers int `json:"llama_gpu_layers" yaml:"llama_gpu_layers" toml:"llama_gpu_layers"`
}

// Default returns a Config with every default applied.
func Default() Config {
	return Config{
		Port:                 DefaultPort,
		Host:                 DefaultHost,
		ModelsDir:            DefaultModelsDir,
		IdleTTLMinutes:       DefaultIdleTTLMinutes,
		SweepIntervalMinutes: DefaultSweepIntervalMinutes,
		SessionTTLMinutes:    DefaultSessionTTLMinutes,
		LogLevel:             DefaultLogLevel,
		LogFormat:            DefaultLogFormat,
		MaxBodyBytes:         DefaultMaxBodyBytes,
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Merge overlays the non-zero fields of o onto c.
func (c *Config) Merge(o Config) {
	if o.Port != 0 {
		c.Port = o.Port
	}
	if o.Host != "" {
		c.Host = o.Host
	}
	if o.ModelsDir != "" {
		c.ModelsDir = o.ModelsDir
	}
	if o.IdleTTLMinutes != 0 {
		c.IdleTTLMinutes = o.IdleTTLMinutes
	}
	if o.SweepIntervalMinutes != 0 {
		c.SweepIntervalMinutes = o.SweepIntervalMinutes
	}
	if o.SessionTTLMinutes != 0 {
		c.SessionTTLMinutes = o.SessionTTLMinutes
	}
	if o.SessionHistoryChars != 0 {
		c.SessionHistoryChars = o.SessionHistoryChars
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		c.LogFormat = o.LogFormat
	}
	if o.MaxBodyBytes != 0 {
		c.MaxBodyBytes = o.MaxBodyBytes
	}
	if len(o.CORSOrigins) > 0 {
		c.CORSOrigins = append([]string(nil), o.CORSOrigins...)
	}
	if o.LlamaContext != 0 {
		c.LlamaContext = o.LlamaContext
	}
	if o.LlamaThreads != 0 {
		c.LlamaThreads = o.LlamaThreads
	}
	if o.LlamaGPULayers != 0 {
		c.LlamaGPULayers = o.LlamaGPULayers
	}
}

// ApplyEnv overlays PORT, LLMD_MODELS_DIR and LLMD_LOG_LEVEL using lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Port = p
	}
	if v, ok := lookup(EnvModelsDir); ok && v != "" {
		c.ModelsDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ModelsDir == "" {
		return errors.New("models_dir is required")
	}
	if c.IdleTTLMinutes < 0 || c.SweepIntervalMinutes < 0 || c.SessionTTLMinutes < 0 {
		return errors.New("durations must not be negative")
	}
	if c.SessionHistoryChars < 0 {
		return errors.New("session_history_chars must not be negative")
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("log_format %q (want console or json)", c.LogFormat)
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string { return c.Host + ":" + strconv.Itoa(c.Port) }

// IdleTTL returns the model idle threshold.
func (c Config) IdleTTL() time.Duration { return time.Duration(c.IdleTTLMinutes) * time.Minute }

// SweepInterval returns the idle sweep period.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// SessionTTL returns the chat session inactivity window.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}
