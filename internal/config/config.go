// Package config loads the sync daemon configuration from a YAML file
// with sensible defaults for every field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all MedBridge sync daemon configuration.
type Config struct {
	// Local HTTP API settings
	Server ServerConfig `yaml:"server"`

	// National database endpoint
	Remote RemoteConfig `yaml:"remote"`

	// Offline queue behavior
	Queue QueueConfig `yaml:"queue"`

	// Background loop cadence
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	DataDir    string `yaml:"dataDir"`
	LogLevel   string `yaml:"logLevel"`
}

type RemoteConfig struct {
	BaseURL              string `yaml:"baseUrl"`
	SubmitPath           string `yaml:"submitPath,omitempty"`
	HealthPath           string `yaml:"healthPath,omitempty"`
	AuthToken            string `yaml:"authToken,omitempty"`
	SubmitTimeoutSeconds int    `yaml:"submitTimeoutSeconds"`
	ProbeTimeoutSeconds  int    `yaml:"probeTimeoutSeconds"`
}

type QueueConfig struct {
	MaxRetries      int `yaml:"maxRetries"`
	MaxSize         int `yaml:"maxSize"`
	ConflictHistory int `yaml:"conflictHistory"`
}

type SchedulerConfig struct {
	DrainIntervalSeconds int `yaml:"drainIntervalSeconds"`
	ProbeIntervalSeconds int `yaml:"probeIntervalSeconds"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8095",
			DataDir:    "./data",
			LogLevel:   "info",
		},
		Remote: RemoteConfig{
			BaseURL:              "http://localhost:9000",
			SubmitTimeoutSeconds: 15,
			ProbeTimeoutSeconds:  5,
		},
		Queue: QueueConfig{
			MaxRetries:      3,
			MaxSize:         1000,
			ConflictHistory: 100,
		},
		Scheduler: SchedulerConfig{
			DrainIntervalSeconds: 30,
			ProbeIntervalSeconds: 60,
		},
	}
}

// Load reads the configuration file at path, overlaying it on the
// defaults. A missing file returns the defaults; a malformed file is an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listenAddr must not be empty")
	}
	if c.Server.DataDir == "" {
		return fmt.Errorf("server.dataDir must not be empty")
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.baseUrl must not be empty")
	}
	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("queue.maxRetries must be at least 1, got %d", c.Queue.MaxRetries)
	}
	if c.Queue.MaxSize < 1 {
		return fmt.Errorf("queue.maxSize must be at least 1, got %d", c.Queue.MaxSize)
	}
	return nil
}

// SubmitTimeout returns the remote submit deadline as a duration.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Remote.SubmitTimeoutSeconds) * time.Second
}

// ProbeTimeout returns the health probe deadline as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Remote.ProbeTimeoutSeconds) * time.Second
}

// DrainInterval returns the background drain cadence as a duration.
func (c *Config) DrainInterval() time.Duration {
	return time.Duration(c.Scheduler.DrainIntervalSeconds) * time.Second
}

// ProbeInterval returns the background probe cadence as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Scheduler.ProbeIntervalSeconds) * time.Second
}
