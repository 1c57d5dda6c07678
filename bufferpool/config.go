package bufferpool

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config holds buffer pool configuration, including the eviction/purge
// tunables that spec §9 leaves as construction-time overridable values.
type Config struct {
	// MaximumMemory is the initial memory limit in bytes.
	MaximumMemory uint64 `json:"maximum_memory"`

	// InsertInterval is the number of hint insertions between
	// opportunistic purge triggers (spec §4.3, §4.6). Default 1024.
	InsertInterval uint64 `json:"insert_interval"`

	// PurgeSizeMultiplier scales how many hints a purge sweep targets
	// relative to the insertions that triggered it. Must be >= 2.
	PurgeSizeMultiplier uint64 `json:"purge_size_multiplier"`

	// EarlyOutMultiplier bounds how small the queue must be before a
	// purge declines to run at all. Must be >= 4.
	EarlyOutMultiplier uint64 `json:"early_out_multiplier"`

	// AliveNodeMultiplier controls how aggressively a purge keeps
	// sweeping while dead hints dominate the queue. Must be >= 4.
	AliveNodeMultiplier uint64 `json:"alive_node_multiplier"`

	// EnableMetrics toggles collection of eviction/purge metrics.
	EnableMetrics bool `json:"enable_metrics"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`
}

// DefaultConfig returns the suggested defaults from spec §4.6.
func DefaultConfig() *Config {
	return &Config{
		MaximumMemory:       1 << 30,
		InsertInterval:      1024,
		PurgeSizeMultiplier: 2,
		EarlyOutMultiplier:  4,
		AliveNodeMultiplier: 4,
		EnableMetrics:       true,
		LogLevel:            "info",
	}
}

// LoadConfigFromFile loads configuration from a JSON file, validating it
// before returning.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables,
// falling back to defaults for anything unset.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("BUFFERPOOL_MAXIMUM_MEMORY"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.MaximumMemory = n
		}
	}
	if v := os.Getenv("BUFFERPOOL_INSERT_INTERVAL"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.InsertInterval = n
		}
	}
	if v := os.Getenv("BUFFERPOOL_PURGE_SIZE_MULTIPLIER"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.PurgeSizeMultiplier = n
		}
	}
	if v := os.Getenv("BUFFERPOOL_EARLY_OUT_MULTIPLIER"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.EarlyOutMultiplier = n
		}
	}
	if v := os.Getenv("BUFFERPOOL_ALIVE_NODE_MULTIPLIER"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.AliveNodeMultiplier = n
		}
	}
	if v := os.Getenv("BUFFERPOOL_ENABLE_METRICS"); v != "" {
		cfg.EnableMetrics = v == "true" || v == "1"
	}
	if v := os.Getenv("BUFFERPOOL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

// SaveToFile writes the configuration to a JSON file.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", " ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.MaximumMemory == 0 {
		return fmt.Errorf("maximum memory must be greater than 0")
	}
	if c.InsertInterval == 0 {
		return fmt.Errorf("insert interval must be greater than 0")
	}
	if c.PurgeSizeMultiplier < 2 {
		return fmt.Errorf("purge size multiplier must be at least 2")
	}
	if c.EarlyOutMultiplier < 4 {
		return fmt.Errorf("early out multiplier must be at least 4")
	}
	if c.AliveNodeMultiplier < 4 {
		return fmt.Errorf("alive node multiplier must be at least 4")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
