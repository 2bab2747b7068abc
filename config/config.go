// Package config loads the YAML configuration of the taskengine command.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"dario.cat/mergo"
	"github.com/Swind/go-task-engine/core"
	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Pool     PoolConfig     `yaml:"pool"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Workload WorkloadConfig `yaml:"workload"`
}

type PoolConfig struct {
	ID      string `yaml:"id"`
	Workers int    `yaml:"workers"`
	// HistoryCapacity bounds the recent-job ring buffer.
	HistoryCapacity int `yaml:"history_capacity"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type MetricsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Namespace    string        `yaml:"namespace"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// WorkloadConfig shapes the synthetic task tree run by "taskengine run".
type WorkloadConfig struct {
	// Items is the number of sub-tasks per parallel level.
	Items int `yaml:"items"`
	// Depth is the number of nested parallel levels.
	Depth int `yaml:"depth"`
	// LeafCost is the simulated duration of one leaf.
	LeafCost time.Duration `yaml:"leaf_cost"`
	// Runs repeats the workload so the timings cache warms up.
	Runs int `yaml:"runs"`
	// Timeout cancels the workload; zero disables it.
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			ID:              "taskengine",
			Workers:         runtime.NumCPU(),
			HistoryCapacity: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Addr:         ":9090",
			Namespace:    "taskengine",
			PollInterval: time.Second,
		},
		Workload: WorkloadConfig{
			Items:    64,
			Depth:    2,
			LeafCost: time.Millisecond,
			Runs:     3,
		},
	}
}

// Load reads path and decodes its values over Default. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML data over Default. Keys absent from data keep their
// default values; keys present always win, zero values included.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Override sets the fields named in values, keyed by section then by field in
// lower camel case (for example {"workload": {"depth": 0}}). Zero values
// override too. Unknown keys are ignored.
func (c *Config) Override(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	if err := mergo.Map(c, values, mergo.WithOverride); err != nil {
		return fmt.Errorf("override config: %w", err)
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Pool.Workers < 1 {
		errs = append(errs, fmt.Errorf("pool.workers: %w (got %d)", core.ErrInvalidWorkers, c.Pool.Workers))
	}
	if c.Pool.HistoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("pool.history_capacity must not be negative (got %d)", c.Pool.HistoryCapacity))
	}
	if _, err := core.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be console or json (got %q)", c.Log.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	if c.Metrics.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("metrics.poll_interval must be positive (got %s)", c.Metrics.PollInterval))
	}
	if c.Workload.Items < 0 || c.Workload.Depth < 0 || c.Workload.Runs < 0 {
		errs = append(errs, errors.New("workload items, depth and runs must not be negative"))
	}
	return errors.Join(errs...)
}

// LogLevel returns the parsed log level, falling back to info.
func (c *Config) LogLevel() core.LogLevel {
	level, err := core.ParseLogLevel(c.Log.Level)
	if err != nil {
		return core.LevelInfo
	}
	return level
}
