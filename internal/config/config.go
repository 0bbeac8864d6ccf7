// Package config holds run settings: defaults, an optional YAML file, then
// GENESYNTH_* environment overrides. Command-line flags are applied last by
// the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"genesynth/internal/fault"
	"genesynth/internal/lane"
)

type Config struct {
	// Seed is the run seed; every node seed derives from it.
	Seed uint64 `yaml:"seed"`

	Pools   PoolConfig    `yaml:"pools"`
	Cache   CacheConfig   `yaml:"cache"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`

	// ForceProcess lists kind.method pairs pinned to the process lane.
	ForceProcess []string `yaml:"force_process"`
}

type PoolConfig struct {
	Workers int `yaml:"workers"`
	// Threads is the per-worker multiplier: it sizes the thread lane and,
	// times Workers, the process pool and the walk queue.
	Threads int `yaml:"threads"`
}

type CacheConfig struct {
	Dir       string `yaml:"dir"`
	HashNames bool   `yaml:"hash_names"`
}

type OutputConfig struct {
	// Clean strips quotes around numbers and booleans when streaming to stdout.
	Clean bool `yaml:"clean"`
	// Trace, when set, receives the canonical run trace.
	Trace string `yaml:"trace"`
	// Table names the SQLite table; "" uses the root name.
	Table string `yaml:"table"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

func DefaultConfig() *Config {
	return &Config{
		Pools: PoolConfig{
			Workers: runtime.NumCPU(),
			Threads: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		ForceProcess: []string{"string.generate"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path means defaults only; a named file must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("%w: config file %s does not exist", fault.ErrConfig, path)
		case err != nil:
			return nil, fmt.Errorf("%w: failed to read config: %v", fault.ErrConfig, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: failed to parse config %s: %v", fault.ErrConfig, path, err)
			}
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("GENESYNTH_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: GENESYNTH_SEED: %v", fault.ErrConfig, err)
		}
		c.Seed = seed
	}
	if v := os.Getenv("GENESYNTH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: GENESYNTH_WORKERS: %v", fault.ErrConfig, err)
		}
		c.Pools.Workers = n
	}
	if v := os.Getenv("GENESYNTH_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: GENESYNTH_THREADS: %v", fault.ErrConfig, err)
		}
		c.Pools.Threads = n
	}
	if v := os.Getenv("GENESYNTH_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("GENESYNTH_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	return nil
}

// Validate rejects settings the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.Pools.Workers < 1 {
		return fmt.Errorf("%w: workers must be positive, got %d", fault.ErrConfig, c.Pools.Workers)
	}
	if c.Pools.Threads < 1 {
		return fmt.Errorf("%w: threads must be positive, got %d", fault.ErrConfig, c.Pools.Threads)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", fault.ErrConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: unknown log format %q", fault.ErrConfig, c.Logging.Format)
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

// QueueSize bounds the scheduler's walk queue.
func (c *Config) QueueSize() int { return c.Pools.Workers * c.Pools.Threads }

// ProcessPoolSize bounds the number of live worker processes. Workers are
// spawned on demand, so an idle lane costs nothing.
func (c *Config) ProcessPoolSize() int { return c.Pools.Workers * c.Pools.Threads }

// Registry builds the process-lane registry from ForceProcess.
func (c *Config) Registry() (*lane.Registry, error) {
	reg := lane.NewRegistry()
	for _, b := range c.ForceProcess {
		kind, method, err := lane.ParseBinding(b)
		if err != nil {
			return nil, fmt.Errorf("%w: force_process: %v", fault.ErrConfig, err)
		}
		reg.Force(kind, method)
	}
	return reg, nil
}
