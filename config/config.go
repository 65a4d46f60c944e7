// Package config resolves the engine's runtime settings. Built-in
// defaults are overridden by an optional YAML file, and SIMPLR_*
// environment variables have the final say.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML strings like "150ms" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	// DataDir is the root of the on-disk snapshots, one subdirectory per
	// profile.
	DataDir string `yaml:"data_dir"`
	// Profile is the profile activated at startup.
	Profile string `yaml:"profile"`
	// RedisAddr enables the reminder schedule and search index when set.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	// SearchMinLength is the shortest query, in runes, that triggers a
	// text search.
	SearchMinLength  int      `yaml:"search_min_length"`
	CategoryCacheTTL Duration `yaml:"category_cache_ttl"`
	// SaveDelay is the coalescing window between a mutation and its
	// snapshot write.
	SaveDelay    Duration `yaml:"save_delay"`
	RetryInitial Duration `yaml:"retry_initial"`
	RetryMax     Duration `yaml:"retry_max"`
	// DispatchTimeout bounds each reminder or search index call.
	DispatchTimeout Duration `yaml:"dispatch_timeout"`
	// EventBuffer is the per-subscriber event channel capacity.
	EventBuffer int `yaml:"event_buffer"`
}

// Default returns the configuration resolved from built-in defaults and
// the environment, with no file involved.
func Default() Config {
	cfg := builtin()
	cfg.applyEnv()
	return cfg
}

// Load resolves the configuration from an optional YAML file at path.
// An empty path skips the file; the environment still applies on top.
func Load(path string) (Config, error) {
	cfg := builtin()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func builtin() Config {
	return Config{
		DataDir:          filepath.Join(os.TempDir(), "simplr-data"),
		Profile:          "personal",
		SearchMinLength:  2,
		CategoryCacheTTL: Duration(5 * time.Second),
		SaveDelay:        Duration(150 * time.Millisecond),
		RetryInitial:     Duration(250 * time.Millisecond),
		RetryMax:         Duration(30 * time.Second),
		DispatchTimeout:  Duration(5 * time.Second),
		EventBuffer:      64,
	}
}

func (c *Config) applyEnv() {
	c.DataDir = envString("SIMPLR_DATA_DIR", c.DataDir)
	c.Profile = envString("SIMPLR_PROFILE", c.Profile)
	c.RedisAddr = envString("SIMPLR_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envString("SIMPLR_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envInt("SIMPLR_REDIS_DB", c.RedisDB)
	c.SearchMinLength = envInt("SIMPLR_SEARCH_MIN_LENGTH", c.SearchMinLength)
	c.CategoryCacheTTL = Duration(envDur("SIMPLR_CATEGORY_CACHE_TTL", c.CategoryCacheTTL.Std()))
	c.SaveDelay = Duration(envDur("SIMPLR_SAVE_DELAY", c.SaveDelay.Std()))
	c.RetryInitial = Duration(envDur("SIMPLR_RETRY_INITIAL", c.RetryInitial.Std()))
	c.RetryMax = Duration(envDur("SIMPLR_RETRY_MAX", c.RetryMax.Std()))
	c.DispatchTimeout = Duration(envDur("SIMPLR_DISPATCH_TIMEOUT", c.DispatchTimeout.Std()))
	c.EventBuffer = envInt("SIMPLR_EVENT_BUFFER", c.EventBuffer)
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
