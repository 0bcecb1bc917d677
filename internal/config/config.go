// Package config loads the davmutate configuration from a YAML file and DAVMUTATE_*
// environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/cyp0633/davmutate/retry"
)

const envPrefix = "DAVMUTATE_"

// RetryConfig bounds the retry budget of wire calls.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	JitterPercent uint64        `yaml:"jitter_percent"`
}

// CacheConfig selects the collection cache store.
type CacheConfig struct {
	// Path of a bbolt file; empty keeps the cache in memory
	Path string `yaml:"path"`
	// MaxAge bounds how long a matching collection token is trusted
	MaxAge time.Duration `yaml:"max_age"`
}

// Config is the top-level configuration.
type Config struct {
	ServerURL          string        `yaml:"server_url"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	DefaultCalendar    string        `yaml:"default_calendar"`
	DefaultAddressBook string        `yaml:"default_addressbook"`
	Timezone           string        `yaml:"timezone"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	Retry              RetryConfig   `yaml:"retry"`
	Cache              CacheConfig   `yaml:"cache"`
	Listen             string        `yaml:"listen"`
	BearerToken        string        `yaml:"bearer_token"`
	LogLevel           string        `yaml:"log_level"`
	AllowInvites       bool          `yaml:"allow_invites"`
	// MaxOccurrences caps recurrence expansion when availability is computed locally
	MaxOccurrences int `yaml:"max_occurrences"`
}

// Default returns the built-in configuration.
func Default() *Config {
	def := retry.DefaultConfig()
	return &Config{
		Timezone:       "UTC",
		RequestTimeout: def.AttemptTimeout,
		Retry: RetryConfig{
			MaxAttempts:   def.MaxAttempts,
			BaseDelay:     def.BaseDelay,
			MaxDelay:      def.MaxDelay,
			JitterPercent: def.JitterPercent,
		},
		Listen:         "127.0.0.1:8765",
		LogLevel:       "info",
		MaxOccurrences: 1000,
	}
}

// Load reads path, applies environment overrides and validates the result. An empty path uses
// the defaults and the environment only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize fills zero values with defaults so partial files behave.
func (c *Config) Normalize() {
	def := Default()
	c.ServerURL = strings.TrimSpace(c.ServerURL)
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.MaxOccurrences == 0 {
		c.MaxOccurrences = def.MaxOccurrences
	}
}

// Validate reports the first configuration problem.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url must be an http or https URL: %q", c.ServerURL)
	}
	if c.Username != "" && c.Password == "" {
		return errors.New("password is required when username is set")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be > 0")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return errors.New("retry delays must satisfy 0 <= base_delay <= max_delay")
	}
	if c.Retry.JitterPercent > 100 {
		return errors.New("retry.jitter_percent must be between 0 and 100")
	}
	if c.MaxOccurrences < 0 {
		return errors.New("max_occurrences must be >= 0")
	}
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if !loopback(c.Listen) && c.BearerToken == "" {
		return errors.New("bearer_token is required when listening on a non-loopback address")
	}
	if _, ok := levels[c.LogLevel]; !ok {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	return nil
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	return levels[c.LogLevel]
}

// Location returns the configured time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RetryPolicy converts the retry settings for the executor.
func (c *Config) RetryPolicy() retry.Config {
	return retry.Config{
		MaxAttempts:    c.Retry.MaxAttempts,
		BaseDelay:      c.Retry.BaseDelay,
		MaxDelay:       c.Retry.MaxDelay,
		AttemptTimeout: c.RequestTimeout,
		JitterPercent:  c.Retry.JitterPercent,
	}
}

// String renders the configuration with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.Password != "" {
		masked.Password = "***"
	}
	if masked.BearerToken != "" {
		masked.BearerToken = "***"
	}
	out, _ := yaml.Marshal(&masked)
	return string(out)
}

func loopback(listen string) bool {
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides fields from DAVMUTATE_* variables. Malformed numbers, durations and
// booleans are errors rather than silently ignored.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("SERVER_URL", &c.ServerURL)
	str("USERNAME", &c.Username)
	str("PASSWORD", &c.Password)
	str("DEFAULT_CALENDAR", &c.DefaultCalendar)
	str("DEFAULT_ADDRESSBOOK", &c.DefaultAddressBook)
	str("TIMEZONE", &c.Timezone)
	str("CACHE_PATH", &c.Cache.Path)
	str("LISTEN", &c.Listen)
	str("BEARER_TOKEN", &c.BearerToken)
	str("LOG_LEVEL", &c.LogLevel)

	durations := map[string]*time.Duration{
		"REQUEST_TIMEOUT":  &c.RequestTimeout,
		"RETRY_BASE_DELAY": &c.Retry.BaseDelay,
		"RETRY_MAX_DELAY":  &c.Retry.MaxDelay,
		"CACHE_MAX_AGE":    &c.Cache.MaxAge,
	}
	for name, dst := range durations {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"RETRY_MAX_ATTEMPTS": &c.Retry.MaxAttempts,
		"MAX_OCCURRENCES":    &c.MaxOccurrences,
	}
	for name, dst := range ints {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup(envPrefix + "RETRY_JITTER_PERCENT"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sRETRY_JITTER_PERCENT: %w", envPrefix, err)
		}
		c.Retry.JitterPercent = n
	}
	if v, ok := lookup(envPrefix + "ALLOW_INVITES"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sALLOW_INVITES: %w", envPrefix, err)
		}
		c.AllowInvites = b
	}
	return nil
}
