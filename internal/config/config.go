// Package config loads movievote settings from defaults, an optional YAML
// file and MOVIEVOTE_* environment variables, in that order.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "MOVIEVOTE_"

// ConfigPathEnvVar overrides the config file path
const ConfigPathEnvVar = "MOVIEVOTE_CONFIG"

// DefaultConfigPaths are searched in order when no path is given
var DefaultConfigPaths = []string{
	"movievote.yaml",
	"movievote.yml",
}

// Config is the complete runtime configuration
type Config struct {
	Remote RemoteConfig `koanf:"remote"`
	Server ServerConfig `koanf:"server"`
	Store  StoreConfig  `koanf:"store"`
	Voting VotingConfig `koanf:"voting"`
	Log    LogConfig    `koanf:"log"`
	// Demo serves an in-memory backend instead of the remote one
	Demo bool `koanf:"demo"`
}

// RemoteConfig describes the movie backend
type RemoteConfig struct {
	BaseURL   string `koanf:"base_url" validate:"required,url"`
	PublicURL string `koanf:"public_url" validate:"omitempty,url"`
	// SessionCookie is the name of the backend's auth cookie
	SessionCookie     string        `koanf:"session_cookie" validate:"required"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int           `koanf:"burst" validate:"gte=0"`
	Retries           uint64        `koanf:"retries" validate:"lte=10"`
	RetryBase         time.Duration `koanf:"retry_base" validate:"gte=0"`
	Breaker           BreakerConfig `koanf:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the backend
type BreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MinRequests  uint32        `koanf:"min_requests" validate:"gte=1"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"gt=0,lte=1"`
	Interval     time.Duration `koanf:"interval" validate:"gte=0"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
}

// ServerConfig describes the local gateway
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	// AccessKey locks the gateway API. One is generated when empty and
	// the gateway listens beyond loopback.
	AccessKey       string        `koanf:"access_key"`
	Keyboard        bool          `koanf:"keyboard"`
	OpenBrowser     bool          `koanf:"open_browser"`
}

// StoreConfig describes the local sqlite cache
type StoreConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// VotingConfig tunes the optimistic vote flow
type VotingConfig struct {
	FailurePolicy   string        `koanf:"failure_policy" validate:"oneof=rollback keep"`
	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"gte=0"`
	VoteTimeout     time.Duration `koanf:"vote_timeout" validate:"gt=0"`
}

// LogConfig describes logging output
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
	HTTP   bool   `koanf:"http"`
}

// Addr is the gateway listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ShareURL is the site used in share links, the API base when unset
func (r RemoteConfig) ShareURL() string {
	if r.PublicURL != "" {
		return r.PublicURL
	}
	return r.BaseURL
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			BaseURL:           "http://localhost:5000",
			SessionCookie:     "token",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 10,
			Burst:             5,
			Retries:           2,
			RetryBase:         200 * time.Millisecond,
			Breaker: BreakerConfig{
				Enabled:      true,
				MinRequests:  10,
				FailureRatio: 0.6,
				Interval:     time.Minute,
				Timeout:      30 * time.Second,
			},
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8090,
			CORSOrigins:     []string{"http://localhost:*", "http://127.0.0.1:*"},
			RateLimit:       120,
			RateLimitWindow: time.Minute,
			Keyboard:        true,
			OpenBrowser:     false,
		},
		Store: StoreConfig{
			Path: "movievote.db",
		},
		Voting: VotingConfig{
			FailurePolicy:   "rollback",
			RefreshInterval: 30 * time.Second,
			VoteTimeout:     15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load layers defaults, the config file at path (or the first default path
// found) and the environment. An explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile(path string) (string, error) {
	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file %s: %w", path, err)
		}
		return path, nil
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// envTransformFunc maps MOVIEVOTE_REMOTE_BASE_URL to remote.base_url and
// MOVIEVOTE_REMOTE_BREAKER_FAILURE_RATIO to remote.breaker.failure_ratio.
// MOVIEVOTE_CONFIG is not a setting and is dropped.
func envTransformFunc(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	if section == "remote" && strings.HasPrefix(rest, "breaker_") {
		return "remote.breaker." + strings.TrimPrefix(rest, "breaker_")
	}
	return section + "." + rest
}

// sliceConfigPaths are parsed as comma-separated lists when they come from the environment
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// Validate checks every field against its validate tag
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
	}
	return stderrors.New(strings.Join(msgs, "; "))
}
