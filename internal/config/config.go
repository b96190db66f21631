// Package config loads notekit.yaml and NOTEKIT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	FileName  = "notekit.yaml"
	EnvPrefix = "NOTEKIT"
	SystemDir = ".notekit"
)

var validAdapters = map[string]bool{"fs": true, "memory": true, "postgres": true}

// envKeys can be overridden from the environment. Providers are a map and
// only come from the file.
var envKeys = []string{
	"vault",
	"adapter",
	"database_url",
	"session_secret",
	"event_buffer",
	"log_level",
}

type Config struct {
	Vault         string            `mapstructure:"vault"          yaml:"vault,omitempty"`
	Adapter       string            `mapstructure:"adapter"        yaml:"adapter"`
	DatabaseURL   string            `mapstructure:"database_url"   yaml:"database_url,omitempty"`
	SessionSecret string            `mapstructure:"session_secret" yaml:"session_secret"`
	Providers     map[string]string `mapstructure:"providers"      yaml:"providers,omitempty"`
	EventBuffer   int               `mapstructure:"event_buffer"   yaml:"event_buffer,omitempty"`
	LogLevel      string            `mapstructure:"log_level"      yaml:"log_level,omitempty"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// Error reports an invalid configuration value.
type Error struct {
	Key string
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Msg)
}

// Path returns where the config file of a vault lives.
func Path(vault string) string {
	return filepath.Join(vault, SystemDir, FileName)
}

// Load reads the configuration. An explicit file wins; otherwise notekit.yaml
// is looked up in the vault's system dir and then in $HOME/.config/notekit.
// A missing file is not an error. Environment variables (NOTEKIT_ADAPTER,
// NOTEKIT_DATABASE_URL, ...) override file values.
func Load(vault, file string) (*Config, error) {
	v := viper.New()
	v.SetDefault("adapter", "fs")
	v.SetDefault("event_buffer", 1)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		if vault != "" {
			v.AddConfigPath(filepath.Join(vault, SystemDir))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "notekit"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.Vault == "" {
		cfg.Vault = vault
	}
	cfg.Adapter = strings.ToLower(strings.TrimSpace(cfg.Adapter))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that Load cannot default.
func (c *Config) Validate() error {
	if !validAdapters[c.Adapter] {
		return &Error{Key: "adapter", Msg: fmt.Sprintf("unknown adapter %q (want %s)", c.Adapter, strings.Join(adapterNames(), ", "))}
	}
	if c.Adapter == "postgres" && c.DatabaseURL == "" {
		return &Error{Key: "database_url", Msg: "required by the postgres adapter"}
	}
	if c.EventBuffer < 0 {
		return &Error{Key: "event_buffer", Msg: "must not be negative"}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return &Error{Key: "log_level", Msg: err.Error()}
	}
	return nil
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

// ProviderSecrets returns the identity provider secrets as bytes.
func (c *Config) ProviderSecrets() map[string][]byte {
	out := make(map[string][]byte, len(c.Providers))
	for name, secret := range c.Providers {
		out[name] = []byte(secret)
	}
	return out
}

// Write stores cfg as YAML at path, creating parent directories.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
}

func adapterNames() []string {
	names := make([]string, 0, len(validAdapters))
	for name := range validAdapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
