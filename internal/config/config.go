// Package config provides configuration types and defaults for chatterbox.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config holds all configuration options for chatterbox.
type Config struct {
	API      APIConfig    `mapstructure:"api" yaml:"api"`
	Socket   SocketConfig `mapstructure:"socket" yaml:"socket"`
	UserID   string       `mapstructure:"user_id" yaml:"user_id"`
	Cache    CacheConfig  `mapstructure:"cache" yaml:"cache"`
	UI       UIConfig     `mapstructure:"ui" yaml:"ui"`
	Debug    bool         `mapstructure:"debug" yaml:"debug"`
	LogLevel string       `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFile  string       `mapstructure:"log_file" yaml:"log_file"`
}

// APIConfig points at the REST gateway.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	Token   string        `mapstructure:"token" yaml:"token,omitempty"`
}

// SocketConfig points at the push-event endpoint.
type SocketConfig struct {
	URL string `mapstructure:"url" yaml:"url" validate:"required,url"`
}

// CacheConfig controls the contact list cache. A zero TTL disables it.
type CacheConfig struct {
	ContactsTTL time.Duration `mapstructure:"contacts_ttl" yaml:"contacts_ttl" validate:"gte=0"`
}

// UIConfig holds user interface options.
type UIConfig struct {
	ToastDuration  time.Duration `mapstructure:"toast_duration" yaml:"toast_duration" validate:"gt=0"`
	ShowOnlineOnly bool          `mapstructure:"show_online_only" yaml:"show_online_only"`
}

// Defaults returns the configuration used when no file or flag overrides a key.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000/api",
			Timeout: 10 * time.Second,
		},
		Socket: SocketConfig{
			URL: "ws://localhost:8000/ws",
		},
		Cache: CacheConfig{
			ContactsTTL: 30 * time.Second,
		},
		UI: UIConfig{
			ToastDuration: 3 * time.Second,
		},
		LogLevel: "debug",
		LogFile:  DefaultLogFilePath(),
	}
}

// DefaultLogFilePath returns ~/.chatterbox/debug.log.
func DefaultLogFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "debug.log"
	}
	return filepath.Join(home, ".chatterbox", "debug.log")
}

// Validate checks field constraints.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q constraint", fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}

// WriteDefaultConfig writes the defaults as YAML to configPath, creating
// parent directories. An existing file is left alone.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(defaultsDocument(Defaults()))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// defaultsDocument renders durations as strings ("30s") so the file stays
// readable and decodes through both viper and yaml.v3.
func defaultsDocument(cfg Config) map[string]any {
	return map[string]any{
		"api": map[string]any{
			"base_url": cfg.API.BaseURL,
			"timeout":  cfg.API.Timeout.String(),
		},
		"socket": map[string]any{
			"url": cfg.Socket.URL,
		},
		"user_id": cfg.UserID,
		"cache": map[string]any{
			"contacts_ttl": cfg.Cache.ContactsTTL.String(),
		},
		"ui": map[string]any{
			"toast_duration":   cfg.UI.ToastDuration.String(),
			"show_online_only": cfg.UI.ShowOnlineOnly,
		},
		"debug":     cfg.Debug,
		"log_level": cfg.LogLevel,
	}
}
