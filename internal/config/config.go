// Package config loads runtime configuration from a YAML file and
// ARC_-prefixed environment variables, env taking precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	DataDir    string `mapstructure:"data_dir"`
	AuthToken  string `mapstructure:"auth_token"`

	DefaultUserID string `mapstructure:"default_user_id"`
	DeviceID      string `mapstructure:"device_id"`

	Engine EngineConfig `mapstructure:"engine"`
	Remote RemoteConfig `mapstructure:"remote"`
	Sync   SyncConfig   `mapstructure:"sync"`
}

// EngineConfig selects and parameterizes the local model backend.
type EngineConfig struct {
	Provider      string `mapstructure:"provider"` // ollama or openai
	Model         string `mapstructure:"model"`
	OllamaBaseURL string `mapstructure:"ollama_base_url"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
}

// RemoteConfig points at the hosted execution backend.
type RemoteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Enabled bool   `mapstructure:"enabled"`
}

// SyncConfig controls the background transaction sync.
type SyncConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// Load reads configuration. path may be empty to rely on defaults and env.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", "127.0.0.1:8787")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("default_user_id", "user_1")
	v.SetDefault("device_id", "dev_local")
	v.SetDefault("engine.provider", "ollama")
	v.SetDefault("engine.model", "llama3.2:3b")
	v.SetDefault("engine.ollama_base_url", "http://127.0.0.1:11434")
	v.SetDefault("remote.base_url", "https://assistant.example.com")
	v.SetDefault("remote.enabled", true)
	v.SetDefault("sync.schedule", "*/5 * * * *")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Engine.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("config: unknown engine provider %q", c.Engine.Provider)
	}
	if c.Engine.Provider == "openai" && c.Engine.OpenAIAPIKey == "" {
		return fmt.Errorf("config: engine.openai_api_key is required for the openai provider")
	}
	if c.AuthToken == "" {
		return fmt.Errorf("config: auth_token is required")
	}
	return nil
}
