// Package config loads service configuration from an optional YAML file and
// WRENBOT_-prefixed environment variables. Environment wins over file values.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   Server   `mapstructure:"server"`
	Gemini   Gemini   `mapstructure:"gemini"`
	Telegram Telegram `mapstructure:"telegram"`
	Storage  Storage  `mapstructure:"storage"`
	Engine   Engine   `mapstructure:"engine"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
	// APIToken authenticates web chat callers. Empty disables token auth.
	APIToken string `mapstructure:"api_token"`
}

type Gemini struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Telegram struct {
	Token string `mapstructure:"token"`
	// AllowedUsers holds "@username" or numeric-id entries. Empty allows
	// every sender.
	AllowedUsers []string `mapstructure:"allowed_users"`
	PairingMode  bool     `mapstructure:"pairing_mode"`
}

type Storage struct {
	DataDir string `mapstructure:"data_dir"`
}

type Engine struct {
	MaxTurns int `mapstructure:"max_turns"`
}

// Load reads configFile when given, otherwise it relies on defaults and the
// environment alone.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("wrenbot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8081")
	v.SetDefault("server.api_token", "")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.timeout", time.Minute)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.allowed_users", []string{})
	v.SetDefault("telegram.pairing_mode", false)
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("engine.max_turns", 0)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
