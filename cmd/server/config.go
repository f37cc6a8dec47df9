package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the server's runtime configuration. Grounded on
// cklxx-elephant.ai's cmd/cobra_cli.go viper wiring (SetConfigName /
// SetConfigType / AddConfigPath / ReadInConfig), adapted from a CLI's
// JSON dotfile to a service's env-overridable config file.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	StoreDriver string `mapstructure:"store_driver"` // memory, sqlite, mysql
	StoreDSN    string `mapstructure:"store_dsn"`

	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTIssuer    string        `mapstructure:"jwt_issuer"`
	AccessTTL    time.Duration `mapstructure:"access_ttl"`

	MaxConcurrentExecutions int `mapstructure:"max_concurrent_executions"`
	MaxConcurrentNodes      int `mapstructure:"max_concurrent_nodes"`

	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	GoogleAPIKey    string `mapstructure:"google_api_key"`

	OTelServiceName string `mapstructure:"otel_service_name"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:              ":8080",
		StoreDriver:             "memory",
		JWTIssuer:               "flowforge-orchestrator",
		AccessTTL:               15 * time.Minute,
		MaxConcurrentExecutions: 100,
		MaxConcurrentNodes:      8,
		OTelServiceName:         "flowforge-orchestrator",
	}
}

// loadConfig reads an optional config file (searched as
// "orchestrator.{yaml,json,...}" in $HOME and the working directory)
// and overlays ORCHESTRATOR_-prefixed environment variables on top,
// falling back to defaultConfig for anything unset.
func loadConfig(cfgFile string) (Config, error) {
	defaults := defaultConfig()

	v := viper.New()
	v.SetEnvPrefix("ORCHESTRATOR")
	v.AutomaticEnv()

	// AutomaticEnv only overrides keys viper already knows about, so every
	// mapstructure key needs an explicit default for its env var to bind.
	v.SetDefault("listen_addr", defaults.ListenAddr)
	v.SetDefault("store_driver", defaults.StoreDriver)
	v.SetDefault("store_dsn", defaults.StoreDSN)
	v.SetDefault("jwt_secret", defaults.JWTSecret)
	v.SetDefault("jwt_issuer", defaults.JWTIssuer)
	v.SetDefault("access_ttl", defaults.AccessTTL)
	v.SetDefault("max_concurrent_executions", defaults.MaxConcurrentExecutions)
	v.SetDefault("max_concurrent_nodes", defaults.MaxConcurrentNodes)
	v.SetDefault("anthropic_api_key", defaults.AnthropicAPIKey)
	v.SetDefault("openai_api_key", defaults.OpenAIAPIKey)
	v.SetDefault("google_api_key", defaults.GoogleAPIKey)
	v.SetDefault("otel_service_name", defaults.OTelServiceName)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("orchestrator")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}
