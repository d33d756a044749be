// Package config loads the service configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ChainConfig contains ledger node client settings
type ChainConfig struct {
	RPCURL    string          `mapstructure:"rpc_url"`
	Contracts ContractsConfig `mapstructure:"contracts"`
}

// ContractsConfig names the on-chain accounts the engine reads from
type ContractsConfig struct {
	Services    string `mapstructure:"services"`
	Vesting     string `mapstructure:"vesting"`
	TokenSymbol string `mapstructure:"token_symbol"`
	SymbolScope string `mapstructure:"symbol_scope"`
}

// MetadataConfig contains the off-chain directory locations
type MetadataConfig struct {
	ProvidersURL string `mapstructure:"providers_url"`
	ServicesURL  string `mapstructure:"services_url"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Contract defaults, the mainnet marketplace deployment
	viper.SetDefault("chain.contracts.services", "dappservices")
	viper.SetDefault("chain.contracts.vesting", "dappairhodl1")
	viper.SetDefault("chain.contracts.token_symbol", "DAPP")
	viper.SetDefault("chain.contracts.symbol_scope", "......2ke1.o4")

	// Metadata directory defaults
	viper.SetDefault("metadata.providers_url", "https://raw.githubusercontent.com/dsphq/dsp-providers/master/providers.json")
	viper.SetDefault("metadata.services_url", "https://raw.githubusercontent.com/dsphq/dsp-services/master/services.json")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if config.Chain.Contracts.Services == "" {
		return fmt.Errorf("chain.contracts.services is required")
	}
	if config.Chain.Contracts.Vesting == "" {
		return fmt.Errorf("chain.contracts.vesting is required")
	}
	return nil
}
