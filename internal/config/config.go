package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	DiscordBotToken string `mapstructure:"DISCORD_BOT_TOKEN" validate:"required"`
	BadgerDBPath    string `mapstructure:"BADGERDB_PATH"`
	LocaleDir       string `mapstructure:"LOCALE_DIR"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`

	// UserAgent is sent on every upstream metadata and media request.
	UserAgent string `mapstructure:"USER_AGENT"`

	// DownloadTimeout is the hard per-item media download ceiling.
	DownloadTimeout time.Duration `mapstructure:"DOWNLOAD_TIMEOUT"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = viper.ReadInConfig(); err != nil {
		// Env vars alone are enough; only a malformed file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if config.BadgerDBPath == "" {
		config.BadgerDBPath = "./badger_data"
	}
	if config.LocaleDir == "" {
		config.LocaleDir = "./l10n"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.DownloadTimeout <= 0 {
		config.DownloadTimeout = 10 * time.Second
	}

	if err = validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
