/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	JWTSecret               string `mapstructure:"JWT_SECRET"`
	BootstrapAdminLoginID   string `mapstructure:"BOOTSTRAP_ADMIN_LOGIN_ID"`
	BootstrapAdminSecret    string `mapstructure:"BOOTSTRAP_ADMIN_SECRET"`
	MaxLoginAttempts        int    `mapstructure:"MAX_LOGIN_ATTEMPTS"`
	LoginLockoutSeconds     int    `mapstructure:"LOGIN_LOCKOUT_SECONDS"`
	LoginRateLimitPerMinute int    `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	BalanceScale            int    `mapstructure:"BALANCE_SCALE"`
	BcryptCost              int    `mapstructure:"BCRYPT_COST"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "frappster:rate_limit")
	viper.SetDefault("MAX_LOGIN_ATTEMPTS", 3)
	viper.SetDefault("LOGIN_LOCKOUT_SECONDS", 30)
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 0)
	viper.SetDefault("BALANCE_SCALE", 2)
	viper.SetDefault("BCRYPT_COST", 0)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("BOOTSTRAP_ADMIN_LOGIN_ID")
	_ = viper.BindEnv("BOOTSTRAP_ADMIN_SECRET")
	_ = viper.BindEnv("MAX_LOGIN_ATTEMPTS")
	_ = viper.BindEnv("LOGIN_LOCKOUT_SECONDS")
	_ = viper.BindEnv("LOGIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("BALANCE_SCALE")
	_ = viper.BindEnv("BCRYPT_COST")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Platform-provided PORT wins over SERVER_PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "frappster:rate_limit"
	}

	if config.MaxLoginAttempts <= 0 {
		config.MaxLoginAttempts = 3
	}
	if config.LoginLockoutSeconds <= 0 {
		config.LoginLockoutSeconds = 30
	}
	if config.LoginRateLimitPerMinute < 0 {
		config.LoginRateLimitPerMinute = 0
	}
	if config.BalanceScale < 0 {
		log.Printf("level=warn component=config msg=\"negative balance scale configured; coercing to default\" scale=%d", config.BalanceScale)
		config.BalanceScale = 2
	}

	return
}
