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

// Config holds all the configuration variables for the wallet-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	LoanEventQueue       string `mapstructure:"LOAN_EVENT_QUEUE"`
	AuthJWKSURL          string `mapstructure:"AUTH_JWKS_URL"`
	RatesAPIBaseURL      string `mapstructure:"RATES_API_BASE_URL"`
	RatesAPIKey          string `mapstructure:"RATES_API_KEY"`

	// Comma-separated currency codes the wallet accepts.
	SupportedCurrencies string `mapstructure:"SUPPORTED_CURRENCIES"`

	PINMaxAttempts    int `mapstructure:"PIN_MAX_ATTEMPTS"`
	PINLockoutSeconds int `mapstructure:"PIN_LOCKOUT_SECONDS"`

	// Default rolling 24h caps, in whole KES. Zero disables the cap.
	DailyDepositLimitKES    string `mapstructure:"DAILY_DEPOSIT_LIMIT_KES"`
	DailyWithdrawalLimitKES string `mapstructure:"DAILY_WITHDRAWAL_LIMIT_KES"`
	DailyTransferLimitKES   string `mapstructure:"DAILY_TRANSFER_LIMIT_KES"`

	VerifyPINRateLimitPerMinute int `mapstructure:"VERIFY_PIN_RATE_LIMIT_PER_MINUTE"`
	TransferRateLimitPerMinute  int `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`

	MinEligibleScore            int `mapstructure:"MIN_ELIGIBLE_SCORE"`
	ScoreRefreshIntervalMinutes int `mapstructure:"SCORE_REFRESH_INTERVAL_MINUTES"`
	ScoreMaxAgeHours            int `mapstructure:"SCORE_MAX_AGE_HOURS"`
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
	viper.SetDefault("LOAN_EVENT_QUEUE", "wallet_service.loan_repayments")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "jasho:rate_limit")
	viper.SetDefault("SUPPORTED_CURRENCIES", "KES,USD,USDT")
	viper.SetDefault("PIN_MAX_ATTEMPTS", 3)
	viper.SetDefault("PIN_LOCKOUT_SECONDS", 900)
	viper.SetDefault("DAILY_DEPOSIT_LIMIT_KES", "100000")
	viper.SetDefault("DAILY_WITHDRAWAL_LIMIT_KES", "50000")
	viper.SetDefault("DAILY_TRANSFER_LIMIT_KES", "100000")
	viper.SetDefault("VERIFY_PIN_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("MIN_ELIGIBLE_SCORE", 600)
	viper.SetDefault("SCORE_REFRESH_INTERVAL_MINUTES", 60)
	viper.SetDefault("SCORE_MAX_AGE_HOURS", 24)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "WALLET_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("LOAN_EVENT_QUEUE")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("RATES_API_BASE_URL")
	_ = viper.BindEnv("RATES_API_KEY")
	_ = viper.BindEnv("SUPPORTED_CURRENCIES")
	_ = viper.BindEnv("PIN_MAX_ATTEMPTS")
	_ = viper.BindEnv("PIN_LOCKOUT_SECONDS")
	_ = viper.BindEnv("DAILY_DEPOSIT_LIMIT_KES")
	_ = viper.BindEnv("DAILY_WITHDRAWAL_LIMIT_KES")
	_ = viper.BindEnv("DAILY_TRANSFER_LIMIT_KES")
	_ = viper.BindEnv("VERIFY_PIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("MIN_ELIGIBLE_SCORE")
	_ = viper.BindEnv("SCORE_REFRESH_INTERVAL_MINUTES")
	_ = viper.BindEnv("SCORE_MAX_AGE_HOURS")

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

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "jasho:rate_limit"
	}

	if config.PINMaxAttempts <= 0 {
		config.PINMaxAttempts = 3
	}
	if config.PINLockoutSeconds <= 0 {
		config.PINLockoutSeconds = 900
	}
	if config.MinEligibleScore <= 0 {
		config.MinEligibleScore = 600
	}
	if config.ScoreRefreshIntervalMinutes <= 0 {
		config.ScoreRefreshIntervalMinutes = 60
	}
	if config.ScoreMaxAgeHours <= 0 {
		config.ScoreMaxAgeHours = 24
	}
	if strings.TrimSpace(config.SupportedCurrencies) == "" {
		config.SupportedCurrencies = "KES,USD,USDT"
	}

	return
}

// CurrencyList splits the configured currency codes.
func (c Config) CurrencyList() []string {
	parts := strings.Split(c.SupportedCurrencies, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
