// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	Env            string `mapstructure:"APP_ENV"`

	// Chat core tuning.
	ChatHistorySize      int  `mapstructure:"CHAT_HISTORY_SIZE"`
	PresenceTTLSeconds   int  `mapstructure:"PRESENCE_TTL_SECONDS"`
	PresenceReconcileSec int  `mapstructure:"PRESENCE_RECONCILE_SECONDS"`
	ReportRateLimit      int  `mapstructure:"REPORT_RATE_LIMIT"`
	ReportRateWindowMin  int  `mapstructure:"REPORT_RATE_WINDOW_MINUTES"`
	ChatRateLimit        int  `mapstructure:"CHAT_RATE_LIMIT"`
	LegacyFrames         bool `mapstructure:"LEGACY_FRAMES"`

	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingExporter string `mapstructure:"TRACING_EXPORTER"` // "stdout" or "otlp"
	OTLPEndpoint    string `mapstructure:"OTLP_ENDPOINT"`

	// Development bootstrap. Never enabled in production profiles.
	DevBootstrapRoot bool   `mapstructure:"DEV_BOOTSTRAP_ROOT"`
	DevRootUsername  string `mapstructure:"DEV_ROOT_USERNAME"`
	DevRootPassword  string `mapstructure:"DEV_ROOT_PASSWORD"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config
	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	// Set default values for development
	viper.SetDefault("PORT", "8460")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "glimmer")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("CHAT_HISTORY_SIZE", 50)
	viper.SetDefault("PRESENCE_TTL_SECONDS", 30)
	viper.SetDefault("PRESENCE_RECONCILE_SECONDS", 2)
	viper.SetDefault("REPORT_RATE_LIMIT", 5)
	viper.SetDefault("REPORT_RATE_WINDOW_MINUTES", 10)
	viper.SetDefault("CHAT_RATE_LIMIT", 15)
	viper.SetDefault("LEGACY_FRAMES", true)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("DEV_BOOTSTRAP_ROOT", false)
	viper.SetDefault("DEV_ROOT_USERNAME", "glimmer_root")
	viper.SetDefault("DEV_ROOT_PASSWORD", "")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.ChatHistorySize <= 0 {
		return errors.New("CHAT_HISTORY_SIZE must be positive")
	}
	if c.PresenceTTLSeconds <= 0 {
		return errors.New("PRESENCE_TTL_SECONDS must be positive")
	}
	if c.PresenceReconcileSec <= 0 {
		return errors.New("PRESENCE_RECONCILE_SECONDS must be positive")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	// Strict checks for production
	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
	} else {
		if len(c.JWTSecret) < 32 {
			log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
		}
	}

	return nil
}

// PresenceTTL returns the presence key TTL as a duration.
func (c *Config) PresenceTTL() time.Duration {
	return time.Duration(c.PresenceTTLSeconds) * time.Second
}

// PresenceReconcileInterval returns the reconciliation interval as a duration.
func (c *Config) PresenceReconcileInterval() time.Duration {
	return time.Duration(c.PresenceReconcileSec) * time.Second
}

// ReportRateWindow returns the report rate-limit window as a duration.
func (c *Config) ReportRateWindow() time.Duration {
	return time.Duration(c.ReportRateWindowMin) * time.Minute
}
