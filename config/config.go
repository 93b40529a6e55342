// Package config loads the engine's configuration from environment
// variables (optionally seeded by a .env file), using viper the way the
// teacher's config package does, limited to the keys spec §6 recognizes
// plus the ambient Postgres/SMTP connection settings a host process needs.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // Postgres driver, registered for database/sql
	"github.com/spf13/viper"
)

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// SMTPConfig holds NotificationService's email-channel settings.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// RetryConfig holds MAX_RETRIES and the per-job-type retry delays (spec §6,
// §4.4).
type RetryConfig struct {
	MaxRetries      int
	HealthDelay     time.Duration
	TestDelay       time.Duration
	WarmupDelay     time.Duration
	RotationDelay   time.Duration
}

// RulesConfig holds the TransitionRules thresholds (spec §6).
type RulesConfig struct {
	MinScore       int
	MinTests       int
	RecoveryDays   int
	MaxConsecLow   int
	GraduationDays int
}

// RateConfig holds the RateLimiter windows (spec §6).
type RateConfig struct {
	PerDomainPerMinute int
	GlobalPerMinute    int
}

// HealthConfig holds the health/pool-health thresholds (spec §6).
type HealthConfig struct {
	Critical     float64
	Warning      float64
	PoolCritical float64
}

// Config is the engine's full configuration surface.
type Config struct {
	Environment string
	LogLevel    string

	Database DatabaseConfig
	SMTP     SMTPConfig
	Retry    RetryConfig
	Rules    RulesConfig
	Rate     RateConfig
	Health   HealthConfig

	// AlertRecipient is the address NotificationService emails critical
	// notifications to.
	AlertRecipient string
}

// IsDevelopment reports whether Environment is "development".
func (c *Config) IsDevelopment() bool { return c.Environment == "development" }

// IsProduction reports whether Environment is "production".
func (c *Config) IsProduction() bool { return c.Environment == "production" }

// LoadOptions configures Load.
type LoadOptions struct {
	// EnvFile is an optional .env-style file to seed process environment
	// variables from; missing files are not an error.
	EnvFile string
}

// Load loads configuration with the default ".env" file.
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{EnvFile: ".env"})
}

// LoadWithOptions loads configuration from environment variables, optionally
// seeded by opts.EnvFile, applying the defaults named in spec §6.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "domainfleet")
	v.SetDefault("DB_SSLMODE", "require")

	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "alerts@domainfleet.local")

	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("RETRY_DELAY_HEALTH_MS", 0)
	v.SetDefault("RETRY_DELAY_TEST_MS", 15*60*1000)
	v.SetDefault("RETRY_DELAY_WARMUP_MS", 60*60*1000)
	v.SetDefault("RETRY_DELAY_ROTATION_MS", 5*60*1000)

	v.SetDefault("MIN_SCORE", 75)
	v.SetDefault("MIN_TESTS", 3)
	v.SetDefault("RECOVERY_DAYS", 21)
	v.SetDefault("MAX_CONSEC_LOW", 2)
	v.SetDefault("GRADUATION_DAYS", 21)

	v.SetDefault("RATE_PER_DOMAIN", 30)
	v.SetDefault("RATE_GLOBAL", 100)

	v.SetDefault("HEALTH_CRITICAL", 60)
	v.SetDefault("HEALTH_WARNING", 75)
	v.SetDefault("POOL_HEALTH_CRITICAL", 70)

	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		SMTP: SMTPConfig{
			Host:      v.GetString("SMTP_HOST"),
			Port:      v.GetInt("SMTP_PORT"),
			Username:  v.GetString("SMTP_USERNAME"),
			Password:  v.GetString("SMTP_PASSWORD"),
			FromEmail: v.GetString("SMTP_FROM"),
			FromName:  v.GetString("SMTP_FROM_NAME"),
		},
		Retry: RetryConfig{
			MaxRetries:    v.GetInt("MAX_RETRIES"),
			HealthDelay:   time.Duration(v.GetInt("RETRY_DELAY_HEALTH_MS")) * time.Millisecond,
			TestDelay:     time.Duration(v.GetInt("RETRY_DELAY_TEST_MS")) * time.Millisecond,
			WarmupDelay:   time.Duration(v.GetInt("RETRY_DELAY_WARMUP_MS")) * time.Millisecond,
			RotationDelay: time.Duration(v.GetInt("RETRY_DELAY_ROTATION_MS")) * time.Millisecond,
		},
		Rules: RulesConfig{
			MinScore:       v.GetInt("MIN_SCORE"),
			MinTests:       v.GetInt("MIN_TESTS"),
			RecoveryDays:   v.GetInt("RECOVERY_DAYS"),
			MaxConsecLow:   v.GetInt("MAX_CONSEC_LOW"),
			GraduationDays: v.GetInt("GRADUATION_DAYS"),
		},
		Rate: RateConfig{
			PerDomainPerMinute: v.GetInt("RATE_PER_DOMAIN"),
			GlobalPerMinute:    v.GetInt("RATE_GLOBAL"),
		},
		Health: HealthConfig{
			Critical:     v.GetFloat64("HEALTH_CRITICAL"),
			Warning:      v.GetFloat64("HEALTH_WARNING"),
			PoolCritical: v.GetFloat64("POOL_HEALTH_CRITICAL"),
		},
		AlertRecipient: v.GetString("ALERT_RECIPIENT"),
	}

	return cfg, nil
}
