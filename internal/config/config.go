package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server     ServerConfig     `mapstructure:",squash"`
	Database   DatabaseConfig   `mapstructure:",squash"`
	Redis      RedisConfig      `mapstructure:",squash"`
	Ledger     LedgerConfig     `mapstructure:",squash"`
	Bureau     BureauConfig     `mapstructure:",squash"`
	Scheduler SchedulerConfig  `mapstructure:",squash"`
	Logging    LoggingConfig    `mapstructure:",squash"`
	Business   BusinessConfig   `mapstructure:",squash"`
	Dependency DependencyConfig `mapstructure:",squash"`
	Health     HealthConfig     `mapstructure:",squash"`
}

type ServerConfig struct {
	Port         string `mapstructure:"SERVER_PORT"`
	Host         string `mapstructure:"SERVER_HOST"`
	Env          string `mapstructure:"ENV"`
	ReadTimeout  string `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout string `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"STORE_DRIVER"`
	URL             string `mapstructure:"DATABASE_URL"`
	MaxOpenConns    int    `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime string `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
}

type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	CacheTTL string `mapstructure:"SCHEDULE_CACHE_TTL"`
}

type LedgerConfig struct {
	Driver      string `mapstructure:"LEDGER_DRIVER"`
	BankAccount string `mapstructure:"BANK_ACCOUNT_NUMBER"`
	GoldRateKey string `mapstructure:"GOLD_RATE_REDIS_KEY"`
}

// BureauConfig seeds the in-process bureau used with STORE_DRIVER=memory.
type BureauConfig struct {
	StaticScores string `mapstructure:"STATIC_CREDIT_SCORES"`
}

type SchedulerConfig struct {
	OverdueCron    string `mapstructure:"SCHEDULER_OVERDUE_CRON"`
	ReminderCron   string `mapstructure:"SCHEDULER_REMINDER_CRON"`
	ReminderWindow string `mapstructure:"SCHEDULER_REMINDER_WINDOW"`
	Timezone       string `mapstructure:"SCHEDULER_TIMEZONE"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type BusinessConfig struct {
	CreditTiers                string `mapstructure:"CREDIT_TIERS"`
	ForeclosureChargePercent   string `mapstructure:"FORECLOSURE_CHARGE_PERCENT"`
	ForeclosureTaxPercent      string `mapstructure:"FORECLOSURE_TAX_PERCENT"`
	GoldLTVRatio               string `mapstructure:"GOLD_LTV_RATIO"`
	GoldInterestRate           string `mapstructure:"GOLD_INTEREST_RATE"`
	GoldWeightTolerancePercent string `mapstructure:"GOLD_WEIGHT_TOLERANCE_PERCENT"`
	GoldRatePerGram            string `mapstructure:"GOLD_RATE_PER_GRAM"`
	MaxTenureMonths            int    `mapstructure:"MAX_TENURE_MONTHS"`
}

type DependencyConfig struct {
	Timeout string `mapstructure:"DEPENDENCY_TIMEOUT"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"SERVER_PORT":                   "8080",
	"SERVER_HOST":                   "0.0.0.0",
	"ENV":                           "development",
	"SERVER_READ_TIMEOUT":           "15s",
	"SERVER_WRITE_TIMEOUT":          "15s",
	"STORE_DRIVER":                  "postgres",
	"DATABASE_URL":                  "",
	"DATABASE_MAX_OPEN_CONNS":       25,
	"DATABASE_MAX_IDLE_CONNS":       5,
	"DATABASE_CONN_MAX_LIFETIME":    "5m",
	"REDIS_HOST":                    "localhost",
	"REDIS_PORT":                    "6379",
	"REDIS_PASSWORD":                "",
	"REDIS_DB":                      0,
	"SCHEDULE_CACHE_TTL":            "10m",
	"LEDGER_DRIVER":                 "redis",
	"BANK_ACCOUNT_NUMBER":           "BANK-LOAN-POOL",
	"GOLD_RATE_REDIS_KEY":           "pricing:gold:rate_per_gram",
	"STATIC_CREDIT_SCORES":          "",
	"SCHEDULER_OVERDUE_CRON":        "0 5 0 * * *",
	"SCHEDULER_REMINDER_CRON":       "0 0 9 * * *",
	"SCHEDULER_REMINDER_WINDOW":     "72h",
	"SCHEDULER_TIMEZONE":            "Asia/Kolkata",
	"LOG_LEVEL":                     "info",
	"LOG_FORMAT":                    "json",
	"CREDIT_TIERS":                  "750:10.50:2000000,650:12.75:1000000,550:15.00:300000",
	"FORECLOSURE_CHARGE_PERCENT":    "3",
	"FORECLOSURE_TAX_PERCENT":       "18",
	"GOLD_LTV_RATIO":                "0.75",
	"GOLD_INTEREST_RATE":            "9.50",
	"GOLD_WEIGHT_TOLERANCE_PERCENT": "2",
	"GOLD_RATE_PER_GRAM":            "",
	"MAX_TENURE_MONTHS":             360,
	"DEPENDENCY_TIMEOUT":            "3s",
	"HEALTH_CHECK_TIMEOUT":          "5s",
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	// A local .env is optional; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.Database.Driver)
	}

	switch c.Ledger.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("LEDGER_DRIVER must be redis or memory, got %q", c.Ledger.Driver)
	}

	if c.Ledger.BankAccount == "" {
		return fmt.Errorf("BANK_ACCOUNT_NUMBER is required")
	}

	if _, err := ParseCreditScores(c.Bureau.StaticScores); err != nil {
		return fmt.Errorf("STATIC_CREDIT_SCORES: %w", err)
	}

	if c.Business.MaxTenureMonths <= 0 {
		return fmt.Errorf("MAX_TENURE_MONTHS must be greater than 0")
	}

	if _, err := ParseRateTiers(c.Business.CreditTiers); err != nil {
		return fmt.Errorf("CREDIT_TIERS: %w", err)
	}

	decimals := map[string]string{
		"FORECLOSURE_CHARGE_PERCENT":    c.Business.ForeclosureChargePercent,
		"FORECLOSURE_TAX_PERCENT":       c.Business.ForeclosureTaxPercent,
		"GOLD_LTV_RATIO":                c.Business.GoldLTVRatio,
		"GOLD_INTEREST_RATE":            c.Business.GoldInterestRate,
		"GOLD_WEIGHT_TOLERANCE_PERCENT": c.Business.GoldWeightTolerancePercent,
	}
	for name, value := range decimals {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("%s must be a valid decimal: %w", name, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	ltv, _ := decimal.NewFromString(c.Business.GoldLTVRatio)
	if ltv.IsZero() || ltv.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("GOLD_LTV_RATIO must be in (0, 1]")
	}

	if c.Business.GoldRatePerGram != "" {
		if _, err := decimal.NewFromString(c.Business.GoldRatePerGram); err != nil {
			return fmt.Errorf("GOLD_RATE_PER_GRAM must be a valid decimal: %w", err)
		}
	}

	durations := map[string]string{
		"SERVER_READ_TIMEOUT":        c.Server.ReadTimeout,
		"SERVER_WRITE_TIMEOUT":       c.Server.WriteTimeout,
		"DATABASE_CONN_MAX_LIFETIME": c.Database.ConnMaxLifetime,
		"SCHEDULE_CACHE_TTL":         c.Redis.CacheTTL,
		"SCHEDULER_REMINDER_WINDOW":  c.Scheduler.ReminderWindow,
		"DEPENDENCY_TIMEOUT":         c.Dependency.Timeout,
		"HEALTH_CHECK_TIMEOUT":       c.Health.Timeout,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a valid duration: %w", name, err)
		}
	}

	return nil
}

// Policy converts the validated business settings into typed policy inputs.
func (c *Config) Policy() Policy {
	tiers, _ := ParseRateTiers(c.Business.CreditTiers)
	return Policy{
		RateTiers:                  tiers,
		ForeclosureChargePercent:   mustDecimal(c.Business.ForeclosureChargePercent),
		ForeclosureTaxPercent:      mustDecimal(c.Business.ForeclosureTaxPercent),
		GoldLTVRatio:               mustDecimal(c.Business.GoldLTVRatio),
		GoldInterestRate:           mustDecimal(c.Business.GoldInterestRate),
		GoldWeightTolerancePercent: mustDecimal(c.Business.GoldWeightTolerancePercent),
		MaxTenureMonths:            c.Business.MaxTenureMonths,
		BankAccount:                c.Ledger.BankAccount,
		DependencyTimeout:          c.GetDependencyTimeout(),
	}
}

// GetGoldRatePerGram returns the static gold rate, if one is configured.
func (c *Config) GetGoldRatePerGram() (decimal.Decimal, bool) {
	if c.Business.GoldRatePerGram == "" {
		return decimal.Zero, false
	}
	return mustDecimal(c.Business.GoldRatePerGram), true
}

// GetDependencyTimeout returns the bound applied to ledger, bureau and pricing calls
func (c *Config) GetDependencyTimeout() time.Duration {
	return mustDuration(c.Dependency.Timeout)
}

// GetReadTimeout returns the HTTP server read timeout
func (c *Config) GetReadTimeout() time.Duration {
	return mustDuration(c.Server.ReadTimeout)
}

// GetWriteTimeout returns the HTTP server write timeout
func (c *Config) GetWriteTimeout() time.Duration {
	return mustDuration(c.Server.WriteTimeout)
}

// GetConnMaxLifetime returns the database connection lifetime
func (c *Config) GetConnMaxLifetime() time.Duration {
	return mustDuration(c.Database.ConnMaxLifetime)
}

// GetCacheTTL returns how long schedule listings stay cached
func (c *Config) GetCacheTTL() time.Duration {
	return mustDuration(c.Redis.CacheTTL)
}

// GetReminderWindow returns how far ahead the reminder job looks
func (c *Config) GetReminderWindow() time.Duration {
	return mustDuration(c.Scheduler.ReminderWindow)
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	return mustDuration(c.Health.Timeout)
}

// StaticCreditScores returns the validated STATIC_CREDIT_SCORES seed.
func (c *Config) StaticCreditScores() map[string]int {
	scores, _ := ParseCreditScores(c.Bureau.StaticScores)
	return scores
}

// RedisAddr returns host:port for the Redis client.
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

func mustDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
