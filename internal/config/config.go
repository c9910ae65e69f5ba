package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port          int    `mapstructure:"PORT" validate:"min=1,max=65535"`
	Env           string `mapstructure:"APP_ENV" validate:"oneof=development production test"`
	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`

	// Storage
	DatabasePath        string `mapstructure:"DATABASE_PATH"`
	DefaultDatabasePath string `mapstructure:"DEFAULT_DATABASE_PATH" validate:"required"`
	DatabaseURL         string `mapstructure:"DATABASE_URL"`

	// Redis
	RedisAddr               string `mapstructure:"REDIS_ADDR"`
	RedisPassword           string `mapstructure:"REDIS_PASSWORD"`
	RedisDB                 int    `mapstructure:"REDIS_DB" validate:"min=0"`
	MetadataCacheTTLSeconds int    `mapstructure:"METADATA_CACHE_TTL_SECONDS" validate:"min=1"`
	ForecastCacheTTLSeconds int    `mapstructure:"FORECAST_CACHE_TTL_SECONDS" validate:"min=1"`

	// Loyverse
	LoyverseBaseURL    string  `mapstructure:"LOYVERSE_BASE_URL" validate:"required,url"`
	LoyverseToken      string  `mapstructure:"LOYVERSE_TOKEN"`
	LoyversePageLimit  int     `mapstructure:"LOYVERSE_PAGE_LIMIT" validate:"min=1,max=250"`
	LoyverseRatePerSec float64 `mapstructure:"LOYVERSE_REQUESTS_PER_SECOND" validate:"min=0"`

	// Reporting
	ReportTimezone        string `mapstructure:"REPORT_TIMEZONE" validate:"required"`
	SyncSchedule          string `mapstructure:"SYNC_SCHEDULE"`
	CreditPaymentKeywords string `mapstructure:"CREDIT_PAYMENT_KEYWORDS"`

	// Auth
	AuthSecret            string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES" validate:"min=1"`
	DashboardPassword     string `mapstructure:"DASHBOARD_PASSWORD"`
}

// Load reads configuration from environment variables and an optional .env
// file in the working directory.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv picks it up on Unmarshal.
	v.SetDefault("PORT", 8080)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("DATABASE_PATH", "")
	v.SetDefault("DEFAULT_DATABASE_PATH", "posdash_data.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("METADATA_CACHE_TTL_SECONDS", 3600)
	v.SetDefault("FORECAST_CACHE_TTL_SECONDS", 300)
	v.SetDefault("LOYVERSE_BASE_URL", "https://api.loyverse.com/v1.0")
	v.SetDefault("LOYVERSE_TOKEN", "")
	v.SetDefault("LOYVERSE_PAGE_LIMIT", 250)
	v.SetDefault("LOYVERSE_REQUESTS_PER_SECOND", 5)
	v.SetDefault("REPORT_TIMEZONE", "Asia/Bangkok")
	v.SetDefault("SYNC_SCHEDULE", "")
	v.SetDefault("CREDIT_PAYMENT_KEYWORDS", "")
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("DASHBOARD_PASSWORD", "")

	// Optional .env file for local development; missing is fine.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.DashboardPassword = strings.TrimSpace(cfg.DashboardPassword)
	cfg.LoyverseToken = strings.TrimSpace(cfg.LoyverseToken)
	cfg.SyncSchedule = strings.TrimSpace(cfg.SyncSchedule)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves REPORT_TIMEZONE.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}

// CreditKeywords splits CREDIT_PAYMENT_KEYWORDS on commas. Empty means the
// built-in keywords apply.
func (c Config) CreditKeywords() []string {
	var out []string
	for _, kw := range strings.Split(c.CreditPaymentKeywords, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func (c Config) MetadataTTL() time.Duration {
	return time.Duration(c.MetadataCacheTTLSeconds) * time.Second
}

func (c Config) ForecastTTL() time.Duration {
	return time.Duration(c.ForecastCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
