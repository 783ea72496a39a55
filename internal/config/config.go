package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "REVIEWDISPLAY"
	defaultHTTPAddress        = "0.0.0.0:3000"
	defaultDatabasePath       = "./data/reviews.db"
	defaultLogLevel           = "info"
	defaultPlacesEndpoint     = "https://maps.googleapis.com/maps/api/place/details/json"
	defaultPlacesTimeout      = 10
	defaultPlacesRPS          = 5.0
	defaultCacheTTLHours      = 24
	defaultRetentionDays      = 7
	defaultRefreshPerMinute   = 6.0
	defaultRefreshBurst       = 3
	defaultAdminIssuer        = "reviewdisplay"
	legacyDatabasePathEnv     = "DATABASE_PATH"
	legacyGooglePlacesKeyEnv  = "GOOGLE_PLACES_API_KEY"
	envKeyDatabasePath        = envPrefix + "_DATABASE_PATH"
	envKeyPlacesAPIKey        = envPrefix + "_PLACES_API_KEY"
	minimumAdminSecretLength  = 16
	maximumRefreshBurstAmount = 100
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress             string
	DatabasePath            string
	LogLevel                string
	PlacesAPIKey            string
	PlacesEndpoint          string
	PlacesTimeout           time.Duration
	PlacesRequestsPerSecond float64
	ReviewCacheTTL          time.Duration
	ReviewRetention         time.Duration
	RefreshPerMinute        float64
	RefreshBurst            int
	AdminSigningSecret      string
	AdminIssuer             string
}

// AdminAuthEnabled reports whether /api routes require a bearer token.
func (c AppConfig) AdminAuthEnabled() bool {
	return strings.TrimSpace(c.AdminSigningSecret) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	// Unprefixed names kept for deployments that predate the prefix.
	_ = configViper.BindEnv("database.path", envKeyDatabasePath, legacyDatabasePathEnv)
	_ = configViper.BindEnv("places.api_key", envKeyPlacesAPIKey, legacyGooglePlacesKeyEnv)

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("places.endpoint", defaultPlacesEndpoint)
	configViper.SetDefault("places.timeout_seconds", defaultPlacesTimeout)
	configViper.SetDefault("places.requests_per_second", defaultPlacesRPS)
	configViper.SetDefault("reviews.cache_ttl_hours", defaultCacheTTLHours)
	configViper.SetDefault("reviews.retention_days", defaultRetentionDays)
	configViper.SetDefault("reviews.refresh_per_minute", defaultRefreshPerMinute)
	configViper.SetDefault("reviews.refresh_burst", defaultRefreshBurst)
	configViper.SetDefault("admin.issuer", defaultAdminIssuer)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:             strings.TrimSpace(configViper.GetString("http.address")),
		DatabasePath:            strings.TrimSpace(configViper.GetString("database.path")),
		LogLevel:                configViper.GetString("log.level"),
		PlacesAPIKey:            strings.TrimSpace(configViper.GetString("places.api_key")),
		PlacesEndpoint:          strings.TrimSpace(configViper.GetString("places.endpoint")),
		PlacesTimeout:           time.Duration(configViper.GetInt("places.timeout_seconds")) * time.Second,
		PlacesRequestsPerSecond: configViper.GetFloat64("places.requests_per_second"),
		ReviewCacheTTL:          time.Duration(configViper.GetInt("reviews.cache_ttl_hours")) * time.Hour,
		ReviewRetention:         time.Duration(configViper.GetInt("reviews.retention_days")) * 24 * time.Hour,
		RefreshPerMinute:        configViper.GetFloat64("reviews.refresh_per_minute"),
		RefreshBurst:            configViper.GetInt("reviews.refresh_burst"),
		AdminSigningSecret:      configViper.GetString("admin.signing_secret"),
		AdminIssuer:             strings.TrimSpace(configViper.GetString("admin.issuer")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.PlacesEndpoint == "" {
		return fmt.Errorf("places.endpoint is required")
	}
	if c.PlacesTimeout <= 0 {
		return fmt.Errorf("places.timeout_seconds must be positive")
	}
	if c.PlacesRequestsPerSecond < 0 {
		return fmt.Errorf("places.requests_per_second must not be negative")
	}
	if c.ReviewCacheTTL <= 0 {
		return fmt.Errorf("reviews.cache_ttl_hours must be positive")
	}
	if c.ReviewRetention <= 0 {
		return fmt.Errorf("reviews.retention_days must be positive")
	}
	if c.RefreshPerMinute < 0 {
		return fmt.Errorf("reviews.refresh_per_minute must not be negative")
	}
	if c.RefreshBurst < 0 || c.RefreshBurst > maximumRefreshBurstAmount {
		return fmt.Errorf("reviews.refresh_burst must be between 0 and %d", maximumRefreshBurstAmount)
	}
	if c.AdminAuthEnabled() {
		if len(strings.TrimSpace(c.AdminSigningSecret)) < minimumAdminSecretLength {
			return fmt.Errorf("admin.signing_secret must be at least %d characters", minimumAdminSecretLength)
		}
		if c.AdminIssuer == "" {
			return fmt.Errorf("admin.issuer is required when admin.signing_secret is set")
		}
	}
	return nil
}
