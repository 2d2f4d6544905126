package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ecr/ecrviewer/internal/platform/auth"
	"github.com/ecr/ecrviewer/internal/platform/db"
)

// Bundle sources accepted by BLOB_SOURCE.
const (
	BlobSourceNone   = ""
	BlobSourceGCS    = "gcs"
	BlobSourceMemory = "memory"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"ENV"`
	BasePath   string `mapstructure:"BASE_PATH"`
	AppVersion string `mapstructure:"APP_VERSION"`

	DatabaseType   string `mapstructure:"METADATA_DATABASE_TYPE"`
	DatabaseSchema string `mapstructure:"METADATA_DATABASE_SCHEMA"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	DBNamespace    string `mapstructure:"DB_NAMESPACE"`
	DBMaxConns     int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32  `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir  string `mapstructure:"MIGRATIONS_DIR"`

	NBSPubKey     string `mapstructure:"NBS_PUB_KEY"`
	AuthProvider  string `mapstructure:"AUTH_PROVIDER"`
	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL   string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience  string `mapstructure:"AUTH_AUDIENCE"`
	SessionSecret string `mapstructure:"SESSION_SECRET"`

	DisplayTimezone    string        `mapstructure:"DISPLAY_TIMEZONE"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	ConditionsCacheTTL time.Duration `mapstructure:"CONDITIONS_CACHE_TTL"`

	BlobSource     string `mapstructure:"BLOB_SOURCE"`
	ECRBucketName  string `mapstructure:"ECR_BUCKET_NAME"`
	GCPAPIEndpoint string `mapstructure:"GCP_API_ENDPOINT"`
	GCPCredentials string `mapstructure:"GCP_CREDENTIALS"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MetricsEnabled bool          `mapstructure:"METRICS_ENABLED"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "BASE_PATH", "APP_VERSION",
	"METADATA_DATABASE_TYPE", "METADATA_DATABASE_SCHEMA", "DATABASE_URL",
	"DB_NAMESPACE", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"NBS_PUB_KEY", "AUTH_PROVIDER", "AUTH_ISSUER", "AUTH_JWKS_URL",
	"AUTH_AUDIENCE", "SESSION_SECRET",
	"DISPLAY_TIMEZONE", "REDIS_URL", "CONDITIONS_CACHE_TTL",
	"BLOB_SOURCE", "ECR_BUCKET_NAME", "GCP_API_ENDPOINT", "GCP_CREDENTIALS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "METRICS_ENABLED",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "3000")
	v.SetDefault("ENV", "development")
	v.SetDefault("BASE_PATH", "/ecr-viewer")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("DB_NAMESPACE", "ecr_viewer")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DISPLAY_TIMEZONE", "America/New_York")
	v.SetDefault("CONDITIONS_CACHE_TTL", "60s")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.BasePath = normalizeBasePath(cfg.BasePath)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// normalizeBasePath returns "/x/y" for "x/y/", and "" for "/" or "".
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// TokenAuthEnabled reports whether deep-link tokens are accepted.
func (c *Config) TokenAuthEnabled() bool {
	return strings.TrimSpace(c.NBSPubKey) != ""
}

// SessionAuthEnabled reports whether an interactive provider is configured.
func (c *Config) SessionAuthEnabled() bool {
	return c.AuthProvider != ""
}

// Dialect resolves METADATA_DATABASE_TYPE.
func (c *Config) Dialect() (db.Dialect, error) {
	return db.DialectFor(c.DatabaseType)
}

// Location loads DISPLAY_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.DisplayTimezone)
}

// Validate checks that the configuration is complete and consistent. It
// reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Dialect(); err != nil {
		errs = append(errs, fmt.Errorf("METADATA_DATABASE_TYPE: %w", err))
	}
	switch strings.ToLower(strings.TrimSpace(c.DatabaseSchema)) {
	case db.VariantCore, db.VariantExtended:
	default:
		errs = append(errs, fmt.Errorf("METADATA_DATABASE_SCHEMA must be %q or %q, got %q",
			db.VariantCore, db.VariantExtended, c.DatabaseSchema))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if err := db.ValidateNamespace(c.DBNamespace); err != nil {
		errs = append(errs, fmt.Errorf("DB_NAMESPACE: %w", err))
	}
	if c.DBMinConns > c.DBMaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns))
	}

	if c.SessionAuthEnabled() && c.SessionSecret == "" && c.AuthIssuer == "" && c.AuthJWKSURL == "" {
		errs = append(errs, fmt.Errorf(
			"AUTH_PROVIDER %q needs SESSION_SECRET, AUTH_ISSUER or AUTH_JWKS_URL to verify sessions", c.AuthProvider))
	}
	if c.TokenAuthEnabled() {
		if _, err := auth.ParsePublicKeyPEM(c.NBSPubKey); err != nil {
			errs = append(errs, fmt.Errorf("NBS_PUB_KEY: %w", err))
		}
	}
	if c.IsProduction() && !c.TokenAuthEnabled() && !c.SessionAuthEnabled() {
		errs = append(errs, errors.New("production requires NBS_PUB_KEY or AUTH_PROVIDER"))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("DISPLAY_TIMEZONE: %w", err))
	}

	switch c.BlobSource {
	case BlobSourceNone, BlobSourceMemory:
	case BlobSourceGCS:
		if c.ECRBucketName == "" {
			errs = append(errs, errors.New("ECR_BUCKET_NAME is required when BLOB_SOURCE is gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("BLOB_SOURCE must be %q or %q, got %q", BlobSourceGCS, BlobSourceMemory, c.BlobSource))
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			errs = append(errs, errors.New("TLS_CERT_FILE is required when TLS_ENABLED is true"))
		}
		if c.TLSKeyFile == "" {
			errs = append(errs, errors.New("TLS_KEY_FILE is required when TLS_ENABLED is true"))
		}
	}

	return errors.Join(errs...)
}
