package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "PITCH"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "pitch.db"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultTokenTTLMinutes    = 120
	defaultViewWindow         = 30 * time.Second
	defaultTrackingRateLimit  = 120
	defaultLoginRateLimit     = 10
	defaultStorageBackend     = StorageBackendLocal
	defaultStorageLocalDir    = "uploads"
	defaultStoragePublicPath  = "/uploads"
	defaultPublicBaseURL      = "http://localhost:5173"
	defaultCORSAllowedOrigins = "*"
)

const (
	// StorageBackendLocal keeps uploaded assets on the local filesystem.
	StorageBackendLocal = "local"
	// StorageBackendGCS keeps uploaded assets in a Google Cloud Storage bucket.
	StorageBackendGCS = "gcs"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	LogFormat          string
	PasswordHash       string
	SigningSecret      string
	TokenTTL           time.Duration
	ViewWindow         time.Duration
	TrackingRateLimit  int
	LoginRateLimit     int
	StorageBackend     string
	StorageLocalDir    string
	StoragePublicPath  string
	StorageGCSBucket   string
	PublicBaseURL      string
	CORSAllowedOrigins []string
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

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("tracking.view_window", defaultViewWindow)
	configViper.SetDefault("tracking.rate_limit_per_minute", defaultTrackingRateLimit)
	configViper.SetDefault("auth.login_rate_limit_per_minute", defaultLoginRateLimit)
	configViper.SetDefault("storage.backend", defaultStorageBackend)
	configViper.SetDefault("storage.local_dir", defaultStorageLocalDir)
	configViper.SetDefault("storage.public_path", defaultStoragePublicPath)
	configViper.SetDefault("public.base_url", defaultPublicBaseURL)
	configViper.SetDefault("cors.allowed_origins", defaultCORSAllowedOrigins)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          configViper.GetString("log.format"),
		PasswordHash:       configViper.GetString("auth.password_hash"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		ViewWindow:         configViper.GetDuration("tracking.view_window"),
		TrackingRateLimit:  configViper.GetInt("tracking.rate_limit_per_minute"),
		LoginRateLimit:     configViper.GetInt("auth.login_rate_limit_per_minute"),
		StorageBackend:     strings.ToLower(strings.TrimSpace(configViper.GetString("storage.backend"))),
		StorageLocalDir:    configViper.GetString("storage.local_dir"),
		StoragePublicPath:  configViper.GetString("storage.public_path"),
		StorageGCSBucket:   configViper.GetString("storage.gcs_bucket"),
		PublicBaseURL:      strings.TrimRight(configViper.GetString("public.base_url"), "/"),
		CORSAllowedOrigins: splitList(configViper.GetStringSlice("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.PasswordHash) == "" {
		return fmt.Errorf("auth.password_hash is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.ViewWindow < 0 {
		return fmt.Errorf("tracking.view_window must not be negative")
	}
	if c.TrackingRateLimit < 0 {
		return fmt.Errorf("tracking.rate_limit_per_minute must not be negative")
	}
	if c.LoginRateLimit < 0 {
		return fmt.Errorf("auth.login_rate_limit_per_minute must not be negative")
	}
	switch c.StorageBackend {
	case StorageBackendLocal:
		if strings.TrimSpace(c.StorageLocalDir) == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
		if !strings.HasPrefix(c.StoragePublicPath, "/") {
			return fmt.Errorf("storage.public_path must start with /")
		}
	case StorageBackendGCS:
		if strings.TrimSpace(c.StorageGCSBucket) == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.StorageBackend)
	}
	return nil
}

// splitList accepts both repeated values and a single comma separated value from env.
func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
