package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "CHIRP"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultAllowedOrigins = "*"
	defaultDatabaseDriver = DriverSQLite
	defaultDatabasePath   = "chirp.db"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultIssuer         = "chirp-auth"
	defaultAudience       = "authenticated"
	defaultCookieName     = "chirp_session"
	defaultTokenTTL       = 60
	defaultFeedLimit      = 10
	defaultFeedMaxLimit   = 100
	defaultEventsSubject  = "posts.created"
	defaultAvatarSize     = 80
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var (
	ErrMissingAuthKeys     = errors.New("config: auth.signing_secret or auth.jwks_url is required")
	ErrUnknownDriver       = errors.New("config: unknown database.driver")
	ErrMissingDatabasePath = errors.New("config: database.path is required for sqlite")
	ErrMissingDatabaseDSN  = errors.New("config: database.dsn is required")
	ErrMissingCookieName   = errors.New("config: auth.cookie_name is required")
	ErrInvalidFeedLimits   = errors.New("config: feed.default_limit must be between 1 and feed.max_limit")
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	LogLevel  string
	LogFormat string

	SigningSecret string
	TokenIssuer   string
	TokenAudience string
	JWKSURL       string
	CookieName    string
	TokenTTL      time.Duration

	FeedDefaultLimit int
	FeedMaxLimit     int

	NATSURL       string
	EventsSubject string

	AvatarSize         int
	AvatarForceDefault bool
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
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.signing_secret", "")
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.audience", defaultAudience)
	configViper.SetDefault("auth.jwks_url", "")
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTL)
	configViper.SetDefault("feed.default_limit", defaultFeedLimit)
	configViper.SetDefault("feed.max_limit", defaultFeedMaxLimit)
	configViper.SetDefault("events.nats_url", "")
	configViper.SetDefault("events.subject", defaultEventsSubject)
	configViper.SetDefault("avatar.size", defaultAvatarSize)
	configViper.SetDefault("avatar.force_default", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        strings.TrimSpace(configViper.GetString("http.address")),
		AllowedOrigins:     splitList(configViper.GetString("http.allowed_origins")),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:       strings.TrimSpace(configViper.GetString("database.path")),
		DatabaseDSN:        strings.TrimSpace(configViper.GetString("database.dsn")),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          configViper.GetString("log.format"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenIssuer:        strings.TrimSpace(configViper.GetString("auth.issuer")),
		TokenAudience:      strings.TrimSpace(configViper.GetString("auth.audience")),
		JWKSURL:            strings.TrimSpace(configViper.GetString("auth.jwks_url")),
		CookieName:         strings.TrimSpace(configViper.GetString("auth.cookie_name")),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		FeedDefaultLimit:   configViper.GetInt("feed.default_limit"),
		FeedMaxLimit:       configViper.GetInt("feed.max_limit"),
		NATSURL:            strings.TrimSpace(configViper.GetString("events.nats_url")),
		EventsSubject:      strings.TrimSpace(configViper.GetString("events.subject")),
		AvatarSize:         configViper.GetInt("avatar.size"),
		AvatarForceDefault: configViper.GetBool("avatar.force_default"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" && c.JWKSURL == "" {
		return ErrMissingAuthKeys
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return ErrMissingDatabasePath
		}
	case DriverPostgres, DriverMySQL:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("%w for %s", ErrMissingDatabaseDSN, c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.DatabaseDriver)
	}
	if c.CookieName == "" {
		return ErrMissingCookieName
	}
	if c.FeedMaxLimit <= 0 || c.FeedDefaultLimit <= 0 || c.FeedDefaultLimit > c.FeedMaxLimit {
		return ErrInvalidFeedLimits
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
