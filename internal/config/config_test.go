package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress)
	}
	if cfg.DatabaseDriver != DriverSQLite || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database settings %q %q", cfg.DatabaseDriver, cfg.DatabasePath)
	}
	if cfg.FeedDefaultLimit != 10 || cfg.FeedMaxLimit != 100 {
		t.Fatalf("unexpected feed limits %d/%d", cfg.FeedDefaultLimit, cfg.FeedMaxLimit)
	}
	if cfg.TokenTTL != time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.AvatarSize != defaultAvatarSize || cfg.AvatarForceDefault {
		t.Fatalf("unexpected avatar settings %d/%v", cfg.AvatarSize, cfg.AvatarForceDefault)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CHIRP_AUTH_JWKS_URL", "https://id.example.com/.well-known/jwks.json")
	t.Setenv("CHIRP_HTTP_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("CHIRP_FEED_DEFAULT_LIMIT", "20")
	t.Setenv("CHIRP_AVATAR_FORCE_DEFAULT", "true")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.JWKSURL == "" {
		t.Fatalf("expected jwks url from env")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.FeedDefaultLimit != 20 {
		t.Fatalf("unexpected default limit %d", cfg.FeedDefaultLimit)
	}
	if !cfg.AvatarForceDefault {
		t.Fatalf("expected forced identicon avatars from env")
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name    string
		values  map[string]any
		wantErr error
	}{
		{
			name:    "missing-auth-keys",
			values:  map[string]any{},
			wantErr: ErrMissingAuthKeys,
		},
		{
			name:    "unknown-driver",
			values:  map[string]any{"auth.signing_secret": "s", "database.driver": "oracle"},
			wantErr: ErrUnknownDriver,
		},
		{
			name:    "postgres-without-dsn",
			values:  map[string]any{"auth.signing_secret": "s", "database.driver": "postgres"},
			wantErr: ErrMissingDatabaseDSN,
		},
		{
			name:    "default-limit-above-max",
			values:  map[string]any{"auth.signing_secret": "s", "feed.default_limit": 500},
			wantErr: ErrInvalidFeedLimits,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.values {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}
