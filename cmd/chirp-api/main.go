package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/chirp/internal/auth"
	"github.com/MarcoPoloResearchLab/chirp/internal/config"
	"github.com/MarcoPoloResearchLab/chirp/internal/database"
	"github.com/MarcoPoloResearchLab/chirp/internal/events"
	"github.com/MarcoPoloResearchLab/chirp/internal/logging"
	"github.com/MarcoPoloResearchLab/chirp/internal/posts"
	"github.com/MarcoPoloResearchLab/chirp/internal/profiles"
	"github.com/MarcoPoloResearchLab/chirp/internal/server"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chirp-api",
		Short: "Chirp feed and posting service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMintTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional dotenv file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("http.allowed_origins"), "Comma separated CORS origins")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres or MySQL DSN (overrides env)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("jwks-url", defaults.GetString("auth.jwks_url"), "JWKS URL for RS256/ES256 bearer tokens")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Minted session token TTL in minutes")
	cmd.PersistentFlags().String("nats-url", defaults.GetString("events.nats_url"), "NATS server URL for post events")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.jwks_url", "jwks-url")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "events.nats_url", "nats-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	return readConfigFile(viper.GetViper(), cfgFile)
}

// readConfigFile fails on any read error for an explicit path and tolerates
// only a missing file when discovery found nothing.
func readConfigFile(configViper *viper.Viper, path string) error {
	if path != "" {
		configViper.SetConfigFile(path)
	}
	err := configViper.ReadInConfig()
	if err == nil {
		return nil
	}
	var configNotFound viper.ConfigFileNotFoundError
	if path == "" && errors.As(err, &configNotFound) {
		return nil
	}
	return err
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Options{
		Driver:             appConfig.DatabaseDriver,
		Path:               appConfig.DatabasePath,
		DSN:                appConfig.DatabaseDSN,
		AvatarSize:         appConfig.AvatarSize,
		ForceDefaultAvatar: appConfig.AvatarForceDefault,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	verifier, err := newTokenVerifier(appConfig, logger)
	if err != nil {
		return err
	}
	authenticator, err := auth.NewAuthenticator(auth.AuthenticatorConfig{
		Verifier:   verifier,
		CookieName: appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	profileService, err := profiles.NewService(profiles.ServiceConfig{
		Database:           db,
		Clock:              time.Now,
		AvatarSize:         appConfig.AvatarSize,
		ForceDefaultAvatar: appConfig.AvatarForceDefault,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	timelineService, err := posts.NewTimelineService(posts.TimelineServiceConfig{
		Database: db,
		Profiles: profileService,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	realtime := server.NewRealtimeDispatcher()
	publishers := []posts.Publisher{realtime}
	if appConfig.NATSURL != "" {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
		nc, err := nats.Connect(appConfig.NATSURL, nats.Name("chirp-api"))
		if err != nil {
			return err
		}
		defer nc.Drain() //nolint:errcheck
		natsPublisher, err := events.NewNATSPublisher(events.NATSPublisherConfig{
			Connection: nc,
			Subject:    appConfig.EventsSubject,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		publishers = append(publishers, natsPublisher)
		logger.Info("post events enabled", zap.String("subject", appConfig.EventsSubject))
	}

	submissionService, err := posts.NewSubmissionService(posts.SubmissionServiceConfig{
		Database:   db,
		Authors:    profileService,
		IDProvider: posts.NewUUIDProvider(),
		Publisher:  events.NewFanout(publishers...),
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Authenticator:  authenticator,
		Profiles:       profileService,
		Timeline:       timelineService,
		Submissions:    submissionService,
		Realtime:       realtime,
		Limits:         posts.Limits{Default: appConfig.FeedDefaultLimit, Max: appConfig.FeedMaxLimit},
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newTokenVerifier prefers JWKS verification when a key set URL is configured.
func newTokenVerifier(appConfig config.AppConfig, logger *zap.Logger) (auth.TokenVerifier, error) {
	if appConfig.JWKSURL != "" {
		return auth.NewJWKSVerifier(auth.JWKSVerifierConfig{
			JWKSURL:  appConfig.JWKSURL,
			Issuer:   appConfig.TokenIssuer,
			Audience: appConfig.TokenAudience,
			Logger:   logger,
		})
	}
	return auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
	})
}
