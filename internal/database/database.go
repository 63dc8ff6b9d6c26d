package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/chirp/internal/avatar"
	"github.com/MarcoPoloResearchLab/chirp/internal/config"
	"github.com/MarcoPoloResearchLab/chirp/internal/posts"
	"github.com/MarcoPoloResearchLab/chirp/internal/profiles"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	ErrMissingPath = errors.New("database: path is required for sqlite")
	ErrMissingDSN  = errors.New("database: dsn is required")
)

// Options selects the store backing the API.
type Options struct {
	Driver string
	Path   string
	DSN    string

	// AvatarSize and ForceDefaultAvatar select the style of backfilled avatars.
	AvatarSize         int
	ForceDefaultAvatar bool
}

// Open establishes a connection for the configured driver and performs schema migrations.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options.Driver = strings.ToLower(strings.TrimSpace(options.Driver))
	if options.Driver == "" {
		options.Driver = config.DriverSQLite
	}
	dialector, err := dialectorFor(options)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", options.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if options.Driver == config.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
		if err := sqlDB.Ping(); err != nil {
			return nil, fmt.Errorf("database: ping %s: %w", options.Driver, err)
		}
	}

	if err := Migrate(db, avatar.Style{Size: options.AvatarSize, ForceDefault: options.ForceDefaultAvatar}, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", options.Driver))
	return db, nil
}

// Migrate brings the schema up to date and applies pending data migrations.
func Migrate(db *gorm.DB, avatarStyle avatar.Style, logger *zap.Logger) error {
	if err := db.AutoMigrate(&profiles.Profile{}, &posts.Post{}, &migrationRecord{}); err != nil {
		return fmt.Errorf("database: auto migrate: %w", err)
	}
	return applyMigrations(db, dataMigrations(avatarStyle), logger)
}

func dialectorFor(options Options) (gorm.Dialector, error) {
	switch options.Driver {
	case config.DriverSQLite:
		if strings.TrimSpace(options.Path) == "" {
			return nil, ErrMissingPath
		}
		return sqlite.Open(options.Path), nil
	case config.DriverPostgres:
		if strings.TrimSpace(options.DSN) == "" {
			return nil, ErrMissingDSN
		}
		return postgres.Open(options.DSN), nil
	case config.DriverMySQL:
		if strings.TrimSpace(options.DSN) == "" {
			return nil, ErrMissingDSN
		}
		return mysql.Open(options.DSN), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, options.Driver)
	}
}
