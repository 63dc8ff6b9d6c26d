package posts

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/chirp/internal/failures"
	"github.com/MarcoPoloResearchLab/chirp/internal/profiles"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opFeed     = "posts.feed"
	opTimeline = "posts.timeline"
)

var (
	errMissingDatabase = errors.New("posts: database connection required")
	errMissingProfiles = errors.New("posts: profile lookup required")
	noOpLogger         = zap.NewNop()
)

// ProfileLookup resolves handles to profiles.
type ProfileLookup interface {
	GetByHandle(ctx context.Context, handle string) (profiles.Profile, error)
}

// TimelineServiceConfig describes the dependencies of the timeline query service.
type TimelineServiceConfig struct {
	Database *gorm.DB
	Profiles ProfileLookup
	Logger   *zap.Logger
}

// TimelineService answers page queries over the global feed and per-author timelines.
// It is read-only.
type TimelineService struct {
	db       *gorm.DB
	profiles ProfileLookup
	logger   *zap.Logger
}

// NewTimelineService constructs the timeline query service.
func NewTimelineService(cfg TimelineServiceConfig) (*TimelineService, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Profiles == nil {
		return nil, errMissingProfiles
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &TimelineService{
		db:       cfg.Database,
		profiles: cfg.Profiles,
		logger:   logger,
	}, nil
}

// Feed returns one page of the global feed, newest first.
func (s *TimelineService) Feed(ctx context.Context, request PageRequest) (Page, error) {
	if err := request.validate(); err != nil {
		return Page{}, err
	}
	rows, err := s.fetch(ctx, "", request)
	if err != nil {
		s.logError(opFeed, "query_failed", err)
		return Page{}, failures.Internal(opFeed, "query_failed", err)
	}
	return paginate(request, rows), nil
}

// Timeline returns one page of the posts authored by handle, newest first.
func (s *TimelineService) Timeline(ctx context.Context, handle string, request PageRequest) (Page, error) {
	if err := request.validate(); err != nil {
		return Page{}, err
	}
	profile, err := s.profiles.GetByHandle(ctx, handle)
	if err != nil {
		return Page{}, err
	}
	rows, err := s.fetch(ctx, profile.ID, request)
	if err != nil {
		s.logError(opTimeline, "query_failed", err, zap.String("handle", handle))
		return Page{}, failures.Internal(opTimeline, "query_failed", err)
	}
	return paginate(request, rows), nil
}

func (s *TimelineService) fetch(ctx context.Context, authorID string, request PageRequest) ([]Post, error) {
	query := s.db.WithContext(ctx).Model(&Post{}).Preload("Author")
	if authorID != "" {
		query = query.Where("author_id = ?", authorID)
	}
	switch request.Mode {
	case PaginationOffset:
		query = query.Offset(request.Offset)
	case PaginationCursor:
		if !request.Cursor.IsZero() {
			query = query.Where("created_at < ?", request.Cursor.UTC())
		}
	}

	rows := make([]Post, 0, request.Limit)
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(request.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TimelineService) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("timeline service error", attrs...)
}
