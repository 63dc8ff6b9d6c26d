package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/chirp/internal/failures"
	"github.com/MarcoPoloResearchLab/chirp/internal/profiles"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const opSubmit = "posts.submit"

// TextTooLongMessage is returned verbatim when a post exceeds MaxTextLength.
var TextTooLongMessage = fmt.Sprintf("text must be %d characters or less.", MaxTextLength)

var (
	errMissingAuthors    = errors.New("posts: author directory required")
	errMissingIDProvider = errors.New("posts: id provider required")
)

// AuthorDirectory returns the profile of an authenticated identity, creating it on first sight.
type AuthorDirectory interface {
	Ensure(ctx context.Context, identity profiles.Identity) (profiles.Profile, error)
}

// Publisher is told about every post that has been durably created.
type Publisher interface {
	PublishPostCreated(ctx context.Context, post Post) error
}

// SubmitRequest is a candidate post. A nil Author means the caller could not be authenticated.
type SubmitRequest struct {
	Text   string
	Author *profiles.Identity
}

// SubmissionServiceConfig describes the dependencies of the post submission service.
type SubmissionServiceConfig struct {
	Database   *gorm.DB
	Authors    AuthorDirectory
	IDProvider IDProvider
	Publisher  Publisher
	Clock      func() time.Time
	Logger     *zap.Logger
}

// SubmissionService validates and persists new posts.
type SubmissionService struct {
	db        *gorm.DB
	authors   AuthorDirectory
	ids       IDProvider
	publisher Publisher
	clock     func() time.Time
	logger    *zap.Logger
}

// NewSubmissionService constructs the post submission service.
func NewSubmissionService(cfg SubmissionServiceConfig) (*SubmissionService, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Authors == nil {
		return nil, errMissingAuthors
	}
	ids := cfg.IDProvider
	if ids == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &SubmissionService{
		db:        cfg.Database,
		authors:   cfg.Authors,
		ids:       ids,
		publisher: cfg.Publisher,
		clock:     clock,
		logger:    logger,
	}, nil
}

// ValidateText applies the text rules in order and returns the trimmed text.
// Length is measured before trimming.
func ValidateText(text string) (string, error) {
	if len(text) == 0 {
		return "", failures.InvalidInput(opSubmit, "text_required", "text is required")
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", failures.InvalidInput(opSubmit, "text_too_long", TextTooLongMessage)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", failures.InvalidInput(opSubmit, "text_blank", "text is required")
	}
	return trimmed, nil
}

// Submit validates request and inserts the post. Text rules are checked before the
// identity, and the first failure wins. Submissions are not idempotent.
func (s *SubmissionService) Submit(ctx context.Context, request SubmitRequest) (Post, error) {
	text, err := ValidateText(request.Text)
	if err != nil {
		return Post{}, err
	}
	if request.Author == nil || strings.TrimSpace(request.Author.UserID) == "" {
		return Post{}, failures.Unauthenticated(opSubmit, "missing_identity", nil)
	}

	author, err := s.authors.Ensure(ctx, *request.Author)
	if err != nil {
		return Post{}, err
	}

	postID, err := s.ids.NewID()
	if err != nil {
		s.logError("id_generation_failed", err, zap.String("author_id", author.ID))
		return Post{}, failures.Internal(opSubmit, "id_generation_failed", err)
	}

	post := Post{
		ID:        postID,
		AuthorID:  author.ID,
		Text:      text,
		CreatedAt: s.clock().UTC().Truncate(time.Millisecond),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&post).Error; err != nil {
		s.logError("insert_failed", err, zap.String("author_id", author.ID))
		return Post{}, failures.Internal(opSubmit, "insert_failed", err)
	}
	post.Author = author

	if s.publisher != nil {
		if err := s.publisher.PublishPostCreated(ctx, post); err != nil {
			s.logger.Warn("post created event not published",
				zap.String("post_id", post.ID),
				zap.Error(err))
		}
	}

	return post, nil
}

func (s *SubmissionService) logError(reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", opSubmit),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("submission service error", attrs...)
}
