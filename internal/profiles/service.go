package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/chirp/internal/avatar"
	"github.com/MarcoPoloResearchLab/chirp/internal/failures"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opGetByHandle = "profiles.get_by_handle"
	opGetByID     = "profiles.get_by_id"
	opEnsure      = "profiles.ensure"
	opUpdate      = "profiles.update"

	defaultHandle     = "user"
	handleSuffixChars = 4
	maxHandleAttempts = 5
	notFoundMessage   = "profile not found"
)

var (
	errMissingDatabase = errors.New("profiles: database connection required")
	// ErrInvalidIdentity indicates the identity did not carry a user id.
	ErrInvalidIdentity = errors.New("profiles: invalid identity")
	errHandleExhausted = errors.New("profiles: no free handle candidate")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies required for profile management.
// ForceDefaultAvatar derives identicons even for emails with a registered Gravatar.
type ServiceConfig struct {
	Database           *gorm.DB
	Clock              func() time.Time
	AvatarSize         int
	ForceDefaultAvatar bool
	Logger             *zap.Logger
}

// Service reads, implicitly creates and edits profiles.
type Service struct {
	db          *gorm.DB
	now         func() time.Time
	avatarStyle avatar.Style
	logger      *zap.Logger
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	size := cfg.AvatarSize
	if size <= 0 {
		size = avatar.DefaultSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:          cfg.Database,
		now:         clock,
		avatarStyle: avatar.Style{Size: size, ForceDefault: cfg.ForceDefaultAvatar},
		logger:      logger,
	}, nil
}

// GetByHandle returns the profile registered under handle.
func (s *Service) GetByHandle(ctx context.Context, handle string) (Profile, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return Profile{}, failures.NotFound(opGetByHandle, "empty_handle", notFoundMessage)
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("handle = ?", handle).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, failures.NotFound(opGetByHandle, "missing", notFoundMessage)
	}
	if err != nil {
		s.logError(opGetByHandle, "query_failed", err, zap.String("handle", handle))
		return Profile{}, failures.Internal(opGetByHandle, "query_failed", err)
	}
	return profile, nil
}

// GetByID returns the profile owned by userID.
func (s *Service) GetByID(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, failures.NotFound(opGetByID, "missing", notFoundMessage)
	}
	if err != nil {
		s.logError(opGetByID, "query_failed", err, zap.String("user_id", userID))
		return Profile{}, failures.Internal(opGetByID, "query_failed", err)
	}
	return profile, nil
}

// Ensure returns the profile of identity, creating it on first sight.
// The handle is derived from the email local part; collisions get a short random suffix.
func (s *Service) Ensure(ctx context.Context, identity Identity) (Profile, error) {
	userID := strings.TrimSpace(identity.UserID)
	if userID == "" {
		return Profile{}, failures.Unauthenticated(opEnsure, "missing_user_id", ErrInvalidIdentity)
	}

	existing, err := s.GetByID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if failures.KindOf(err) != failures.KindNotFound {
		return Profile{}, err
	}

	email := optional(identity.Email)
	base := deriveHandleBase(identity.Email)
	for attempt := 0; attempt < maxHandleAttempts; attempt++ {
		handle := handleCandidate(base, attempt)
		taken, err := s.handleTaken(ctx, handle)
		if err != nil {
			s.logError(opEnsure, "handle_lookup_failed", err, zap.String("user_id", userID))
			return Profile{}, failures.Internal(opEnsure, "handle_lookup_failed", err)
		}
		if taken {
			continue
		}

		now := s.now().UTC()
		profile := Profile{
			ID:        userID,
			Handle:    handle,
			Email:     email,
			AvatarURL: optional(s.avatarStyle.URL(stringValue(email))),
			CreatedAt: now,
			UpdatedAt: now,
		}
		createErr := s.db.WithContext(ctx).Create(&profile).Error
		if createErr == nil {
			s.logger.Info("profile created", zap.String("user_id", userID), zap.String("handle", handle))
			return profile, nil
		}

		// A concurrent request may have created the profile or claimed the handle.
		if concurrent, lookupErr := s.GetByID(ctx, userID); lookupErr == nil {
			return concurrent, nil
		}
		s.logger.Debug("profile create attempt failed", zap.String("handle", handle), zap.Error(createErr))
	}

	s.logError(opEnsure, "handle_exhausted", errHandleExhausted, zap.String("user_id", userID))
	return Profile{}, failures.Internal(opEnsure, "handle_exhausted", errHandleExhausted)
}

// Update applies an owner edit to the profile of identity.
func (s *Service) Update(ctx context.Context, identity Identity, edit Edit) (Profile, error) {
	updates, err := normalizeEdit(edit)
	if err != nil {
		return Profile{}, err
	}

	current, err := s.Ensure(ctx, identity)
	if err != nil {
		return Profile{}, err
	}

	if email, changed := updates["email"]; changed {
		if current.AvatarURL == nil || avatar.IsGravatarURL(*current.AvatarURL) {
			updates["avatar_url"] = optional(s.avatarStyle.URL(stringValue(email.(*string))))
		}
	}
	if len(updates) == 0 {
		return current, nil
	}
	updates["updated_at"] = s.now().UTC()

	if err := s.db.WithContext(ctx).
		Model(&Profile{}).
		Where("id = ?", current.ID).
		Updates(updates).Error; err != nil {
		s.logError(opUpdate, "update_failed", err, zap.String("user_id", current.ID))
		return Profile{}, failures.Internal(opUpdate, "update_failed", err)
	}

	return s.GetByID(ctx, current.ID)
}

func (s *Service) handleTaken(ctx context.Context, handle string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Profile{}).Where("handle = ?", handle).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("profiles service error", attrs...)
}

func normalizeEdit(edit Edit) (map[string]interface{}, error) {
	updates := map[string]interface{}{}
	fields := []struct {
		column string
		value  *string
		limit  int
	}{
		{column: "name", value: edit.Name, limit: maxNameLength},
		{column: "email", value: edit.Email, limit: maxEmailLength},
		{column: "bio", value: edit.Bio, limit: maxBioLength},
	}
	for _, field := range fields {
		if field.value == nil {
			continue
		}
		normalized := optional(*field.value)
		if normalized != nil && utf8.RuneCountInString(*normalized) > field.limit {
			return nil, failures.InvalidInput(opUpdate, field.column+"_too_long",
				fmt.Sprintf("%s must be %d characters or less.", field.column, field.limit))
		}
		updates[field.column] = normalized
	}
	return updates, nil
}

func deriveHandleBase(email string) string {
	local := strings.ToLower(strings.TrimSpace(email))
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	var builder strings.Builder
	for _, r := range local {
		if builder.Len() >= maxHandleLength {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			builder.WriteRune(r)
		}
	}
	if builder.Len() == 0 {
		return defaultHandle
	}
	return builder.String()
}

func handleCandidate(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:handleSuffixChars]
	limit := maxHandleLength - handleSuffixChars - 1
	if len(base) > limit {
		base = base[:limit]
	}
	return base + "_" + suffix
}
