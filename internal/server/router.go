package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/chirp/internal/auth"
	"github.com/MarcoPoloResearchLab/chirp/internal/posts"
	"github.com/MarcoPoloResearchLab/chirp/internal/profiles"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	identityContextKey       = "chirp_identity"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingAuthenticator = errors.New("authenticator dependency required")
	errMissingProfiles      = errors.New("profile service dependency required")
	errMissingTimeline      = errors.New("timeline service dependency required")
	errMissingSubmissions   = errors.New("submission service dependency required")
)

// IdentityResolver resolves the caller of a request.
type IdentityResolver interface {
	Authenticate(r *http.Request) (auth.Identity, error)
}

// ProfileService is the profile surface used by the HTTP layer.
type ProfileService interface {
	GetByHandle(ctx context.Context, handle string) (profiles.Profile, error)
	Ensure(ctx context.Context, identity profiles.Identity) (profiles.Profile, error)
	Update(ctx context.Context, identity profiles.Identity, edit profiles.Edit) (profiles.Profile, error)
}

// TimelineService answers feed and timeline page queries.
type TimelineService interface {
	Feed(ctx context.Context, request posts.PageRequest) (posts.Page, error)
	Timeline(ctx context.Context, handle string, request posts.PageRequest) (posts.Page, error)
}

// SubmissionService creates posts.
type SubmissionService interface {
	Submit(ctx context.Context, request posts.SubmitRequest) (posts.Post, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Authenticator IdentityResolver
	Profiles      ProfileService
	Timeline      TimelineService
	Submissions   SubmissionService
	// Realtime enables the stream endpoints when set.
	Realtime          *RealtimeDispatcher
	Limits            posts.Limits
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the public API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Authenticator == nil {
		return nil, errMissingAuthenticator
	}
	if deps.Profiles == nil {
		return nil, errMissingProfiles
	}
	if deps.Timeline == nil {
		return nil, errMissingTimeline
	}
	if deps.Submissions == nil {
		return nil, errMissingSubmissions
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limits := deps.Limits
	if limits.Default <= 0 || limits.Max <= 0 {
		limits = posts.DefaultLimits
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		authenticator: deps.Authenticator,
		profiles:      deps.Profiles,
		timeline:      deps.Timeline,
		submissions:   deps.Submissions,
		realtime:      deps.Realtime,
		limits:        limits,
		heartbeat:     heartbeat,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/feed", handler.handleFeed)
	router.GET("/profile/:handle", handler.handleGetProfile)
	router.GET("/profile/:handle/posts", handler.handleTimeline)
	router.POST("/posts", handler.handleSubmitPost)

	if deps.Realtime != nil {
		router.GET("/feed/stream", handler.handleFeedStream)
		router.GET("/profile/:handle/stream", handler.handleTimelineStream)
	}

	protected := router.Group("/")
	protected.Use(handler.requireIdentity)
	protected.GET("/me", handler.handleMe)
	protected.PATCH("/profile", handler.handleUpdateProfile)

	return router, nil
}

type httpHandler struct {
	authenticator IdentityResolver
	profiles      ProfileService
	timeline      TimelineService
	submissions   SubmissionService
	realtime      *RealtimeDispatcher
	limits        posts.Limits
	heartbeat     time.Duration
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	wildcard := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			wildcard = true
			continue
		}
		origins = append(origins, origin)
	}
	if wildcard {
		// Credentialed requests cannot use a literal "*", so the request origin is echoed.
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
