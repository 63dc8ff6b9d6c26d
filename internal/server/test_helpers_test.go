package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/chirp/internal/auth"
	"github.com/MarcoPoloResearchLab/chirp/internal/database"
	"github.com/MarcoPoloResearchLab/chirp/internal/events"
	"github.com/MarcoPoloResearchLab/chirp/internal/posts"
	"github.com/MarcoPoloResearchLab/chirp/internal/profiles"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	testSigningSecret = "test-signing-secret"
	testIssuer        = "chirp-auth"
	testAudience      = "authenticated"
	testCookieName    = "chirp_session"
)

var testBaseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnvironment struct {
	handler    http.Handler
	db         *gorm.DB
	issuer     *auth.TokenIssuer
	dispatcher *RealtimeDispatcher
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Options{Path: filepath.Join(t.TempDir(), "chirp.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
	})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}
	authenticator, err := auth.NewAuthenticator(auth.AuthenticatorConfig{Verifier: validator, CookieName: testCookieName})
	if err != nil {
		t.Fatalf("failed to construct authenticator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	profileService, err := profiles.NewService(profiles.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct profile service: %v", err)
	}
	timeline, err := posts.NewTimelineService(posts.TimelineServiceConfig{Database: db, Profiles: profileService})
	if err != nil {
		t.Fatalf("failed to construct timeline service: %v", err)
	}
	dispatcher := NewRealtimeDispatcher()
	submissions, err := posts.NewSubmissionService(posts.SubmissionServiceConfig{
		Database:   db,
		Authors:    profileService,
		IDProvider: posts.NewUUIDProvider(),
		Publisher:  events.NewFanout(dispatcher),
	})
	if err != nil {
		t.Fatalf("failed to construct submission service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Authenticator:     authenticator,
		Profiles:          profileService,
		Timeline:          timeline,
		Submissions:       submissions,
		Realtime:          dispatcher,
		Limits:            posts.DefaultLimits,
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &testEnvironment{handler: handler, db: db, issuer: issuer, dispatcher: dispatcher}
}

func (e *testEnvironment) token(t *testing.T, userID, email string) string {
	t.Helper()
	token, _, err := e.issuer.Issue(auth.Identity{UserID: userID, Email: email})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (e *testEnvironment) do(t *testing.T, method, target string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func (e *testEnvironment) mustCreateProfile(t *testing.T, id, handle string) {
	t.Helper()
	email := handle + "@example.com"
	if err := e.db.Create(&profiles.Profile{ID: id, Handle: handle, Email: &email}).Error; err != nil {
		t.Fatalf("failed to create profile %s: %v", handle, err)
	}
}

// mustInsertSeries inserts count posts one second apart, oldest first.
func (e *testEnvironment) mustInsertSeries(t *testing.T, authorID string, count int) {
	t.Helper()
	for index := 0; index < count; index++ {
		post := posts.Post{
			ID:        fmt.Sprintf("%s-%02d", authorID, index),
			AuthorID:  authorID,
			Text:      fmt.Sprintf("post %d", index),
			CreatedAt: testBaseTime.Add(time.Duration(index) * time.Second),
		}
		if err := e.db.Omit(clause.Associations).Create(&post).Error; err != nil {
			t.Fatalf("failed to insert post: %v", err)
		}
	}
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

type offsetPageResponse struct {
	Posts      []posts.View `json:"posts"`
	HasMore    bool         `json:"hasMore"`
	NextOffset int          `json:"nextOffset"`
}

type cursorPageResponse struct {
	Posts      []posts.View `json:"posts"`
	NextCursor *string      `json:"nextCursor"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newJSONRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	return request
}

func serve(env *testEnvironment, request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}
