package posts

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/chirp/internal/profiles"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "posts.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&profiles.Profile{}, &Post{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newProfileService(t *testing.T, db *gorm.DB) *profiles.Service {
	t.Helper()
	service, err := profiles.NewService(profiles.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create profile service: %v", err)
	}
	return service
}

func mustCreateProfile(t *testing.T, db *gorm.DB, id, handle string) profiles.Profile {
	t.Helper()
	email := handle + "@example.com"
	profile := profiles.Profile{ID: id, Handle: handle, Email: &email}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("failed to create profile %s: %v", handle, err)
	}
	return profile
}

func mustInsertPost(t *testing.T, db *gorm.DB, id, authorID string, createdAt time.Time) Post {
	t.Helper()
	post := Post{ID: id, AuthorID: authorID, Text: "post " + id, CreatedAt: createdAt.UTC()}
	if err := db.Omit(clause.Associations).Create(&post).Error; err != nil {
		t.Fatalf("failed to insert post %s: %v", id, err)
	}
	return post
}

// mustInsertSeries inserts count posts one second apart, oldest first.
func mustInsertSeries(t *testing.T, db *gorm.DB, authorID string, count int) {
	t.Helper()
	for index := 0; index < count; index++ {
		mustInsertPost(t, db, fmt.Sprintf("%s-%02d", authorID, index), authorID, baseTime.Add(time.Duration(index)*time.Second))
	}
}

type steppingClock struct {
	mu   sync.Mutex
	next time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.next
	c.next = c.next.Add(time.Second)
	return current
}

type sequenceIDs struct {
	mu    sync.Mutex
	count int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return fmt.Sprintf("post-%04d", s.count), nil
}
