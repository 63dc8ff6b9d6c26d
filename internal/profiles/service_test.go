package profiles

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/chirp/internal/avatar"
	"github.com/MarcoPoloResearchLab/chirp/internal/failures"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "profiles.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate profile schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestEnsureCreatesProfileOnce(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	identity := Identity{UserID: "user-1", Email: "Alice.Smith+tag@Example.com"}
	created, err := service.Ensure(ctx, identity)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if created.Handle != "alicesmithtag" {
		t.Fatalf("unexpected derived handle %q", created.Handle)
	}
	if created.Email == nil || *created.Email != "Alice.Smith+tag@Example.com" {
		t.Fatalf("unexpected email %v", created.Email)
	}
	if created.AvatarURL == nil || *created.AvatarURL != avatar.GravatarURL("alice.smith+tag@example.com", avatar.DefaultSize) {
		t.Fatalf("expected derived avatar, got %v", created.AvatarURL)
	}

	again, err := service.Ensure(ctx, identity)
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if again.ID != created.ID || again.Handle != created.Handle {
		t.Fatalf("expected existing profile, got %#v", again)
	}

	var count int64
	if err := db.Model(&Profile{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one profile, got %d", count)
	}
}

func TestEnsureUsesForcedIdenticonWhenConfigured(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "profiles.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate profile schema: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, AvatarSize: 48, ForceDefaultAvatar: true})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	created, err := service.Ensure(context.Background(), Identity{UserID: "user-1", Email: "dana@example.com"})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	want := avatar.GravatarURLWithFallback("dana@example.com", 48)
	if created.AvatarURL == nil || *created.AvatarURL != want {
		t.Fatalf("expected forced identicon %q, got %v", want, created.AvatarURL)
	}
	if !strings.HasSuffix(*created.AvatarURL, "&f=y") {
		t.Fatalf("expected f=y in %q", *created.AvatarURL)
	}
}

func TestEnsureSuffixesTakenHandles(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	first, err := service.Ensure(ctx, Identity{UserID: "user-1", Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	second, err := service.Ensure(ctx, Identity{UserID: "user-2", Email: "bob@another.org"})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if first.Handle != "bob" {
		t.Fatalf("unexpected first handle %q", first.Handle)
	}
	if second.Handle == first.Handle || !strings.HasPrefix(second.Handle, "bob_") {
		t.Fatalf("expected suffixed handle, got %q", second.Handle)
	}
	if len(second.Handle) > maxHandleLength {
		t.Fatalf("handle %q exceeds %d characters", second.Handle, maxHandleLength)
	}
}

func TestEnsureWithoutEmailUsesDefaultHandle(t *testing.T) {
	service, _ := newTestService(t)

	profile, err := service.Ensure(context.Background(), Identity{UserID: "user-9"})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if profile.Handle != defaultHandle {
		t.Fatalf("unexpected handle %q", profile.Handle)
	}
	if profile.Email != nil || profile.AvatarURL != nil {
		t.Fatalf("expected nil email and avatar, got %v %v", profile.Email, profile.AvatarURL)
	}
}

func TestEnsureRejectsMissingUserID(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.Ensure(context.Background(), Identity{Email: "x@example.com"})
	if failures.KindOf(err) != failures.KindUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestGetByHandleNotFound(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.GetByHandle(context.Background(), "nobody")
	if failures.KindOf(err) != failures.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateTrimsAndNullsFields(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	identity := Identity{UserID: "user-1", Email: "carol@example.com"}
	if _, err := service.Ensure(ctx, identity); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	name := "  Carol  "
	bio := "   "
	email := " carol@new.example.com "
	updated, err := service.Update(ctx, identity, Edit{Name: &name, Bio: &bio, Email: &email})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name == nil || *updated.Name != "Carol" {
		t.Fatalf("expected trimmed name, got %v", updated.Name)
	}
	if updated.Bio != nil {
		t.Fatalf("expected blank bio to be stored as null, got %q", *updated.Bio)
	}
	if updated.Email == nil || *updated.Email != "carol@new.example.com" {
		t.Fatalf("expected trimmed email, got %v", updated.Email)
	}
	wantAvatar := avatar.GravatarURL("carol@new.example.com", avatar.DefaultSize)
	if updated.AvatarURL == nil || *updated.AvatarURL != wantAvatar {
		t.Fatalf("expected avatar to follow email, got %v", updated.AvatarURL)
	}
	if updated.Handle != "carol" {
		t.Fatalf("handle must not change, got %q", updated.Handle)
	}
}

func TestUpdateKeepsCustomAvatar(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	identity := Identity{UserID: "user-1", Email: "dave@example.com"}
	if _, err := service.Ensure(ctx, identity); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	custom := "https://cdn.example.com/dave.png"
	if err := db.Model(&Profile{}).Where("id = ?", "user-1").Update("avatar_url", custom).Error; err != nil {
		t.Fatalf("failed to set custom avatar: %v", err)
	}

	email := "dave@new.example.com"
	updated, err := service.Update(ctx, identity, Edit{Email: &email})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.AvatarURL == nil || *updated.AvatarURL != custom {
		t.Fatalf("expected custom avatar to survive, got %v", updated.AvatarURL)
	}
}

func TestUpdateRejectsOversizedFields(t *testing.T) {
	service, _ := newTestService(t)
	identity := Identity{UserID: "user-1", Email: "erin@example.com"}

	bio := strings.Repeat("b", maxBioLength+1)
	_, err := service.Update(context.Background(), identity, Edit{Bio: &bio})
	if failures.KindOf(err) != failures.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if failures.MessageOf(err) != "bio must be 160 characters or less." {
		t.Fatalf("unexpected message %q", failures.MessageOf(err))
	}
}

func TestDeriveHandleBase(t *testing.T) {
	testCases := map[string]string{
		"":                                "user",
		"!!!@example.com":                 "user",
		"Very.Long.Address.Name@host.com": "verylongaddress",
		"snake_case@host.com":             "snake_case",
	}
	for input, want := range testCases {
		if got := deriveHandleBase(input); got != want {
			t.Fatalf("deriveHandleBase(%q) = %q, want %q", input, got, want)
		}
	}
}
