package profiles

import (
	"strings"
	"time"
)

const (
	maxHandleLength = 15
	maxNameLength   = 100
	maxEmailLength  = 255
	maxBioLength    = 160
)

// Profile is the identity and display record of an author.
type Profile struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Handle    string    `gorm:"column:handle;size:64;not null;uniqueIndex" json:"handle"`
	Name      *string   `gorm:"column:name;size:100" json:"name"`
	Bio       *string   `gorm:"column:bio;size:160" json:"bio"`
	Email     *string   `gorm:"column:email;size:255" json:"email"`
	AvatarURL *string   `gorm:"column:avatar_url;size:512" json:"avatar_url"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

// TableName exposes the table backing profiles.
func (Profile) TableName() string {
	return "profiles"
}

// Summary is the author projection joined onto posts.
type Summary struct {
	ID        string  `json:"id"`
	Handle    string  `json:"handle"`
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
	Email     *string `json:"email"`
}

// Summary projects the profile onto the author summary.
func (p Profile) Summary() Summary {
	return Summary{
		ID:        p.ID,
		Handle:    p.Handle,
		Name:      p.Name,
		AvatarURL: p.AvatarURL,
		Email:     p.Email,
	}
}

// Identity is the verified identity a profile is created for.
type Identity struct {
	UserID string
	Email  string
}

// Edit carries an owner's profile changes. Nil fields are left untouched.
type Edit struct {
	Name  *string
	Email *string
	Bio   *string
}

// optional trims value and maps blank input to nil.
func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
