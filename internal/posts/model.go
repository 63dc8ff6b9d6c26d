package posts

import (
	"time"

	"github.com/MarcoPoloResearchLab/chirp/internal/profiles"
)

// MaxTextLength is the upper bound on post text, counted in characters.
const MaxTextLength = 280

// Post is a short immutable text message authored by one profile.
type Post struct {
	ID        string           `gorm:"column:id;primaryKey;size:64;not null"`
	AuthorID  string           `gorm:"column:author_id;size:190;not null;index:idx_posts_author_created,priority:1"`
	Text      string           `gorm:"column:text;type:text;not null"`
	CreatedAt time.Time        `gorm:"column:created_at;not null;index:idx_posts_created;index:idx_posts_author_created,priority:2"`
	Author    profiles.Profile `gorm:"foreignKey:AuthorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "posts"
}

// View is the wire representation of a post joined with its author summary.
type View struct {
	ID        string           `json:"id"`
	AuthorID  string           `json:"author_id"`
	Text      string           `json:"text"`
	CreatedAt time.Time        `json:"created_at"`
	Author    profiles.Summary `json:"profiles"`
}

// View projects the post onto its wire representation.
func (p Post) View() View {
	return View{
		ID:        p.ID,
		AuthorID:  p.AuthorID,
		Text:      p.Text,
		CreatedAt: p.CreatedAt.UTC(),
		Author:    p.Author.Summary(),
	}
}

// Views projects a slice of posts, never returning nil.
func Views(rows []Post) []View {
	views := make([]View, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.View())
	}
	return views
}
