package avatar

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	gravatarBaseURL = "https://www.gravatar.com/avatar/"
	// DefaultSize is the pixel size requested when none is configured.
	DefaultSize = 80
)

// GravatarURL derives the identicon-backed Gravatar URL for email.
// It returns an empty string when email is blank.
func GravatarURL(email string, size int) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return ""
	}
	if size <= 0 {
		size = DefaultSize
	}
	sum := md5.Sum([]byte(normalized))
	return fmt.Sprintf("%s%s?s=%d&d=identicon&r=pg", gravatarBaseURL, hex.EncodeToString(sum[:]), size)
}

// GravatarURLWithFallback is GravatarURL with f=y, which forces the identicon even
// when the address has a registered Gravatar.
func GravatarURLWithFallback(email string, size int) string {
	url := GravatarURL(email, size)
	if url == "" {
		return ""
	}
	return url + "&f=y"
}

// Style selects the pixel size and variant of derived avatars.
type Style struct {
	Size         int
	ForceDefault bool
}

// URL derives the avatar for email in this style.
func (s Style) URL(email string) string {
	if s.ForceDefault {
		return GravatarURLWithFallback(email, s.Size)
	}
	return GravatarURL(email, s.Size)
}

// IsGravatarURL reports whether url was produced by either Gravatar variant.
func IsGravatarURL(url string) bool {
	return strings.HasPrefix(url, gravatarBaseURL)
}
