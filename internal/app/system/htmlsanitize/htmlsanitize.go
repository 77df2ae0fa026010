// Package htmlsanitize strips markup from free-text fields (display names,
// relation descriptions) before they are stored.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every tag; shared because policies are safe for concurrent use.
var strict = bluemonday.StrictPolicy()

// PlainText removes all HTML from s and returns the unescaped text, trimmed.
// "<b>Tom</b> & co" becomes "Tom & co".
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// IsPlainText reports whether s contains no tag-like content.
func IsPlainText(s string) bool {
	return !strings.Contains(s, "<") || !strings.Contains(s, ">")
}
