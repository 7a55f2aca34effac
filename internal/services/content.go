package services

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/atom"
)

// maxStripPasses bounds how many layers of entity encoding are unwrapped.
const maxStripPasses = 4

var tagOpen = regexp.MustCompile(`^</?([A-Za-z][A-Za-z0-9-]*)`)

// startsMarkup reports whether s begins with an HTML element tag, comment
// or declaration. A '<' before anything else, such as "<T any>" or "a < b",
// is prose.
func startsMarkup(s string) bool {
	if strings.HasPrefix(s, "<!") || strings.HasPrefix(s, "<?") {
		return true
	}
	m := tagOpen.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	return atom.Lookup([]byte(strings.ToLower(m[1]))) != 0
}

// escapeProse escapes every '<' that does not open real markup so the
// sanitizer keeps it as text.
func escapeProse(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '<' && !startsMarkup(s[i:]) {
			b.WriteString("&lt;")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// stripMarkup turns submitted content into plain text. Entities are decoded
// before sanitizing, so encoded markup is removed like literal markup, and the
// pass repeats until the text is stable. ok is false when it never settles.
func stripMarkup(policy *bluemonday.Policy, text string) (plain string, ok bool) {
	for pass := 0; pass < maxStripPasses; pass++ {
		decoded := html.UnescapeString(text)
		out := html.UnescapeString(policy.Sanitize(escapeProse(decoded)))
		if out == text {
			return out, true
		}
		text = out
	}
	return text, false
}
