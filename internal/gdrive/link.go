package gdrive

import (
	"fmt"
	"regexp"
	"strings"
)

// LinkKind is what a link's shape says about its target. The authoritative
// kind always comes from item metadata.
type LinkKind int

const (
	LinkUnknown LinkKind = iota
	LinkFile
	LinkFolder
	LinkDocument
)

// LinkRef is the item reference extracted from a link.
type LinkRef struct {
	ID   string
	Kind LinkKind
}

// linkMatcher recognizes one link shape.
type linkMatcher struct {
	kind LinkKind
	re   *regexp.Regexp
}

// linkMatchers are tried in order; the first match wins. Direct file links
// come first so a file URL carrying an unrelated id= parameter still
// resolves to the file.
var linkMatchers = []linkMatcher{
	{LinkFile, regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)},
	{LinkDocument, regexp.MustCompile(`/(?:document|spreadsheets|presentation|drawings|forms)/d/([A-Za-z0-9_-]+)`)},
	{LinkFolder, regexp.MustCompile(`/folders/([A-Za-z0-9_-]+)`)},
	{LinkUnknown, regexp.MustCompile(`[?&]id=([A-Za-z0-9_-]+)`)},
}

// ParseLink extracts the item ID from a Drive or Docs link.
func ParseLink(text string) (LinkRef, error) {
	text = strings.TrimSpace(text)

	for _, m := range linkMatchers {
		if sub := m.re.FindStringSubmatch(text); sub != nil {
			return LinkRef{ID: sub[1], Kind: m.kind}, nil
		}
	}

	return LinkRef{}, fmt.Errorf("%w: %q", ErrInvalidLink, truncate(text, 80))
}

// LooksLikeLink reports whether text mentions a Drive or Docs host, so the
// dispatcher can route it here instead of treating it as chatter.
func LooksLikeLink(text string) bool {
	return strings.Contains(text, "drive.google.com") || strings.Contains(text, "docs.google.com")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
