package resolver

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"unicode"
)

const untitled = "untitled"

// Sanitize turns a media title into a safe file name stem
func Sanitize(title string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range title {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r), unicode.IsControl(r):
			b.WriteRune('_')
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	name := strings.TrimRight(strings.TrimSpace(b.String()), ". ")
	if name == "" {
		return untitled
	}
	return name
}

// NameFromSource derives a file name stem from a task source when no title is
// known: the v query parameter or last path segment of a URL (its host if the
// path is empty), or the stem of a local file path.
func NameFromSource(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return ""
	}

	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if v := u.Query().Get("v"); v != "" {
			return v
		}
		if base := path.Base(u.Path); base != "/" && base != "." {
			return strings.TrimSuffix(base, path.Ext(base))
		}
		return u.Hostname()
	}

	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
