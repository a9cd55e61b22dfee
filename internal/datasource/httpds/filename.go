package httpds

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

var filenameCleaner = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// HashString returns a stable 16 hex digit xxh3 digest of s.
func HashString(s string) string {
	h := strconv.FormatUint(xxh3.HashString(s), 16)
	return strings.Repeat("0", 16-len(h)) + h
}

// SafeFilenameFromURL derives a filesystem-safe base name from a query URL:
// the last path segment followed by the query string, with every run of
// non-alphanumeric characters collapsed to "_". Unparsable URLs, or URLs
// that leave nothing after cleaning, fall back to HashString.
func SafeFilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return HashString(rawURL)
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." {
		base = ""
	}
	clean := strings.Trim(filenameCleaner.ReplaceAllString(base+"_"+u.RawQuery, "_"), "_")
	if clean == "" {
		return HashString(rawURL)
	}
	return clean
}
