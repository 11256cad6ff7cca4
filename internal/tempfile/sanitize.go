package tempfile

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	reservedChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Clean sanitizes a string for use as a path component: it strips the
// file extension, collapses embedded whitespace/newlines to single
// underscores, replaces filesystem-reserved characters, and turns
// remaining spaces into underscores. Clean is idempotent.
func Clean(s string) string {
	ext := filepath.Ext(s)
	stem := strings.TrimSuffix(s, ext)

	stem = strings.NewReplacer("\n", "_", "\r", "_", "\t", "_").Replace(stem)
	stem = whitespaceRun.ReplaceAllString(stem, " ")
	stem = reservedChars.ReplaceAllString(stem, "_")
	stem = strings.ReplaceAll(stem, " ", "_")
	stem = strings.TrimSpace(stem)

	return stem
}

// versionPattern extracts a Maya-style version token (_v001, _v1234) from
// a scene path.
var versionPattern = regexp.MustCompile(`_v(\d{3,4})`)

// ExtractVersion returns the version token embedded in scenePath (e.g.
// "v001"), or "" if none is present.
func ExtractVersion(scenePath string) string {
	m := versionPattern.FindStringSubmatch(scenePath)
	if m == nil {
		return ""
	}
	return "v" + m[1]
}
