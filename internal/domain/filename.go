package domain

import (
	"path/filepath"
	"strings"
	"unicode"
)

// DefaultDisplayStem is used when a title sanitizes to nothing
const DefaultDisplayStem = "video"

// partialSuffixes mark resolver leftovers that are never the final artifact
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".info.json"}

// SanitizeDisplayName replaces filesystem-unsafe characters in a media title.
// Colons become " -" so "Live: Part 1" reads naturally; the rest become "_".
func SanitizeDisplayName(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r == ':':
			b.WriteString(" -")
		case strings.ContainsRune(`/\*?"<>|`, r), unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	name := strings.TrimSpace(b.String())
	name = strings.Trim(name, ".")
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDisplayStem
	}
	return name
}

// DisplayFilename combines a sanitized title with the artifact's extension
func DisplayFilename(title, artifactPath string) string {
	return SanitizeDisplayName(title) + filepath.Ext(artifactPath)
}

// FileStem returns the base name of a path without its extension
func FileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsIncompleteFile reports whether name carries a resolver working suffix
// (.part, .ytdl, .temp, .info.json). A file without one may still be a
// per-stream download; see IsPartialArtifact.
func IsIncompleteFile(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// IsPartialArtifact reports whether a scratch entry found while scanning is
// an intermediate file. Per-stream downloads before merging look like
// name.f137.mp4, which a title may also legitimately produce, so a path the
// resolver reported as final should be checked with IsIncompleteFile only.
func IsPartialArtifact(name string) bool {
	if IsIncompleteFile(name) {
		return true
	}
	return formatMarkerIndex(FileStem(strings.ToLower(name))) >= 0
}

// StreamStem returns the file stem without a per-stream ".f<id>" marker
func StreamStem(path string) string {
	stem := FileStem(path)
	if idx := formatMarkerIndex(stem); idx >= 0 {
		return stem[:idx]
	}
	return stem
}

func formatMarkerIndex(stem string) int {
	idx := strings.LastIndex(stem, ".f")
	if idx < 0 || !isDigits(stem[idx+2:]) {
		return -1
	}
	return idx
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
