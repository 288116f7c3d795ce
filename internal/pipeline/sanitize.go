package pipeline

import "strings"

// fallbackBaseName is used when sanitization strips a title to nothing
const fallbackBaseName = "download"

// maxBaseNameLength caps sanitized titles to keep paths portable
const maxBaseNameLength = 200

// SanitizeTitle derives a filesystem-safe base name from a video title.
// Characters illegal in paths are stripped, leading/trailing whitespace and
// dots are trimmed, and the result is capped at 200 characters.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			continue
		}
		b.WriteRune(r)
	}

	sanitized := strings.Trim(b.String(), " .\t\n\r")
	if runes := []rune(sanitized); len(runes) > maxBaseNameLength {
		sanitized = strings.Trim(string(runes[:maxBaseNameLength]), " .")
	}

	if sanitized == "" {
		return fallbackBaseName
	}
	return sanitized
}
