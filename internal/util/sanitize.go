package util

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxSlugRunes = 64

// Slug reduces an uploaded filename to a lowercase ASCII stem suitable for a
// public URL. The extension is dropped and an empty result becomes "image".
func Slug(filename string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))

	builder := strings.Builder{}
	builder.Grow(len(base))
	pendingDash := false
	written := 0

	for _, char := range norm.NFKD.String(base) {
		if written >= maxSlugRunes {
			break
		}
		switch {
		case unicode.Is(unicode.Mn, char) || unicode.Is(unicode.Cf, char) || unicode.IsControl(char):
			continue
		case char < unicode.MaxASCII && (unicode.IsLetter(char) || unicode.IsDigit(char)):
			if pendingDash && written > 0 {
				builder.WriteByte('-')
				written++
			}
			pendingDash = false
			builder.WriteRune(unicode.ToLower(char))
			written++
		default:
			pendingDash = true
		}
	}

	slug := strings.Trim(builder.String(), "-")
	if slug == "" {
		return "image"
	}
	return slug
}
