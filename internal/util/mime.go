package util

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"
)

const sniffLen = 512

// SniffMIME reads up to 512 bytes from r and returns the detected content
// type together with a reader that replays the sniffed bytes.
func SniffMIME(r io.Reader) (string, io.Reader, error) {
	buffer := make([]byte, sniffLen)
	n, err := io.ReadFull(r, buffer)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, err
	}

	detected := http.DetectContentType(buffer[:n])
	return detected, io.MultiReader(bytes.NewReader(buffer[:n]), r), nil
}

// MIMEAllowed matches mimeType against exact entries and "type/*" wildcards.
// An empty allow list accepts everything.
func MIMEAllowed(mimeType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}

	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mimeType))
	}

	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == base {
			return true
		}
		if prefix, ok := strings.CutSuffix(entry, "*"); ok && strings.HasSuffix(prefix, "/") && strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return false
}

func IsThumbnailMIME(mimeType string) bool {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp", "image/tiff":
		return true
	default:
		return false
	}
}

// ExtensionForMIME returns the canonical file extension for the image types
// the upload endpoint accepts.
func ExtensionForMIME(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ""
	}
}
