package models

import (
	"path/filepath"
	"strings"
	"time"
)

// Photo is a gallery item as seen by the sync engine. Photos are read from a
// gallery source per query and never stored.
type Photo struct {
	ID               string `json:"id"`
	TimestampSeconds int64  `json:"timestampSeconds"`
	DisplayName      string `json:"displayName"`
	// Path locates the file for uploaders that need the bytes. Empty for
	// galleries that are not file backed.
	Path string `json:"path,omitempty"`
}

// NewPhoto creates a new Photo with validation and sanitization
func NewPhoto(id string, timestampSeconds int64, displayName, path string) (*Photo, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyPhotoID
	}
	if timestampSeconds < 0 {
		return nil, ErrInvalidTimestamp
	}

	return &Photo{
		ID:               id,
		TimestampSeconds: timestampSeconds,
		DisplayName:      SanitizeFilename(displayName),
		Path:             path,
	}, nil
}

// Time returns the photo timestamp as UTC time
func (p Photo) Time() time.Time {
	return time.Unix(p.TimestampSeconds, 0).UTC()
}

// SanitizeFilename removes path components and invalid characters and caps
// the length at 200 bytes, keeping the extension.
func SanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}

	replacer := strings.NewReplacer(
		"..", "",
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)

	name = replacer.Replace(name)

	const maxLength = 200
	if len(name) > maxLength {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		if len(ext) >= maxLength {
			return name[:maxLength]
		}
		name = base[:maxLength-len(ext)] + ext
	}
	return name
}
