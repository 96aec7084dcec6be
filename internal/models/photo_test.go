package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPhoto(t *testing.T) {
	t.Run("creates photo with valid parameters", func(t *testing.T) {
		photo, err := NewPhoto("42", 1710460800, "IMG_0001.jpg", "/dcim/Camera/IMG_0001.jpg")

		require.NoError(t, err)
		assert.Equal(t, "42", photo.ID)
		assert.Equal(t, int64(1710460800), photo.TimestampSeconds)
		assert.Equal(t, "IMG_0001.jpg", photo.DisplayName)
		assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), photo.Time())
	})

	t.Run("rejects empty id", func(t *testing.T) {
		_, err := NewPhoto("  ", 10, "a.jpg", "")
		assert.ErrorIs(t, err, ErrEmptyPhotoID)
	})

	t.Run("rejects negative timestamp", func(t *testing.T) {
		_, err := NewPhoto("1", -5, "a.jpg", "")
		assert.ErrorIs(t, err, ErrInvalidTimestamp)
	})

	t.Run("sanitizes display name with path components", func(t *testing.T) {
		photo, err := NewPhoto("1", 10, "../../../etc/passwd.jpg", "")

		require.NoError(t, err)
		assert.NotContains(t, photo.DisplayName, "..")
		assert.NotContains(t, photo.DisplayName, "/")
	})
}
