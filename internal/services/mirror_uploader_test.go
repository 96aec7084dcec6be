package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photosync/syncagent/internal/models"
)

func writeGalleryFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestMirror(t *testing.T, base string) *MirrorUploader {
	t.Helper()
	storage, err := NewMirrorStorage(base, nil, 50)
	require.NoError(t, err)
	u, err := NewMirrorUploader(storage, NewHashService())
	require.NoError(t, err)
	return u
}

func TestMirrorUploader_Upload(t *testing.T) {
	ctx := context.Background()
	taken := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Unix()

	t.Run("copies the file into the dated folder", func(t *testing.T) {
		gallery, mirror := t.TempDir(), t.TempDir()
		path := writeGalleryFile(t, gallery, "IMG_1.jpg", "pixels")
		u := newTestMirror(t, mirror)

		err := u.Upload(ctx, models.Photo{ID: "1", TimestampSeconds: taken, DisplayName: "IMG_1.jpg", Path: path})
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(mirror, "2024", "05", "IMG_1.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "pixels", string(data))
	})

	t.Run("repeated uploads store the content once", func(t *testing.T) {
		gallery, mirror := t.TempDir(), t.TempDir()
		path := writeGalleryFile(t, gallery, "IMG_1.jpg", "pixels")
		u := newTestMirror(t, mirror)
		photo := models.Photo{ID: "1", TimestampSeconds: taken, DisplayName: "IMG_1.jpg", Path: path}

		require.NoError(t, u.Upload(ctx, photo))
		require.NoError(t, u.Upload(ctx, photo))

		entries, err := os.ReadDir(filepath.Join(mirror, "2024", "05"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("manifest survives a restart", func(t *testing.T) {
		gallery, mirror := t.TempDir(), t.TempDir()
		path := writeGalleryFile(t, gallery, "IMG_1.jpg", "pixels")
		photo := models.Photo{ID: "1", TimestampSeconds: taken, DisplayName: "IMG_1.jpg", Path: path}

		require.NoError(t, newTestMirror(t, mirror).Upload(ctx, photo))

		hash, _, err := NewHashService().ComputeFileHash(path)
		require.NoError(t, err)

		restarted := newTestMirror(t, mirror)
		stored, ok := restarted.StoredPath(hash)
		require.True(t, ok)
		assert.Equal(t, "2024/05/IMG_1.jpg", stored)

		require.NoError(t, restarted.Upload(ctx, photo))
		entries, err := os.ReadDir(filepath.Join(mirror, "2024", "05"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("drops manifest entries whose files are gone", func(t *testing.T) {
		mirror := t.TempDir()
		hash := "abc123def456abc123def456abc123def456abc123def456abc123def456abcd"
		data, err := json.Marshal(map[string]string{hash: "2024/01/gone.jpg"})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(mirror, ManifestFilename), data, 0644))

		u := newTestMirror(t, mirror)

		_, ok := u.StoredPath(hash)
		assert.False(t, ok)
	})

	t.Run("requires a file path", func(t *testing.T) {
		u := newTestMirror(t, t.TempDir())

		err := u.Upload(ctx, models.Photo{ID: "content://media/1", TimestampSeconds: taken})
		assert.ErrorIs(t, err, models.ErrNoPhotoPath)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		u := newTestMirror(t, t.TempDir())

		err := u.Upload(cancelled, models.Photo{ID: "1", Path: "/nowhere.jpg"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
