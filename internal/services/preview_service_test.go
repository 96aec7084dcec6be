package services

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photosync/syncagent/internal/models"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestPreviewService_Generate(t *testing.T) {
	t.Run("downscales into the previews tree", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "wide.png")
		writeTestPNG(t, src, 1000, 400)
		mirror := t.TempDir()

		rel, err := NewPreviewService(mirror, 500).Generate(src, "2024/05/wide.png")
		require.NoError(t, err)
		assert.Equal(t, ".previews/2024/05/wide.jpg", rel)

		f, err := os.Open(filepath.Join(mirror, filepath.FromSlash(rel)))
		require.NoError(t, err)
		defer f.Close()
		cfg, err := jpeg.DecodeConfig(f)
		require.NoError(t, err)
		assert.Equal(t, 500, cfg.Width)
		assert.Equal(t, 200, cfg.Height)
	})

	t.Run("keeps small images at their size", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "small.png")
		writeTestPNG(t, src, 40, 80)
		mirror := t.TempDir()

		rel, err := NewPreviewService(mirror, 500).Generate(src, "2024/05/small.png")
		require.NoError(t, err)

		f, err := os.Open(filepath.Join(mirror, filepath.FromSlash(rel)))
		require.NoError(t, err)
		defer f.Close()
		cfg, err := jpeg.DecodeConfig(f)
		require.NoError(t, err)
		assert.Equal(t, 40, cfg.Width)
		assert.Equal(t, 80, cfg.Height)
	})

	t.Run("rejects unsupported formats", func(t *testing.T) {
		_, err := NewPreviewService(t.TempDir(), 500).Generate("/nowhere", "2024/05/clip.mp4")
		assert.Error(t, err)
	})

	t.Run("rejects undecodable files", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "broken.jpg")
		require.NoError(t, os.WriteFile(src, []byte("not an image"), 0644))

		_, err := NewPreviewService(t.TempDir(), 500).Generate(src, "2024/05/broken.jpg")
		assert.Error(t, err)
	})
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name         string
		w, h, maxDim int
		wantW, wantH int
	}{
		{"landscape", 2000, 1000, 500, 500, 250},
		{"portrait", 1000, 2000, 500, 250, 500},
		{"square", 800, 800, 400, 400, 400},
		{"already small", 100, 50, 500, 100, 50},
		{"thin strip keeps one pixel", 5000, 1, 500, 500, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := fitWithin(tt.w, tt.h, tt.maxDim)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestMirrorUploader_Previews(t *testing.T) {
	gallery, mirror := t.TempDir(), t.TempDir()
	src := filepath.Join(gallery, "IMG_2.png")
	writeTestPNG(t, src, 600, 600)

	u := newTestMirror(t, mirror)
	u.SetPreviews(NewPreviewService(mirror, 100))

	taken := time.Date(2023, 12, 24, 9, 0, 0, 0, time.UTC).Unix()
	err := u.Upload(context.Background(), models.Photo{ID: "2", TimestampSeconds: taken, DisplayName: "IMG_2.png", Path: src})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(mirror, "2023", "12", "IMG_2.png"))
	assert.FileExists(t, filepath.Join(mirror, PreviewDir, "2023", "12", "IMG_2.jpg"))
}
