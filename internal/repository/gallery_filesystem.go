package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/photosync/syncagent/internal/models"
)

// FilesystemGallery is a GalleryQuery over a camera directory tree. The
// timestamp of a photo is its modification time (the moment it was added to
// the gallery); with useEXIF the EXIF DateTimeOriginal is preferred when
// present.
type FilesystemGallery struct {
	rootPath          string
	allowedExtensions map[string]bool
	useEXIF           bool
}

// NewFilesystemGallery creates a gallery rooted at rootPath
func NewFilesystemGallery(rootPath string, allowedExtensions []string, useEXIF bool) (*FilesystemGallery, error) {
	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}

	extSet := make(map[string]bool)
	if len(allowedExtensions) == 0 {
		allowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif"}
	}
	for _, ext := range allowedExtensions {
		extSet[strings.ToLower(ext)] = true
	}

	return &FilesystemGallery{
		rootPath:          absPath,
		allowedExtensions: extSet,
		useEXIF:           useEXIF,
	}, nil
}

// RootPath returns the absolute gallery root
func (g *FilesystemGallery) RootPath() string {
	return g.rootPath
}

// IsImageFile reports whether name has an allowed extension
func (g *FilesystemGallery) IsImageFile(name string) bool {
	return g.allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

func (g *FilesystemGallery) PhotosFrom(ctx context.Context, startInclusive int64) ([]models.Photo, error) {
	return g.query(ctx, startInclusive, nil)
}

func (g *FilesystemGallery) PhotosInInterval(ctx context.Context, start, end int64) ([]models.Photo, error) {
	if start > end {
		return []models.Photo{}, nil
	}
	return g.query(ctx, start, &end)
}

func (g *FilesystemGallery) query(ctx context.Context, start int64, end *int64) ([]models.Photo, error) {
	photos := []models.Photo{}

	err := filepath.Walk(g.rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if info.IsDir() {
			// Skip hidden directories such as .thumbnails
			if path != g.rootPath && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(info.Name(), ".") || !g.IsImageFile(info.Name()) {
			return nil
		}

		ts := g.timestamp(path, info)
		if ts < start || (end != nil && ts > *end) {
			return nil
		}

		relPath, err := filepath.Rel(g.rootPath, path)
		if err != nil {
			return err
		}

		photo, err := models.NewPhoto(filepath.ToSlash(relPath), ts, info.Name(), path)
		if err != nil {
			// Pre-epoch timestamps cannot be placed on the timeline
			return nil
		}
		photos = append(photos, *photo)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortPhotos(photos)
	return photos, nil
}

func (g *FilesystemGallery) timestamp(path string, info os.FileInfo) int64 {
	if g.useEXIF {
		if taken, ok := readDateTaken(path); ok {
			return taken.Unix()
		}
	}
	return info.ModTime().Unix()
}

// readDateTaken extracts EXIF DateTimeOriginal
func readDateTaken(path string) (time.Time, bool) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		// No EXIF data or unsupported format
		return time.Time{}, false
	}

	tm, err := x.DateTime()
	if err != nil || tm.Unix() < 0 {
		return time.Time{}, false
	}
	return tm, true
}
