package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/photosync/syncagent/internal/models"
	"github.com/photosync/syncagent/internal/observability"
)

// ManifestFilename is the content index kept at the mirror root
const ManifestFilename = ".photosync-manifest.json"

// MirrorUploader copies photo files into a MirrorStorage. Content already
// present (by SHA-256) is not copied again, which makes re-uploads after a
// resumed batch idempotent.
type MirrorUploader struct {
	storage  *MirrorStorage
	hashes   *HashService
	previews *PreviewService
	logger   *observability.Logger

	mu       sync.Mutex
	manifest map[string]string // content hash -> stored path
}

// NewMirrorUploader loads the manifest from the mirror root, dropping
// entries whose files no longer exist.
func NewMirrorUploader(storage *MirrorStorage, hashes *HashService) (*MirrorUploader, error) {
	u := &MirrorUploader{
		storage:  storage,
		hashes:   hashes,
		logger:   observability.WithField("component", "mirror_uploader"),
		manifest: make(map[string]string),
	}

	data, err := os.ReadFile(u.manifestPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return u, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var stored map[string]string
	if err := json.Unmarshal(data, &stored); err != nil {
		u.logger.Warnf("Ignoring unreadable manifest: %v", err)
		return u, nil
	}
	for hash, path := range stored {
		if !hashes.IsValidHash(hash) || !storage.Exists(path) {
			continue
		}
		u.manifest[hashes.NormalizeHash(hash)] = path
	}
	return u, nil
}

func (u *MirrorUploader) Upload(ctx context.Context, photo models.Photo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if photo.Path == "" {
		return fmt.Errorf("%w: %s", models.ErrNoPhotoPath, photo.ID)
	}

	hash, size, err := u.hashes.ComputeFileHash(photo.Path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", photo.ID, err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if existing, ok := u.manifest[hash]; ok {
		u.logger.Debugf("Skipping %s, already mirrored as %s", photo.ID, existing)
		return nil
	}

	src, err := os.Open(photo.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	name := photo.DisplayName
	if name == "" {
		name = filepath.Base(photo.Path)
	}

	stored, err := u.storage.Store(src, name, photo.Time(), size)
	if err != nil {
		return fmt.Errorf("store %s: %w", photo.ID, err)
	}

	u.manifest[hash] = stored
	if err := u.writeManifest(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if u.previews != nil && IsPreviewable(stored) {
		// A missing preview never fails the upload
		if _, err := u.previews.Generate(photo.Path, stored); err != nil {
			u.logger.Warnf("Preview for %s failed: %v", stored, err)
		}
	}
	return nil
}

// SetPreviews enables preview generation for newly mirrored photos
func (u *MirrorUploader) SetPreviews(previews *PreviewService) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.previews = previews
}

// StoredPath returns where content with the given hash was mirrored
func (u *MirrorUploader) StoredPath(hash string) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	path, ok := u.manifest[u.hashes.NormalizeHash(hash)]
	return path, ok
}

func (u *MirrorUploader) manifestPath() string {
	return filepath.Join(u.storage.BasePath(), ManifestFilename)
}

// writeManifest replaces the manifest atomically. Caller holds u.mu.
func (u *MirrorUploader) writeManifest() error {
	data, err := json.MarshalIndent(u.manifest, "", "  ")
	if err != nil {
		return err
	}

	tmp := u.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, u.manifestPath())
}
