package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/photosync/syncagent/internal/config"
	"github.com/photosync/syncagent/internal/models"
)

// Uploader sends one photo to the remote store. Upload must be safe to
// repeat for a photo that was already sent: after a crash the engine resumes
// from the last checkpoint and re-uploads the tail of the interrupted batch.
type Uploader interface {
	Upload(ctx context.Context, photo models.Photo) error
}

// SimulatedUploader stands in for a network upload with a fixed delay
type SimulatedUploader struct {
	delay time.Duration

	mu       sync.Mutex
	uploaded int
	lastID   string
}

// NewSimulatedUploader creates an uploader that sleeps delay per photo
func NewSimulatedUploader(delay time.Duration) *SimulatedUploader {
	return &SimulatedUploader{delay: delay}
}

func (u *SimulatedUploader) Upload(ctx context.Context, photo models.Photo) error {
	if u.delay > 0 {
		timer := time.NewTimer(u.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	u.mu.Lock()
	u.uploaded++
	u.lastID = photo.ID
	u.mu.Unlock()
	return nil
}

// Uploaded returns how many photos were sent and the id of the last one
func (u *SimulatedUploader) Uploaded() (int, string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploaded, u.lastID
}

// NewUploaderFromConfig builds the uploader selected by cfg.Uploader.Kind
func NewUploaderFromConfig(cfg *config.Config) (Uploader, error) {
	switch cfg.Uploader.Kind {
	case config.UploaderSimulated:
		return NewSimulatedUploader(time.Duration(cfg.Uploader.SimulatedDelayMs) * time.Millisecond), nil
	case config.UploaderMirror:
		storage, err := NewMirrorStorage(cfg.Uploader.MirrorPath, cfg.Gallery.AllowedExtensions, cfg.Uploader.MaxFileSizeMB)
		if err != nil {
			return nil, fmt.Errorf("mirror storage: %w", err)
		}
		uploader, err := NewMirrorUploader(storage, NewHashService())
		if err != nil {
			return nil, err
		}
		if cfg.Uploader.MirrorPreviews {
			uploader.SetPreviews(NewPreviewService(storage.BasePath(), cfg.Uploader.PreviewMaxDim))
		}
		return uploader, nil
	default:
		return nil, fmt.Errorf("unknown uploader kind %q", cfg.Uploader.Kind)
	}
}
