package repository

import (
	"context"

	"github.com/photosync/syncagent/internal/models"
)

// IntervalStore persists the synced interval set and the sync-from-now
// anchor. Save replaces the whole document; there are no field level updates.
type IntervalStore interface {
	Load(ctx context.Context) ([]models.TimeInterval, error)
	Save(ctx context.Context, intervals []models.TimeInterval) error
	// LoadAnchor returns ok=false when sync from now was never enabled
	LoadAnchor(ctx context.Context) (anchor int64, ok bool, err error)
	SaveAnchor(ctx context.Context, anchor int64) error
	ClearAnchor(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

// GalleryQuery reads photos from the device gallery, ordered by timestamp
// ascending.
type GalleryQuery interface {
	PhotosFrom(ctx context.Context, startInclusive int64) ([]models.Photo, error)
	// PhotosInInterval returns photos with start <= ts <= end, or nothing
	// when start > end.
	PhotosInInterval(ctx context.Context, start, end int64) ([]models.Photo, error)
}
