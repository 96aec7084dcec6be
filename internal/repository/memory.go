package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/photosync/syncagent/internal/models"
)

// MemoryIntervalStore is an in-process IntervalStore. It records every saved
// document so callers can inspect checkpoint history.
type MemoryIntervalStore struct {
	mu        sync.Mutex
	intervals []models.TimeInterval
	anchor    *int64
	saves     [][]models.TimeInterval
}

// NewMemoryIntervalStore creates a store seeded with intervals
func NewMemoryIntervalStore(intervals ...models.TimeInterval) *MemoryIntervalStore {
	return &MemoryIntervalStore{intervals: models.CloneIntervals(intervals)}
}

func (s *MemoryIntervalStore) Load(ctx context.Context) ([]models.TimeInterval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneIntervals(s.intervals), nil
}

func (s *MemoryIntervalStore) Save(ctx context.Context, intervals []models.TimeInterval) error {
	for _, iv := range intervals {
		if err := iv.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervals = models.CloneIntervals(intervals)
	s.saves = append(s.saves, models.CloneIntervals(intervals))
	return nil
}

func (s *MemoryIntervalStore) LoadAnchor(ctx context.Context) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anchor == nil {
		return 0, false, nil
	}
	return *s.anchor, true, nil
}

func (s *MemoryIntervalStore) SaveAnchor(ctx context.Context, anchor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchor = &anchor
	return nil
}

func (s *MemoryIntervalStore) ClearAnchor(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchor = nil
	return nil
}

func (s *MemoryIntervalStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervals = nil
	s.anchor = nil
	return nil
}

// Saves returns a copy of every document passed to Save, oldest first
func (s *MemoryIntervalStore) Saves() [][]models.TimeInterval {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]models.TimeInterval, len(s.saves))
	for i, doc := range s.saves {
		out[i] = models.CloneIntervals(doc)
	}
	return out
}

// MemoryGallery is a GalleryQuery over a fixed photo list
type MemoryGallery struct {
	mu     sync.RWMutex
	photos []models.Photo
}

// NewMemoryGallery creates a gallery holding photos
func NewMemoryGallery(photos ...models.Photo) *MemoryGallery {
	g := &MemoryGallery{}
	g.Add(photos...)
	return g
}

// Add inserts photos, keeping timestamp order
func (g *MemoryGallery) Add(photos ...models.Photo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.photos = append(g.photos, photos...)
	sortPhotos(g.photos)
}

func (g *MemoryGallery) PhotosFrom(ctx context.Context, startInclusive int64) ([]models.Photo, error) {
	return g.filter(ctx, func(p models.Photo) bool {
		return p.TimestampSeconds >= startInclusive
	})
}

func (g *MemoryGallery) PhotosInInterval(ctx context.Context, start, end int64) ([]models.Photo, error) {
	if start > end {
		return []models.Photo{}, nil
	}
	return g.filter(ctx, func(p models.Photo) bool {
		return p.TimestampSeconds >= start && p.TimestampSeconds <= end
	})
}

func (g *MemoryGallery) filter(ctx context.Context, keep func(models.Photo) bool) ([]models.Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	out := []models.Photo{}
	for _, p := range g.photos {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// sortPhotos orders by timestamp, then id so equal timestamps are stable
func sortPhotos(photos []models.Photo) {
	sort.SliceStable(photos, func(a, b int) bool {
		if photos[a].TimestampSeconds != photos[b].TimestampSeconds {
			return photos[a].TimestampSeconds < photos[b].TimestampSeconds
		}
		return photos[a].ID < photos[b].ID
	})
}
