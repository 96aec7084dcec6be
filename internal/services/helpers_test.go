package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/photosync/syncagent/internal/models"
)

func testPhoto(ts int64) models.Photo {
	return models.Photo{
		ID:               fmt.Sprintf("photo-%d", ts),
		TimestampSeconds: ts,
		DisplayName:      fmt.Sprintf("IMG_%d.jpg", ts),
	}
}

func testPhotos(timestamps ...int64) []models.Photo {
	out := make([]models.Photo, 0, len(timestamps))
	for _, ts := range timestamps {
		out = append(out, testPhoto(ts))
	}
	return out
}

// recordingUploader remembers uploaded photos and can fail or run a hook
// before the n-th upload (1-based).
type recordingUploader struct {
	mu       sync.Mutex
	uploaded []models.Photo
	failAt   int
	failErr  error
	before   map[int]func()
}

func (u *recordingUploader) Upload(ctx context.Context, photo models.Photo) error {
	u.mu.Lock()
	n := len(u.uploaded) + 1
	hook := u.before[n]
	u.mu.Unlock()

	if hook != nil {
		hook()
	}
	if u.failAt == n {
		return u.failErr
	}

	u.mu.Lock()
	u.uploaded = append(u.uploaded, photo)
	u.mu.Unlock()
	return nil
}

func (u *recordingUploader) timestamps() []int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]int64, 0, len(u.uploaded))
	for _, p := range u.uploaded {
		out = append(out, p.TimestampSeconds)
	}
	return out
}

// recordingProgress keeps every published status
type recordingProgress struct {
	mu    sync.Mutex
	texts []string
}

func (p *recordingProgress) Publish(isSyncing bool, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
}

func (p *recordingProgress) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

func newTestBatches(t *testing.T, uploader Uploader, batchSize int) *BatchUploader {
	t.Helper()
	b, err := NewBatchUploader(uploader, batchSize, nil, nil)
	require.NoError(t, err)
	return b
}

func iv(start, end int64) models.TimeInterval {
	return models.TimeInterval{Start: start, End: end}
}
