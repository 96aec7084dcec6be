package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photosync/syncagent/internal/models"
	"github.com/photosync/syncagent/internal/repository"
)

// racingAnchorStore answers the first LoadAnchor with a stale value, as if
// the anchor changed between that read and the next one.
type racingAnchorStore struct {
	*repository.MemoryIntervalStore
	mu    sync.Mutex
	stale *int64
	reads int
}

func (s *racingAnchorStore) LoadAnchor(ctx context.Context) (int64, bool, error) {
	s.mu.Lock()
	s.reads++
	first := s.reads == 1
	s.mu.Unlock()
	if first && s.stale != nil {
		return *s.stale, true, nil
	}
	return s.MemoryIntervalStore.LoadAnchor(ctx)
}

// anchorFailStore fails every SaveAnchor
type anchorFailStore struct {
	*repository.MemoryIntervalStore
	err error
}

func (s *anchorFailStore) SaveAnchor(ctx context.Context, anchor int64) error {
	return s.err
}

func newTestPeriodic(t *testing.T, store repository.IntervalStore, gallery repository.GalleryQuery, uploader Uploader, lock *IntervalLock) *PeriodicSyncService {
	t.Helper()
	if lock == nil {
		lock = NewIntervalLock()
	}
	svc := NewPeriodicSyncService(store, gallery, newTestBatches(t, uploader, 2), lock, nil, nil, time.Minute)
	svc.now = func() time.Time { return time.Unix(1000, 0) }
	return svc
}

func TestPeriodicSyncService_RunTick(t *testing.T) {
	ctx := context.Background()

	t.Run("does nothing without an anchor", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore(iv(0, 100))
		uploader := &recordingUploader{}
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(testPhotos(200)...), uploader, nil)

		result := svc.RunTick(ctx)

		assert.Equal(t, TickNoOpNotConfigured, result.Outcome)
		assert.NoError(t, result.Err)
		assert.Empty(t, uploader.timestamps())
		assert.Empty(t, store.Saves())
	})

	t.Run("uploads photos after the anchored interval", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore()
		uploader := &recordingUploader{}
		gallery := repository.NewMemoryGallery(testPhotos(900, 1000, 1001, 1005, 1010)...)
		svc := newTestPeriodic(t, store, gallery, uploader, nil)

		anchor, err := svc.EnableSyncFromNow(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1000), anchor)

		result := svc.RunTick(ctx)

		require.NoError(t, result.Err)
		assert.Equal(t, TickSuccess, result.Outcome)
		assert.Equal(t, 3, result.Uploaded)
		assert.Equal(t, []int64{1001, 1005, 1010}, uploader.timestamps())

		intervals, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TimeInterval{iv(1000, 1010)}, intervals)
		assert.Equal(t, "Synced 3 new photo(s).", svc.Progress().Current().Text)
	})

	t.Run("second tick with no new photos uploads nothing", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore(iv(1000, 1010))
		require.NoError(t, store.SaveAnchor(ctx, 1000))
		uploader := &recordingUploader{}
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(testPhotos(1001, 1010)...), uploader, nil)

		result := svc.RunTick(ctx)

		assert.Equal(t, TickSuccess, result.Outcome)
		assert.Zero(t, result.Uploaded)
		assert.Empty(t, uploader.timestamps())
		assert.Empty(t, store.Saves())
	})

	t.Run("checkpoints merge with later intervals", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore(iv(0, 100), iv(200, 300))
		require.NoError(t, store.SaveAnchor(ctx, 0))
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(testPhotos(150, 250, 350)...), &recordingUploader{}, nil)

		result := svc.RunTick(ctx)

		require.Equal(t, TickSuccess, result.Outcome)
		assert.Equal(t, [][]models.TimeInterval{
			{iv(0, 300)},
			{iv(0, 350)},
		}, store.Saves())

		anchor, ok, err := store.LoadAnchor(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(0), anchor)
	})

	t.Run("missing anchor interval is fatal", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore(iv(0, 100))
		require.NoError(t, store.SaveAnchor(ctx, 500))
		uploader := &recordingUploader{}
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(testPhotos(600)...), uploader, nil)

		result := svc.RunTick(ctx)

		assert.Equal(t, TickFatalMissingAnchor, result.Outcome)
		assert.ErrorIs(t, result.Err, models.ErrMissingAnchor)
		assert.Empty(t, uploader.timestamps())
	})

	t.Run("retries when the interval store is busy", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore(iv(1000, 1000))
		require.NoError(t, store.SaveAnchor(ctx, 1000))
		lock := NewIntervalLock()
		require.True(t, lock.TryAcquire())
		defer lock.Release()

		uploader := &recordingUploader{}
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(testPhotos(1001)...), uploader, lock)

		result := svc.RunTick(ctx)

		assert.Equal(t, TickRetry, result.Outcome)
		assert.ErrorIs(t, result.Err, ErrIntervalStoreBusy)
		assert.Empty(t, uploader.timestamps())
	})

	t.Run("upload failure retries and keeps finished batches", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore(iv(1000, 1000))
		require.NoError(t, store.SaveAnchor(ctx, 1000))
		boom := errors.New("timeout")
		uploader := &recordingUploader{failAt: 3, failErr: boom}
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(testPhotos(1001, 1002, 1003)...), uploader, nil)

		result := svc.RunTick(ctx)

		assert.Equal(t, TickRetry, result.Outcome)
		assert.ErrorIs(t, result.Err, boom)
		assert.Equal(t, 2, result.Uploaded)

		intervals, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TimeInterval{iv(1000, 1002)}, intervals)
	})

	t.Run("reports each tick to the callback", func(t *testing.T) {
		svc := newTestPeriodic(t, repository.NewMemoryIntervalStore(), repository.NewMemoryGallery(), &recordingUploader{}, nil)
		var got []TickOutcome
		svc.SetOnTick(func(r TickResult) { got = append(got, r.Outcome) })

		svc.RunTick(ctx)

		assert.Equal(t, []TickOutcome{TickNoOpNotConfigured}, got)
		status, err := svc.Status(ctx)
		require.NoError(t, err)
		require.NotNil(t, status.LastTick)
		assert.Equal(t, TickNoOpNotConfigured, status.LastTick.Outcome)
		assert.Equal(t, time.Unix(1000, 0), status.LastTick.FinishedAt)
	})
}

func TestPeriodicSyncService_EnableDisable(t *testing.T) {
	ctx := context.Background()

	t.Run("enable adds a point interval at now", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore(iv(0, 500))
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(), &recordingUploader{}, nil)

		anchor, err := svc.EnableSyncFromNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), anchor)

		intervals, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TimeInterval{iv(0, 500), iv(1000, 1000)}, intervals)
	})

	t.Run("enable inside a synced interval anchors at its start", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore(iv(0, 2000))
		uploader := &recordingUploader{}
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(testPhotos(1500, 2000, 2500)...), uploader, nil)

		anchor, err := svc.EnableSyncFromNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), anchor)

		intervals, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TimeInterval{iv(0, 2000)}, intervals)

		result := svc.RunTick(ctx)
		require.Equal(t, TickSuccess, result.Outcome)
		// 1500 and 2000 were already synced
		assert.Equal(t, []int64{2500}, uploader.timestamps())
	})

	t.Run("enable right after an interval extends it", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore(iv(0, 999))
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(), &recordingUploader{}, nil)

		anchor, err := svc.EnableSyncFromNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), anchor)

		intervals, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TimeInterval{iv(0, 1000)}, intervals)
	})

	t.Run("enable right before an interval joins it", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore(iv(1200, 1300), iv(0, 500), iv(1001, 1100))
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(), &recordingUploader{}, nil)

		anchor, err := svc.EnableSyncFromNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), anchor)

		intervals, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TimeInterval{iv(0, 500), iv(1000, 1100), iv(1200, 1300)}, intervals)
		assert.True(t, models.IsNormalized(intervals))
	})

	t.Run("intervals are saved before the anchor", func(t *testing.T) {
		mem := repository.NewMemoryIntervalStore(iv(0, 500))
		store := &anchorFailStore{MemoryIntervalStore: mem, err: errors.New("disk full")}
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(), &recordingUploader{}, nil)

		_, err := svc.EnableSyncFromNow(ctx)
		require.Error(t, err)

		// The interval is there and no anchor points at nothing
		intervals, err := mem.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TimeInterval{iv(0, 500), iv(1000, 1000)}, intervals)
		_, ok, err := mem.LoadAnchor(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, TickNoOpNotConfigured, svc.RunTick(ctx).Outcome)
	})

	t.Run("enable is idempotent", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore()
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(), &recordingUploader{}, nil)

		first, err := svc.EnableSyncFromNow(ctx)
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Unix(2000, 0) }
		second, err := svc.EnableSyncFromNow(ctx)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		intervals, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TimeInterval{iv(1000, 1000)}, intervals)
	})

	t.Run("disable clears the anchor and keeps intervals", func(t *testing.T) {
		store := repository.NewMemoryIntervalStore()
		uploader := &recordingUploader{}
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(testPhotos(1500)...), uploader, nil)

		_, err := svc.EnableSyncFromNow(ctx)
		require.NoError(t, err)
		require.NoError(t, svc.DisableSyncFromNow(ctx))

		_, ok, err := store.LoadAnchor(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		intervals, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.TimeInterval{iv(1000, 1000)}, intervals)

		assert.Equal(t, TickNoOpNotConfigured, svc.RunTick(ctx).Outcome)
		assert.Empty(t, uploader.timestamps())
	})

	t.Run("status reports the anchor", func(t *testing.T) {
		svc := newTestPeriodic(t, repository.NewMemoryIntervalStore(), repository.NewMemoryGallery(), &recordingUploader{}, nil)
		_, err := svc.EnableSyncFromNow(ctx)
		require.NoError(t, err)

		status, err := svc.Status(ctx)
		require.NoError(t, err)
		require.NotNil(t, status.AnchorPoint)
		assert.Equal(t, int64(1000), *status.AnchorPoint)
		assert.False(t, status.Active)
		assert.Equal(t, time.Minute, status.Interval)
	})
}

func TestPeriodicSyncService_AnchorReadUnderLock(t *testing.T) {
	ctx := context.Background()

	t.Run("anchor cleared before the lock is taken", func(t *testing.T) {
		stale := int64(1000)
		store := &racingAnchorStore{MemoryIntervalStore: repository.NewMemoryIntervalStore(iv(1000, 1000)), stale: &stale}
		uploader := &recordingUploader{}
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(testPhotos(1500)...), uploader, nil)

		result := svc.RunTick(ctx)

		assert.Equal(t, TickNoOpNotConfigured, result.Outcome)
		assert.Empty(t, uploader.timestamps())
	})

	t.Run("anchor moved by a merge before the lock is taken", func(t *testing.T) {
		stale := int64(1000)
		mem := repository.NewMemoryIntervalStore(iv(0, 2000))
		require.NoError(t, mem.SaveAnchor(ctx, 0))
		store := &racingAnchorStore{MemoryIntervalStore: mem, stale: &stale}
		uploader := &recordingUploader{}
		svc := newTestPeriodic(t, store, repository.NewMemoryGallery(testPhotos(1500, 2500)...), uploader, nil)

		result := svc.RunTick(ctx)

		require.NoError(t, result.Err)
		assert.Equal(t, TickSuccess, result.Outcome)
		assert.Equal(t, []int64{2500}, uploader.timestamps())
	})
}

func TestPeriodicSyncService_StartStop(t *testing.T) {
	svc := NewPeriodicSyncService(repository.NewMemoryIntervalStore(), repository.NewMemoryGallery(),
		newTestBatches(t, &recordingUploader{}, 2), NewIntervalLock(), nil, nil, 10*time.Millisecond)

	ticks := make(chan TickResult, 16)
	svc.SetOnTick(func(r TickResult) {
		select {
		case ticks <- r:
		default:
		}
	})

	svc.Start()
	svc.Start()
	assert.True(t, svc.IsActive())

	select {
	case r := <-ticks:
		assert.Equal(t, TickNoOpNotConfigured, r.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("no tick within 5s")
	}

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsActive())
}

func TestCountThrough(t *testing.T) {
	photos := testPhotos(10, 20, 20, 30)

	assert.Equal(t, 0, countThrough(photos, 5))
	assert.Equal(t, 3, countThrough(photos, 20))
	assert.Equal(t, 4, countThrough(photos, 99))
}
