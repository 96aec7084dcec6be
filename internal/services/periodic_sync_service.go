package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/photosync/syncagent/internal/models"
	"github.com/photosync/syncagent/internal/observability"
	"github.com/photosync/syncagent/internal/repository"
)

// TickOutcome is the result of one periodic sync tick
type TickOutcome string

const (
	TickSuccess            TickOutcome = "success"
	TickNoOpNotConfigured  TickOutcome = "noop_not_configured"
	TickRetry              TickOutcome = "retry"
	TickFatalMissingAnchor TickOutcome = "fatal_missing_anchor"
)

// StatusSyncingNew is the status prefix while new photos upload
const StatusSyncingNew = "Syncing new photos..."

// TickResult describes one finished tick
type TickResult struct {
	Outcome    TickOutcome
	Err        error
	Uploaded   int
	FinishedAt time.Time
}

// PeriodicSyncStatus is a snapshot of the service
type PeriodicSyncStatus struct {
	Active      bool
	Interval    time.Duration
	NextTickAt  time.Time
	LastTick    *TickResult
	AnchorPoint *int64
}

// PeriodicSyncService keeps the "sync from now" interval growing. Each tick
// uploads photos newer than the end of the interval that starts at the sync
// anchor. Ticks run on a schedule, on demand, or when the gallery watcher
// sees new files.
type PeriodicSyncService struct {
	store    repository.IntervalStore
	gallery  repository.GalleryQuery
	batches  *BatchUploader
	lock     *IntervalLock
	progress *ProgressBroadcaster
	metrics  *observability.SyncMetrics
	writer   intervalWriter
	logger   *observability.Logger
	interval time.Duration
	now      func() time.Time

	mu         sync.RWMutex
	tickMu     sync.Mutex
	stopChan   chan struct{}
	ticker     *time.Ticker
	nextTickAt time.Time
	last       *TickResult
	onTick     func(TickResult)
}

// NewPeriodicSyncService creates a PeriodicSyncService. The lock must be
// shared with the full scan.
func NewPeriodicSyncService(
	store repository.IntervalStore,
	gallery repository.GalleryQuery,
	batches *BatchUploader,
	lock *IntervalLock,
	progress *ProgressBroadcaster,
	metrics *observability.SyncMetrics,
	interval time.Duration,
) *PeriodicSyncService {
	if progress == nil {
		progress = NewProgressBroadcaster()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	logger := observability.WithField("component", "periodic_sync")

	return &PeriodicSyncService{
		store:    store,
		gallery:  gallery,
		batches:  batches.ForFlow("periodic", progress),
		lock:     lock,
		progress: progress,
		metrics:  metrics,
		writer: intervalWriter{
			store:   store,
			metrics: metrics,
			flow:    "periodic",
			logger:  logger,
		},
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// SetOnTick registers a callback invoked after every tick
func (s *PeriodicSyncService) SetOnTick(fn func(TickResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = fn
}

// Progress returns the broadcaster this service publishes to
func (s *PeriodicSyncService) Progress() *ProgressBroadcaster {
	return s.progress
}

// RunTick performs one periodic sync pass. Ticks never overlap.
func (s *PeriodicSyncService) RunTick(ctx context.Context) TickResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	ctx, span := observability.StartServiceSpan(ctx, "PeriodicSyncService", "RunTick")
	defer span.End()

	result := s.tick(ctx)
	result.FinishedAt = s.now()

	span.SetAttributes(observability.Outcome(string(result.Outcome)), observability.PhotoCount(result.Uploaded))
	switch result.Outcome {
	case TickSuccess, TickNoOpNotConfigured:
		observability.SetSuccess(span)
	case TickFatalMissingAnchor:
		observability.RecordError(span, result.Err)
		s.logger.Errorf("Periodic sync cannot run: %v", result.Err)
	case TickRetry:
		observability.RecordError(span, result.Err)
		s.logger.Warnf("Periodic sync will retry: %v", result.Err)
	}
	s.metrics.RecordTickOutcome(context.WithoutCancel(ctx), string(result.Outcome))

	s.mu.Lock()
	s.last = &result
	onTick := s.onTick
	s.mu.Unlock()

	if onTick != nil {
		onTick(result)
	}
	return result
}

func (s *PeriodicSyncService) tick(ctx context.Context) TickResult {
	// Unlocked pre-check so an unconfigured agent never contends for the lock
	if _, ok, err := s.store.LoadAnchor(ctx); err != nil {
		return TickResult{Outcome: TickRetry, Err: fmt.Errorf("load anchor: %w", err)}
	} else if !ok {
		s.logger.Debug("Sync from now is not set up, skipping")
		return TickResult{Outcome: TickNoOpNotConfigured}
	}

	if !s.lock.TryAcquire() {
		return TickResult{Outcome: TickRetry, Err: ErrIntervalStoreBusy}
	}
	defer s.lock.Release()

	// The anchor may have been moved or cleared before the lock was taken
	anchor, ok, err := s.store.LoadAnchor(ctx)
	if err != nil {
		return TickResult{Outcome: TickRetry, Err: fmt.Errorf("load anchor: %w", err)}
	}
	if !ok {
		s.logger.Debug("Sync from now was disabled, skipping")
		return TickResult{Outcome: TickNoOpNotConfigured}
	}

	intervals, err := s.store.Load(ctx)
	if err != nil {
		return TickResult{Outcome: TickRetry, Err: fmt.Errorf("load intervals: %w", err)}
	}

	idx := models.FindByStart(intervals, anchor)
	if idx < 0 {
		return TickResult{
			Outcome: TickFatalMissingAnchor,
			Err:     fmt.Errorf("%w: anchor %d", models.ErrMissingAnchor, anchor),
		}
	}

	anchored := intervals[idx]
	photos, err := s.gallery.PhotosFrom(ctx, anchored.End+1)
	if err != nil {
		return TickResult{Outcome: TickRetry, Err: fmt.Errorf("query photos after %d: %w", anchored.End, err)}
	}
	if len(photos) == 0 {
		s.logger.Debug("No new photos found")
		return TickResult{Outcome: TickSuccess}
	}

	s.logger.Infof("Found %d new photo(s), starting upload", len(photos))

	uploaded := 0
	checkpoint := CheckpointFunc(func(ctx context.Context, lastTimestamp int64) error {
		working := models.CloneIntervals(intervals)
		working[idx].End = lastTimestamp
		if err := s.writer.save(ctx, models.MergeIntervals(working)); err != nil {
			return err
		}
		uploaded = countThrough(photos, lastTimestamp)
		s.logger.Debugf("Saved batch progress, new end is %d", lastTimestamp)
		return nil
	})

	if err := s.batches.UploadBatched(ctx, photos, StatusSyncingNew, checkpoint); err != nil {
		s.progress.Publish(false, "Error: "+err.Error())
		return TickResult{Outcome: TickRetry, Err: err, Uploaded: uploaded}
	}

	s.progress.Publish(false, fmt.Sprintf("Synced %d new photo(s).", len(photos)))
	return TickResult{Outcome: TickSuccess, Uploaded: len(photos)}
}

// countThrough returns how many photos have a timestamp <= ts
func countThrough(photos []models.Photo, ts int64) int {
	n := 0
	for _, p := range photos {
		if p.TimestampSeconds > ts {
			break
		}
		n++
	}
	return n
}

// EnableSyncFromNow anchors periodic sync at the current time. When now
// already lies in a synced interval the anchor is that interval's start;
// otherwise {now, now} is merged into the list and the anchor is the start
// of the interval holding it. Intervals are saved before the anchor, so the
// anchor always names a persisted interval. It does nothing when an anchor
// already exists. The returned value is the anchor in effect.
func (s *PeriodicSyncService) EnableSyncFromNow(ctx context.Context) (int64, error) {
	if err := s.lock.Acquire(ctx); err != nil {
		return 0, err
	}
	defer s.lock.Release()

	if anchor, ok, err := s.store.LoadAnchor(ctx); err != nil {
		return 0, fmt.Errorf("load anchor: %w", err)
	} else if ok {
		return anchor, nil
	}

	intervals, err := s.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load intervals: %w", err)
	}

	now := s.now().Unix()
	merged := models.MergeIntervals(append(models.CloneIntervals(intervals), models.TimeInterval{Start: now, End: now}))
	anchor := merged[models.FindContaining(merged, now)].Start

	if err := s.store.Save(ctx, merged); err != nil {
		return 0, fmt.Errorf("save intervals: %w", err)
	}
	if err := s.store.SaveAnchor(ctx, anchor); err != nil {
		return 0, fmt.Errorf("save anchor: %w", err)
	}

	if anchor == now {
		s.logger.Infof("Sync from now enabled at %d", now)
	} else {
		s.logger.Infof("Sync from now enabled at %d, inside the interval starting at %d", now, anchor)
	}
	return anchor, nil
}

// DisableSyncFromNow clears the anchor. Synced intervals are kept.
func (s *PeriodicSyncService) DisableSyncFromNow(ctx context.Context) error {
	if err := s.lock.Acquire(ctx); err != nil {
		return err
	}
	defer s.lock.Release()

	if err := s.store.ClearAnchor(ctx); err != nil {
		return fmt.Errorf("clear anchor: %w", err)
	}
	s.logger.Info("Sync from now disabled")
	return nil
}

// Start begins the background tick loop
func (s *PeriodicSyncService) Start() {
	s.mu.Lock()
	if s.ticker != nil {
		s.mu.Unlock()
		return
	}
	s.stopChan = make(chan struct{})
	s.ticker = time.NewTicker(s.interval)
	s.nextTickAt = s.now().Add(s.interval)
	ticker, stop := s.ticker, s.stopChan
	s.mu.Unlock()

	s.logger.Infof("Periodic sync started (runs every %s)", s.interval)

	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-stop
			cancel()
		}()

		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				s.nextTickAt = s.now().Add(s.interval)
				s.mu.Unlock()
				s.RunTick(ctx)
			case <-stop:
				s.logger.Info("Periodic sync stopped")
				return
			}
		}
	}()
}

// Stop stops the tick loop and cancels a tick in flight
func (s *PeriodicSyncService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
	s.nextTickAt = time.Time{}
	close(s.stopChan)
}

// IsActive reports whether the tick loop is running
func (s *PeriodicSyncService) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticker != nil
}

// Status returns a snapshot including the stored anchor
func (s *PeriodicSyncService) Status(ctx context.Context) (PeriodicSyncStatus, error) {
	s.mu.RLock()
	status := PeriodicSyncStatus{
		Active:     s.ticker != nil,
		Interval:   s.interval,
		NextTickAt: s.nextTickAt,
	}
	if s.last != nil {
		last := *s.last
		status.LastTick = &last
	}
	s.mu.RUnlock()

	anchor, ok, err := s.store.LoadAnchor(ctx)
	if err != nil {
		return status, fmt.Errorf("load anchor: %w", err)
	}
	if ok {
		status.AnchorPoint = &anchor
	}
	return status, nil
}
