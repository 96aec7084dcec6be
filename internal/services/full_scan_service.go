package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/photosync/syncagent/internal/models"
	"github.com/photosync/syncagent/internal/observability"
	"github.com/photosync/syncagent/internal/repository"
)

// ErrScanInProgress is returned when a full scan is requested while one runs
var ErrScanInProgress = errors.New("full scan already in progress")

// ScanState is a step of the full scan state machine
type ScanState string

const (
	ScanStateIdle         ScanState = "idle"
	ScanStateInitializing ScanState = "initializing"
	ScanStateMergingGap   ScanState = "merging_gap"
	ScanStateSyncingTail  ScanState = "syncing_tail"
	ScanStateComplete     ScanState = "complete"
	ScanStateCancelled    ScanState = "cancelled"
	ScanStateFailed       ScanState = "failed"
)

// ScanOutcome is the terminal result of a full scan
type ScanOutcome string

const (
	ScanCompleted ScanOutcome = "completed"
	ScanCancelled ScanOutcome = "cancelled"
	ScanFailed    ScanOutcome = "failed"
)

// Status texts published during a full scan
const (
	StatusPreparingScan = "Preparing full scan..."
	StatusSyncingGap    = "Syncing gap..."
	StatusFinalizing    = "Finalizing..."
	StatusScanComplete  = "Full scan complete!"
	StatusScanStopped   = "Full scan stopped."
)

// ScanResult describes one finished full scan
type ScanResult struct {
	RunID      string
	Outcome    ScanOutcome
	Err        error
	Intervals  []models.TimeInterval
	StartedAt  time.Time
	FinishedAt time.Time
}

// FullScanStatus is a snapshot of the service
type FullScanStatus struct {
	State   ScanState
	RunID   string
	Running bool
	Last    *ScanResult
}

// FullScanService grows the synced coverage from the beginning of time to
// the newest photo. It fills the gap between the two earliest intervals,
// merges them, and repeats until one interval is left, then uploads every
// photo after its end. Progress is checkpointed to the interval store so an
// interrupted scan resumes where it stopped.
type FullScanService struct {
	store    repository.IntervalStore
	gallery  repository.GalleryQuery
	batches  *BatchUploader
	lock     *IntervalLock
	progress *ProgressBroadcaster
	metrics  *observability.SyncMetrics
	writer   intervalWriter
	logger   *observability.Logger

	mu         sync.RWMutex
	state      ScanState
	running    bool
	runID      string
	cancel     context.CancelFunc
	done       chan struct{}
	last       *ScanResult
	onFinished func(ScanResult)
}

// NewFullScanService creates a FullScanService. The lock must be shared with
// the periodic sync path.
func NewFullScanService(
	store repository.IntervalStore,
	gallery repository.GalleryQuery,
	batches *BatchUploader,
	lock *IntervalLock,
	progress *ProgressBroadcaster,
	metrics *observability.SyncMetrics,
) *FullScanService {
	if progress == nil {
		progress = NewProgressBroadcaster()
	}
	logger := observability.WithField("component", "full_scan")

	return &FullScanService{
		store:    store,
		gallery:  gallery,
		batches:  batches.ForFlow("full_scan", progress),
		lock:     lock,
		progress: progress,
		metrics:  metrics,
		writer: intervalWriter{
			store:   store,
			metrics: metrics,
			flow:    "full_scan",
			logger:  logger,
		},
		logger: logger,
		state:  ScanStateIdle,
	}
}

// SetOnFinished registers a callback invoked after every run
func (s *FullScanService) SetOnFinished(fn func(ScanResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinished = fn
}

// Progress returns the broadcaster this service publishes to
func (s *FullScanService) Progress() *ProgressBroadcaster {
	return s.progress
}

// State returns the current state machine step
func (s *FullScanService) State() ScanState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns a snapshot of the service
func (s *FullScanService) Status() FullScanStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := FullScanStatus{
		State:   s.state,
		RunID:   s.runID,
		Running: s.running,
	}
	if s.last != nil {
		last := *s.last
		status.Last = &last
	}
	return status
}

// IsRunning reports whether a scan is in progress
func (s *FullScanService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Start launches a full scan in the background and returns its run id
func (s *FullScanService) Start() (string, error) {
	ctx, runID, done, err := s.begin(context.Background())
	if err != nil {
		return "", err
	}

	go func() {
		defer close(done)
		s.execute(ctx, runID)
	}()
	return runID, nil
}

// Stop cancels the running scan, if any. The run ends as cancelled.
func (s *FullScanService) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run, if any, has finished
func (s *FullScanService) Wait(ctx context.Context) error {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run performs a full scan synchronously
func (s *FullScanService) Run(ctx context.Context) ScanResult {
	ctx, runID, done, err := s.begin(ctx)
	if err != nil {
		return ScanResult{Outcome: ScanFailed, Err: err}
	}
	defer close(done)
	return s.execute(ctx, runID)
}

func (s *FullScanService) begin(parent context.Context) (context.Context, string, chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, "", nil, ErrScanInProgress
	}

	ctx, cancel := context.WithCancel(parent)
	s.running = true
	s.runID = uuid.New().String()
	s.cancel = cancel
	s.done = make(chan struct{})
	return ctx, s.runID, s.done, nil
}

func (s *FullScanService) execute(ctx context.Context, runID string) ScanResult {
	logger := s.logger.WithField("run_id", runID)
	ctx, span := observability.StartServiceSpan(ctx, "FullScanService", "Run")
	defer span.End()
	span.SetAttributes(observability.RunID(runID))

	result := ScanResult{RunID: runID, StartedAt: time.Now()}
	logger.Info("Full scan started")

	intervals, err := s.scan(ctx)
	result.FinishedAt = time.Now()
	result.Intervals = intervals

	switch {
	case err == nil:
		result.Outcome = ScanCompleted
		s.setState(ScanStateComplete)
		s.progress.Publish(false, StatusScanComplete)
		observability.SetSuccess(span)
		logger.Infof("Full scan complete in %s, %d interval(s)", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond), len(intervals))

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		result.Outcome = ScanCancelled
		result.Err = err
		s.setState(ScanStateCancelled)
		s.progress.Publish(false, StatusScanStopped)
		logger.Info("Full scan stopped")

	default:
		result.Outcome = ScanFailed
		result.Err = err
		s.setState(ScanStateFailed)
		s.progress.Publish(false, "Error: "+err.Error())
		observability.RecordError(span, err)
		logger.Errorf("Full scan failed: %v", err)
	}
	span.SetAttributes(
		observability.Outcome(string(result.Outcome)),
		observability.Duration(result.FinishedAt.Sub(result.StartedAt)),
	)
	s.metrics.RecordScanOutcome(context.WithoutCancel(ctx), string(result.Outcome))

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.last = &result
	onFinished := s.onFinished
	s.mu.Unlock()

	if onFinished != nil {
		onFinished(result)
	}
	return result
}

// scan drives the state machine under the interval lock and returns the
// last interval list it worked on.
func (s *FullScanService) scan(ctx context.Context) ([]models.TimeInterval, error) {
	s.setState(ScanStateInitializing)
	s.progress.Publish(true, StatusPreparingScan)

	if err := s.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.lock.Release()

	intervals, err := s.InitializeIntervals(ctx)
	if err != nil {
		return nil, err
	}

	if len(intervals) >= 2 {
		s.setState(ScanStateMergingGap)
	}
	for len(intervals) >= 2 {
		if err := ctx.Err(); err != nil {
			return intervals, err
		}
		intervals, err = s.ProcessNextTwoIntervals(ctx, intervals)
		if err != nil {
			return intervals, err
		}
	}

	if err := ctx.Err(); err != nil {
		return intervals, err
	}
	s.setState(ScanStateSyncingTail)
	return s.ProcessTailEnd(ctx, intervals)
}

// InitializeIntervals loads the persisted intervals, makes sure one starts
// at zero, and sorts them by start.
func (s *FullScanService) InitializeIntervals(ctx context.Context) ([]models.TimeInterval, error) {
	intervals, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load intervals: %w", err)
	}

	if models.FindByStart(intervals, 0) < 0 {
		intervals = append([]models.TimeInterval{models.BeginningOfTime}, intervals...)
	}
	models.SortIntervals(intervals)
	return intervals, nil
}

// ProcessNextTwoIntervals uploads the photos strictly between the first two
// intervals, then replaces both with their union and persists the result.
// intervals must hold at least two entries sorted by start.
func (s *FullScanService) ProcessNextTwoIntervals(ctx context.Context, intervals []models.TimeInterval) ([]models.TimeInterval, error) {
	if len(intervals) < 2 {
		return intervals, fmt.Errorf("need two intervals to merge, have %d", len(intervals))
	}

	first, second := intervals[0], intervals[1]
	gapStart, gapEnd := first.End+1, second.Start-1

	if gapStart <= gapEnd {
		photos, err := s.gallery.PhotosInInterval(ctx, gapStart, gapEnd)
		if err != nil {
			return intervals, fmt.Errorf("query gap %d..%d: %w", gapStart, gapEnd, err)
		}

		if len(photos) > 0 {
			s.logger.Debugf("Syncing %d photo(s) in gap %d..%d", len(photos), gapStart, gapEnd)
			checkpoint := CheckpointFunc(func(ctx context.Context, lastTimestamp int64) error {
				first.End = lastTimestamp
				snapshot := models.CloneIntervals(intervals)
				snapshot[0] = first
				return s.writer.save(ctx, snapshot)
			})
			if err := s.batches.UploadBatched(ctx, photos, StatusSyncingGap, checkpoint); err != nil {
				return intervals, err
			}
		}
	}

	merged := models.TimeInterval{Start: first.Start, End: max(first.End, second.End)}
	next := make([]models.TimeInterval, 0, len(intervals)-1)
	next = append(next, merged)
	next = append(next, intervals[2:]...)

	if err := s.writer.save(ctx, next); err != nil {
		return intervals, err
	}
	return next, nil
}

// ProcessTailEnd uploads every photo newer than the single remaining
// interval, extending it as batches complete.
func (s *FullScanService) ProcessTailEnd(ctx context.Context, intervals []models.TimeInterval) ([]models.TimeInterval, error) {
	if len(intervals) == 0 {
		return intervals, nil
	}

	final := intervals[0]
	photos, err := s.gallery.PhotosFrom(ctx, final.End+1)
	if err != nil {
		return intervals, fmt.Errorf("query tail after %d: %w", final.End, err)
	}
	if len(photos) == 0 {
		return intervals, nil
	}

	result := models.CloneIntervals(intervals)
	checkpoint := CheckpointFunc(func(ctx context.Context, lastTimestamp int64) error {
		final.End = lastTimestamp
		result[0] = final
		return s.writer.save(ctx, models.CloneIntervals(result))
	})
	if err := s.batches.UploadBatched(ctx, photos, StatusFinalizing, checkpoint); err != nil {
		return result, err
	}
	return result, nil
}

func (s *FullScanService) setState(state ScanState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
