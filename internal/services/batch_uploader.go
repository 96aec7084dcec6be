package services

import (
	"context"
	"fmt"

	"github.com/photosync/syncagent/internal/models"
	"github.com/photosync/syncagent/internal/observability"
)

// DefaultBatchSize is the number of photos uploaded between checkpoints
const DefaultBatchSize = 50

// Checkpointer persists upload progress. lastTimestamp is the timestamp of
// the newest photo uploaded so far.
type Checkpointer interface {
	Checkpoint(ctx context.Context, lastTimestamp int64) error
}

// CheckpointFunc adapts a function to Checkpointer
type CheckpointFunc func(ctx context.Context, lastTimestamp int64) error

func (f CheckpointFunc) Checkpoint(ctx context.Context, lastTimestamp int64) error {
	return f(ctx, lastTimestamp)
}

// BatchUploader uploads photos in order and checkpoints after every
// batchSize photos and once more for a trailing partial batch. A crash right
// after a checkpoint re-uploads at most batchSize-1 photos on resume.
type BatchUploader struct {
	uploader  Uploader
	batchSize int
	progress  ProgressSink
	metrics   *observability.SyncMetrics
	flow      string
}

// NewBatchUploader creates a BatchUploader. progress and metrics may be nil.
func NewBatchUploader(uploader Uploader, batchSize int, progress ProgressSink, metrics *observability.SyncMetrics) (*BatchUploader, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidBatchSize, batchSize)
	}
	if progress == nil {
		progress = discardProgress
	}
	return &BatchUploader{
		uploader:  uploader,
		batchSize: batchSize,
		progress:  progress,
		metrics:   metrics,
		flow:      "batch",
	}, nil
}

// ForFlow returns a copy that reports to progress and labels its metrics
// with flow.
func (b *BatchUploader) ForFlow(flow string, progress ProgressSink) *BatchUploader {
	c := *b
	c.flow = flow
	if progress != nil {
		c.progress = progress
	}
	return &c
}

// BatchSize returns the configured batch size
func (b *BatchUploader) BatchSize() int {
	return b.batchSize
}

// UploadBatched uploads photos in input order. Cancellation is checked before
// each photo and returns the context error; progress checkpointed before it
// stays valid and no further checkpoint runs. Upload and checkpoint errors
// abort the run and are returned wrapped.
func (b *BatchUploader) UploadBatched(ctx context.Context, photos []models.Photo, statusPrefix string, checkpointer Checkpointer) error {
	ctx, span := observability.StartServiceSpan(ctx, "BatchUploader", "UploadBatched")
	defer span.End()
	span.SetAttributes(observability.PhotoCount(len(photos)))

	inBatch := 0
	var lastTimestamp int64

	for i, photo := range photos {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := b.uploader.Upload(ctx, photo); err != nil {
			b.metrics.RecordPhotoUpload(ctx, b.flow, false)
			span.SetAttributes(observability.PhotoID(photo.ID))
			observability.RecordError(span, err)
			return fmt.Errorf("upload %s: %w", photo.DisplayName, err)
		}
		b.metrics.RecordPhotoUpload(ctx, b.flow, true)

		lastTimestamp = photo.TimestampSeconds
		b.progress.Publish(true, fmt.Sprintf("%s (%d/%d)", statusPrefix, i+1, len(photos)))

		inBatch++
		if inBatch >= b.batchSize {
			if err := checkpointer.Checkpoint(ctx, lastTimestamp); err != nil {
				observability.RecordError(span, err)
				return fmt.Errorf("checkpoint at %d: %w", lastTimestamp, err)
			}
			observability.AddEvent(span, "checkpoint", observability.PhotoCount(i+1))
			inBatch = 0
		}
	}

	if inBatch > 0 {
		if err := checkpointer.Checkpoint(ctx, lastTimestamp); err != nil {
			observability.RecordError(span, err)
			return fmt.Errorf("checkpoint at %d: %w", lastTimestamp, err)
		}
		observability.AddEvent(span, "checkpoint", observability.PhotoCount(len(photos)))
	}

	observability.SetSuccess(span)
	return nil
}
