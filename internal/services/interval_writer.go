package services

import (
	"context"
	"fmt"

	"github.com/photosync/syncagent/internal/models"
	"github.com/photosync/syncagent/internal/observability"
	"github.com/photosync/syncagent/internal/repository"
)

// intervalWriter persists whole interval documents for one flow. After each
// save it re-points the sync anchor if a merge absorbed the interval the
// anchor named.
type intervalWriter struct {
	store   repository.IntervalStore
	metrics *observability.SyncMetrics
	flow    string
	logger  *observability.Logger
}

func (w intervalWriter) save(ctx context.Context, intervals []models.TimeInterval) error {
	if err := w.store.Save(ctx, intervals); err != nil {
		return fmt.Errorf("save intervals: %w", err)
	}
	w.metrics.RecordCheckpoint(ctx, w.flow, len(intervals))

	moved, err := reconcileAnchor(ctx, w.store, intervals)
	if err != nil {
		return err
	}
	if moved && w.logger != nil {
		w.logger.Debug("Sync anchor moved to the start of its merged interval")
	}
	return nil
}

// reconcileAnchor keeps the anchor equal to some interval's start. If no
// interval starts at the anchor but one contains it, the anchor moves to that
// interval's start. An anchor outside every interval is left alone so the
// periodic path still reports it as missing.
func reconcileAnchor(ctx context.Context, store repository.IntervalStore, intervals []models.TimeInterval) (bool, error) {
	anchor, ok, err := store.LoadAnchor(ctx)
	if err != nil {
		return false, fmt.Errorf("load anchor: %w", err)
	}
	if !ok || models.FindByStart(intervals, anchor) >= 0 {
		return false, nil
	}

	idx := models.FindContaining(intervals, anchor)
	if idx < 0 {
		return false, nil
	}
	if err := store.SaveAnchor(ctx, intervals[idx].Start); err != nil {
		return false, fmt.Errorf("save anchor: %w", err)
	}
	return true, nil
}
