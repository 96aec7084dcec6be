package repository

import (
	"context"
	"time"

	"github.com/photosync/syncagent/internal/models"
	"github.com/photosync/syncagent/internal/observability"
)

// TracedIntervalStore wraps an IntervalStore with spans and metrics
type TracedIntervalStore struct {
	next    IntervalStore
	kind    string
	metrics *observability.StoreMetrics
}

// NewTracedIntervalStore decorates next. kind labels spans, e.g. "sqlite".
// metrics may be nil.
func NewTracedIntervalStore(next IntervalStore, kind string, metrics *observability.StoreMetrics) *TracedIntervalStore {
	return &TracedIntervalStore{next: next, kind: kind, metrics: metrics}
}

func (s *TracedIntervalStore) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartStoreSpan(ctx, op, s.kind)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if s.metrics != nil {
		s.metrics.RecordOperation(ctx, op, s.kind, time.Since(start), err)
	}
	if err != nil {
		observability.RecordError(span, err)
	} else {
		observability.SetSuccess(span)
	}
	return err
}

func (s *TracedIntervalStore) Load(ctx context.Context) ([]models.TimeInterval, error) {
	var out []models.TimeInterval
	err := s.observe(ctx, "load", func(ctx context.Context) error {
		var err error
		out, err = s.next.Load(ctx)
		return err
	})
	return out, err
}

func (s *TracedIntervalStore) Save(ctx context.Context, intervals []models.TimeInterval) error {
	return s.observe(ctx, "save", func(ctx context.Context) error {
		return s.next.Save(ctx, intervals)
	})
}

func (s *TracedIntervalStore) LoadAnchor(ctx context.Context) (int64, bool, error) {
	var anchor int64
	var ok bool
	err := s.observe(ctx, "load_anchor", func(ctx context.Context) error {
		var err error
		anchor, ok, err = s.next.LoadAnchor(ctx)
		return err
	})
	return anchor, ok, err
}

func (s *TracedIntervalStore) SaveAnchor(ctx context.Context, anchor int64) error {
	return s.observe(ctx, "save_anchor", func(ctx context.Context) error {
		return s.next.SaveAnchor(ctx, anchor)
	})
}

func (s *TracedIntervalStore) ClearAnchor(ctx context.Context) error {
	return s.observe(ctx, "clear_anchor", s.next.ClearAnchor)
}

func (s *TracedIntervalStore) ClearAll(ctx context.Context) error {
	return s.observe(ctx, "clear_all", s.next.ClearAll)
}
