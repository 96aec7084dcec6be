package services

import (
	"context"
	"errors"
)

// ErrIntervalStoreBusy is returned when a periodic tick finds the interval
// store held by another writer.
var ErrIntervalStoreBusy = errors.New("interval store is busy")

// IntervalLock serializes every read-modify-persist run against the
// interval store. The full scan and the periodic path share one lock, so a
// save from one can never overwrite an update of the other.
type IntervalLock struct {
	ch chan struct{}
}

// NewIntervalLock creates an unlocked lock
func NewIntervalLock() *IntervalLock {
	return &IntervalLock{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is held or ctx is done
func (l *IntervalLock) Acquire(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the lock only if it is free
func (l *IntervalLock) TryAcquire() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock. Releasing an unheld lock panics.
func (l *IntervalLock) Release() {
	select {
	case <-l.ch:
	default:
		panic("services: release of unlocked IntervalLock")
	}
}

// Held reports whether some writer currently holds the lock
func (l *IntervalLock) Held() bool {
	return len(l.ch) == 1
}
