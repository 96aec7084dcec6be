package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalLock(t *testing.T) {
	t.Run("try acquire fails while held", func(t *testing.T) {
		lock := NewIntervalLock()

		require.True(t, lock.TryAcquire())
		assert.True(t, lock.Held())
		assert.False(t, lock.TryAcquire())

		lock.Release()
		assert.False(t, lock.Held())
		assert.True(t, lock.TryAcquire())
		lock.Release()
	})

	t.Run("acquire waits for release", func(t *testing.T) {
		lock := NewIntervalLock()
		require.True(t, lock.TryAcquire())

		acquired := make(chan error, 1)
		go func() {
			acquired <- lock.Acquire(context.Background())
		}()

		select {
		case <-acquired:
			t.Fatal("acquired a held lock")
		case <-time.After(20 * time.Millisecond):
		}

		lock.Release()
		require.NoError(t, <-acquired)
		lock.Release()
	})

	t.Run("acquire gives up when the context ends", func(t *testing.T) {
		lock := NewIntervalLock()
		require.True(t, lock.TryAcquire())
		defer lock.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, lock.Acquire(ctx), context.DeadlineExceeded)
	})

	t.Run("release of an unheld lock panics", func(t *testing.T) {
		assert.Panics(t, func() { NewIntervalLock().Release() })
	})
}
