package scheduling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedKeys(t *testing.T) {
	got := sortedKeys([]string{"b", "a", "", "b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	locker := NewLocalLocker(0)
	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "vet", "room")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, locker.locks, "entries should be dropped once released")
}

func TestLocalLocker_DisjointKeysDoNotBlock(t *testing.T) {
	locker := NewLocalLocker(50 * time.Millisecond)
	unlockA, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.Lock(context.Background(), "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_TimesOutAsResourceBusy(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)
	unlock, err := locker.Lock(context.Background(), "a", "b")
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(context.Background(), "b", "c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResourceBusy))

	// the failed attempt must not leave "c" held
	unlockC, err := locker.Lock(context.Background(), "c")
	require.NoError(t, err)
	unlockC()
}

func TestLocalLocker_UnlockIsIdempotent(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)
	unlock, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	again()
}
