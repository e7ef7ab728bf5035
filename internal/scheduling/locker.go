package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Locker serialises check-and-write sequences over the same resources.
// Lock blocks until every key is held or ctx ends; keys are always taken
// in sorted order so two callers never deadlock on each other.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// sortedKeys returns the distinct non-empty keys in ascending order.
func sortedKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type localLock struct {
	sem  chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex. It is only correct when a single
// replica writes to the store.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
	wait  time.Duration
}

// NewLocalLocker creates a locker that gives up after wait when the caller's
// context has no earlier deadline. A zero wait means wait for ctx only.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock), wait: wait}
}

func (l *LocalLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = sortedKeys(keys)
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	held := make([]string, 0, len(keys))
	for _, key := range keys {
		entry := l.acquireEntry(key)
		select {
		case entry.sem <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			l.releaseEntry(key, false)
			l.release(held)
			return nil, fmt.Errorf("%w: %s: %v", ErrResourceBusy, key, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(held) })
	}, nil
}

func (l *LocalLocker) acquireEntry(key string) *localLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &localLock{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

// releaseEntry drops one reference and, when held, frees the semaphore.
func (l *LocalLocker) releaseEntry(key string, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		return
	}
	if held {
		<-entry.sem
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *LocalLocker) release(held []string) {
	for i := len(held) - 1; i >= 0; i-- {
		l.releaseEntry(held[i], true)
	}
}
