package recurrence

import (
	"context"
	"sync"
)

// SeriesLocker serializes advancement of a single series. The returned
// unlock func must be called exactly once.
type SeriesLocker interface {
	LockSeries(ctx context.Context, seriesID uint) (unlock func(), err error)
}

// KeyedMutex is an in-process SeriesLocker. The zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[uint]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func (k *KeyedMutex) LockSeries(ctx context.Context, seriesID uint) (func(), error) {
	k.mu.Lock()
	if k.slots == nil {
		k.slots = make(map[uint]*slot)
	}
	s, ok := k.slots[seriesID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[seriesID] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(seriesID, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.release(seriesID, s)
		})
	}, nil
}

func (k *KeyedMutex) release(seriesID uint, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, seriesID)
	}
}
