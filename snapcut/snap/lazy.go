package snap

import (
	"context"
	"sync"
)

// Lazy builds a Cache on first use and hands out the same one afterwards.
// A failed build is not remembered; the next call tries again.
type Lazy struct {
	mu    sync.Mutex
	build func(ctx context.Context) (*Cache, error)
	cache *Cache
}

func NewLazy(build func(ctx context.Context) (*Cache, error)) *Lazy {
	return &Lazy{build: build}
}

func (l *Lazy) Cache(ctx context.Context) (*Cache, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cache != nil {
		return l.cache, nil
	}
	cache, err := l.build(ctx)
	if err != nil {
		return nil, err
	}
	l.cache = cache
	return cache, nil
}

// Reset drops the memoized cache so the next call rebuilds it.
func (l *Lazy) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = nil
}

func (l *Lazy) Initialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache != nil
}
