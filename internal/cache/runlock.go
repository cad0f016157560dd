package cache

import (
	"context"
	"sync"
	"time"
)

// RunLock is a named single-slot mutex for investigation cycles. It prefers a
// cache SetNX key (so multiple replicas share one lock) and always holds an
// in-process slot as well, so a Noop cache still drops overlapping triggers.
type RunLock struct {
	provider Provider
	ttl      time.Duration

	mu   sync.Mutex
	held map[string]bool
}

// NewRunLock builds a lock manager over the given cache provider.
func NewRunLock(provider Provider, ttl time.Duration) *RunLock {
	if provider == nil {
		provider = NoopProvider{}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RunLock{
		provider: provider,
		ttl:      ttl,
		held:     make(map[string]bool),
	}
}

// TryAcquire attempts to take the named lock without blocking. A false return
// means a cycle for this name is already running and the trigger must be
// dropped, not queued.
func (l *RunLock) TryAcquire(ctx context.Context, name string) bool {
	l.mu.Lock()
	if l.held[name] {
		l.mu.Unlock()
		return false
	}
	l.held[name] = true
	l.mu.Unlock()

	won, err := l.provider.SetNX(ctx, lockKey(name), []byte("1"), l.ttl)
	if err != nil {
		// Cache unreachable: the in-process slot alone guards this replica.
		return true
	}
	if !won {
		l.release(name)
		return false
	}
	return true
}

// Release frees the named lock.
func (l *RunLock) Release(ctx context.Context, name string) {
	_ = l.provider.Del(ctx, lockKey(name))
	l.release(name)
}

func (l *RunLock) release(name string) {
	l.mu.Lock()
	delete(l.held, name)
	l.mu.Unlock()
}

// Busy reports whether the named lock is held by this process.
func (l *RunLock) Busy(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[name]
}

func lockKey(name string) string {
	return "dinewatch:runlock:" + name
}
