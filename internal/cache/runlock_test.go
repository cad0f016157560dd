package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mapProvider is an in-memory Provider for lock tests.
type mapProvider struct {
	mu     sync.Mutex
	data   map[string][]byte
	failed bool
}

func newMapProvider() *mapProvider {
	return &mapProvider{data: make(map[string][]byte)}
}

func (p *mapProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (p *mapProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
	return nil
}

func (p *mapProvider) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed {
		return false, errors.New("cache down")
	}
	if _, ok := p.data[key]; ok {
		return false, nil
	}
	p.data[key] = value
	return true, nil
}

func (p *mapProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}

func (p *mapProvider) Close() error { return nil }

func TestRunLockAcquireRelease(t *testing.T) {
	lock := NewRunLock(newMapProvider(), time.Minute)
	ctx := context.Background()

	if !lock.TryAcquire(ctx, "check:backend-api") {
		t.Fatalf("first acquire should win")
	}
	if lock.TryAcquire(ctx, "check:backend-api") {
		t.Fatalf("second acquire must drop, not queue")
	}
	if !lock.Busy("check:backend-api") {
		t.Fatalf("lock should report busy")
	}
	// Different names are independent.
	if !lock.TryAcquire(ctx, "check:scraper") {
		t.Fatalf("other names should be free")
	}

	lock.Release(ctx, "check:backend-api")
	if lock.Busy("check:backend-api") {
		t.Fatalf("released lock should not be busy")
	}
	if !lock.TryAcquire(ctx, "check:backend-api") {
		t.Fatalf("acquire after release should win")
	}
}

func TestRunLockSharedAcrossManagers(t *testing.T) {
	provider := newMapProvider()
	a := NewRunLock(provider, time.Minute)
	b := NewRunLock(provider, time.Minute)
	ctx := context.Background()

	if !a.TryAcquire(ctx, "check:backend-api") {
		t.Fatalf("first replica should win")
	}
	if b.TryAcquire(ctx, "check:backend-api") {
		t.Fatalf("second replica must lose the SetNX race")
	}

	a.Release(ctx, "check:backend-api")
	if !b.TryAcquire(ctx, "check:backend-api") {
		t.Fatalf("released lock should be acquirable by the other replica")
	}
}

func TestRunLockCacheFailureDegradesToLocal(t *testing.T) {
	provider := newMapProvider()
	provider.failed = true
	lock := NewRunLock(provider, time.Minute)
	ctx := context.Background()

	if !lock.TryAcquire(ctx, "check:backend-api") {
		t.Fatalf("cache failure should fall back to the in-process slot")
	}
	if lock.TryAcquire(ctx, "check:backend-api") {
		t.Fatalf("in-process slot must still dedupe")
	}
}

func TestNoopProviderLocks(t *testing.T) {
	lock := NewRunLock(NoopProvider{}, time.Minute)
	ctx := context.Background()

	if !lock.TryAcquire(ctx, "check:x") {
		t.Fatalf("noop-backed lock should acquire")
	}
	if lock.TryAcquire(ctx, "check:x") {
		t.Fatalf("noop-backed lock should still dedupe in-process")
	}
}
