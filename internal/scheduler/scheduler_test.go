package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dinestack/dinewatch/internal/cache"
	"github.com/dinestack/dinewatch/internal/config"
	"github.com/dinestack/dinewatch/internal/detector"
	"github.com/dinestack/dinewatch/internal/models"
	"github.com/dinestack/dinewatch/internal/queue"
	"github.com/dinestack/dinewatch/internal/store"
)

type fakeLogs struct {
	mu      sync.Mutex
	entries []models.LogEntry
	err     error
	calls   int
}

func (f *fakeLogs) FetchLogs(context.Context, string, string, time.Time, time.Time) ([]models.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.entries, f.err
}

type captureQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (c *captureQueue) Publish(_ context.Context, job queue.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
	return nil
}

func (c *captureQueue) Subscribe(context.Context, queue.Handler) error { return nil }
func (c *captureQueue) Close()                                         {}

func monitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		Interval:      time.Minute,
		HealthTimeout: time.Second,
		Services: []config.ServiceTarget{
			{Name: "backend-api", LogQuery: `{service="backend-api"}`},
		},
	}
}

func newScheduler(logs *fakeLogs, q queue.Queue, mem *store.Memory) *Scheduler {
	locks := cache.NewRunLock(cache.NoopProvider{}, time.Minute)
	return New(monitorConfig(), logs, detector.New(0), mem, q, locks, nil, nil)
}

func TestCheckAllQuietLogsAdvancesCheckpoint(t *testing.T) {
	mem := store.NewMemory()
	q := &captureQueue{}
	s := newScheduler(&fakeLogs{}, q, mem)

	before := time.Now().Add(-time.Second)
	s.CheckAll(context.Background())

	if len(q.jobs) != 0 {
		t.Fatalf("no errors should mean no jobs, got %d", len(q.jobs))
	}
	checkpoint := mem.GetLastCheckTime(context.Background(), "backend-api")
	if checkpoint.Before(before) {
		t.Fatalf("checkpoint should advance, got %v", checkpoint)
	}
}

func TestCheckAllEnqueuesDetectedErrors(t *testing.T) {
	base := time.Now().Add(-5 * time.Minute)
	logs := &fakeLogs{}
	for i := 0; i < 4; i++ {
		msg := "Error: connect ECONNREFUSED 127.0.0.1:5432"
		logs.entries = append(logs.entries, models.LogEntry{
			Timestamp:   base.Add(time.Duration(i) * 30 * time.Second),
			Message:     msg,
			Severity:    models.LogError,
			ServiceName: "backend-api",
			RawLine:     msg,
		})
	}

	mem := store.NewMemory()
	q := &captureQueue{}
	s := newScheduler(logs, q, mem)
	s.CheckAll(context.Background())

	if len(q.jobs) != 1 {
		t.Fatalf("expected 1 job for 1 deduplicated signature, got %d", len(q.jobs))
	}
	job := q.jobs[0]
	if job.Source != SourceScheduler {
		t.Fatalf("expected scheduler source, got %q", job.Source)
	}
	if job.Alert.Severity != models.AlertCritical {
		t.Fatalf("critical detection should raise a critical alert, got %q", job.Alert.Severity)
	}
	if job.Alert.Metrics.ErrorCount != 4 {
		t.Fatalf("expected 4 occurrences, got %d", job.Alert.Metrics.ErrorCount)
	}
	if job.AlertID == 0 {
		t.Fatalf("alert record should be created before enqueueing")
	}

	rec, err := mem.GetAlert(context.Background(), job.AlertID)
	if err != nil {
		t.Fatalf("alert record missing: %v", err)
	}
	if rec.Status != models.AlertStatusQueued {
		t.Fatalf("expected queued, got %s", rec.Status)
	}
}

type memProvider struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (p *memProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
	return nil
}

func (p *memProvider) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.data[key]; ok {
		return false, nil
	}
	p.data[key] = value
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}

func (p *memProvider) Close() error { return nil }

func TestCheckAllDedupesRepeatSignatures(t *testing.T) {
	base := time.Now().Add(-5 * time.Minute)
	logs := &fakeLogs{}
	msg := "Error: connect ECONNREFUSED 127.0.0.1:5432"
	logs.entries = append(logs.entries, models.LogEntry{
		Timestamp:   base,
		Message:     msg,
		Severity:    models.LogError,
		ServiceName: "backend-api",
		RawLine:     msg,
	})

	provider := &memProvider{data: make(map[string][]byte)}
	locks := cache.NewRunLock(provider, time.Minute)
	dedup := cache.NewDedup(provider, time.Minute)
	q := &captureQueue{}
	s := New(monitorConfig(), logs, detector.New(0), store.NewMemory(), q, locks, dedup, nil)

	// The same burst shows up in two consecutive cycles; only the first may
	// queue an investigation.
	s.CheckAll(context.Background())
	s.CheckAll(context.Background())

	if len(q.jobs) != 1 {
		t.Fatalf("repeat signature within the dedup window should queue once, got %d jobs", len(q.jobs))
	}
}

func TestCheckAllFetchErrorKeepsCheckpoint(t *testing.T) {
	mem := store.NewMemory()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	_ = mem.SetCheckpoint(context.Background(), "backend-api", ts)

	s := newScheduler(&fakeLogs{err: errors.New("loki down")}, &captureQueue{}, mem)
	s.CheckAll(context.Background())

	if got := mem.GetLastCheckTime(context.Background(), "backend-api"); !got.Equal(ts) {
		t.Fatalf("failed fetch must not advance the checkpoint, got %v", got)
	}
}

func TestOverlappingCycleDropped(t *testing.T) {
	mem := store.NewMemory()
	locks := cache.NewRunLock(cache.NoopProvider{}, time.Minute)
	logs := &fakeLogs{}
	s := New(monitorConfig(), logs, detector.New(0), mem, &captureQueue{}, locks, nil, nil)

	// Simulate a cycle in flight.
	if !locks.TryAcquire(context.Background(), "check:backend-api") {
		t.Fatalf("setup: lock should be free")
	}
	if !s.Busy() {
		t.Fatalf("scheduler should report busy while a cycle holds the lock")
	}

	s.CheckAll(context.Background())
	if logs.calls != 0 {
		t.Fatalf("overlapping cycle must drop, not run: %d fetches", logs.calls)
	}

	locks.Release(context.Background(), "check:backend-api")
	s.CheckAll(context.Background())
	if logs.calls != 1 {
		t.Fatalf("cycle should run after the lock releases, got %d", logs.calls)
	}
}
