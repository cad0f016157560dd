package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dinestack/dinewatch/internal/models"
	"github.com/dinestack/dinewatch/internal/queue"
	"github.com/dinestack/dinewatch/internal/store"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (f *fakeQueue) Publish(_ context.Context, job queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) Subscribe(context.Context, queue.Handler) error { return nil }
func (f *fakeQueue) Close()                                         {}

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type fakeTrigger struct {
	busy    bool
	started int
}

func (f *fakeTrigger) CheckAll(context.Context) { f.started++ }
func (f *fakeTrigger) Busy() bool               { return f.busy }

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory, *fakeQueue, *fakeTrigger) {
	t.Helper()
	mem := store.NewMemory()
	q := &fakeQueue{}
	trig := &fakeTrigger{}
	h := NewHandlers(mem, q, trig, nil, nil)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, mem, q, trig
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestReceiveAlertsAccepted(t *testing.T) {
	srv, mem, q, _ := newTestServer(t)

	payload := `{"alerts":[{"alert_name":"elevated errors","severity":"critical","affected_service":"backend-api","metrics":{"error_count":12,"time_window_seconds":300}}]}`
	resp, err := http.Post(srv.URL+"/alerts/grafana", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post alert: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var body struct {
		Accepted int `json:"accepted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Accepted != 1 {
		t.Fatalf("expected 1 accepted, got %d", body.Accepted)
	}

	// The alert record exists even before the async publish lands.
	alerts, _ := mem.ListAlerts(context.Background(), 10)
	if len(alerts) != 1 || alerts[0].Source != "grafana" {
		t.Fatalf("alert not recorded: %+v", alerts)
	}
	if alerts[0].Status != models.AlertStatusQueued {
		t.Fatalf("expected queued, got %s", alerts[0].Status)
	}

	// Publish happens in a goroutine; wait briefly.
	deadline := time.Now().Add(time.Second)
	for q.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if q.count() != 1 {
		t.Fatalf("expected 1 queued job, got %d", q.count())
	}
}

func TestReceiveAlertsRejectsEmptyAndMalformed(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	for _, payload := range []string{`{"alerts":[]}`, `{not json`} {
		resp, err := http.Post(srv.URL+"/alerts/grafana", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %q: expected 400, got %d", payload, resp.StatusCode)
		}
	}
}

func TestAlertHistoryAndByID(t *testing.T) {
	srv, mem, _, _ := newTestServer(t)

	id, _ := mem.InsertAlert(context.Background(), models.AlertRecord{
		Source:     "webhook",
		AlertName:  "first",
		Status:     models.AlertStatusTicketed,
		ReceivedAt: time.Now(),
	})

	resp, err := http.Get(srv.URL + "/alerts/history?limit=5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var history struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if history.Count != 1 {
		t.Fatalf("expected 1 alert, got %d", history.Count)
	}

	one, err := http.Get(srv.URL + "/alerts/" + strconv.FormatInt(id, 10))
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	defer one.Body.Close()
	if one.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", one.StatusCode)
	}

	missing, _ := http.Get(srv.URL + "/alerts/9999")
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing alert, got %d", missing.StatusCode)
	}

	bad, _ := http.Get(srv.URL + "/alerts/not-a-number")
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", bad.StatusCode)
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	resp, _ := http.Get(srv.URL + "/alerts/history?limit=0")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, mem, _, _ := newTestServer(t)
	_, _ = mem.InsertAlert(context.Background(), models.AlertRecord{AlertName: "a"})

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["store"]; !ok {
		t.Fatalf("stats payload missing store section: %v", body)
	}
}

func TestTriggerCheck(t *testing.T) {
	srv, _, _, trig := newTestServer(t)

	resp, err := http.Post(srv.URL+"/trigger-check", "application/json", nil)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	trig.busy = true
	busy, _ := http.Post(srv.URL+"/trigger-check", "application/json", nil)
	busy.Body.Close()
	if busy.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 while busy, got %d", busy.StatusCode)
	}
}
