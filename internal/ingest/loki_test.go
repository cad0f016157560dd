package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dinestack/dinewatch/internal/models"
)

func TestFetchLogsParsesStreams(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var gotQuery, gotDirection string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotDirection = r.URL.Query().Get("direction")

		// Two streams, timestamps deliberately interleaved.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"data": {
				"resultType": "streams",
				"result": [
					{
						"stream": {"service": "backend-api", "level": "error", "deployment_id": "deploy-7"},
						"values": [
							["` + strconv.FormatInt(base.Add(2*time.Second).UnixNano(), 10) + `", "Error: boom"],
							["` + strconv.FormatInt(base.UnixNano(), 10) + `", "Error: first"]
						]
					},
					{
						"stream": {"app": "backend-api", "detected_level": "info"},
						"values": [
							["` + strconv.FormatInt(base.Add(time.Second).UnixNano(), 10) + `", "request ok"]
						]
					}
				]
			}
		}`))
	}))
	defer srv.Close()

	client := NewLokiClient(srv.URL, "", 5*time.Second, 100)
	entries, err := client.FetchLogs(context.Background(), `{service="backend-api"}`, "backend-api", base.Add(-time.Minute), base.Add(time.Minute))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotQuery != `{service="backend-api"}` {
		t.Fatalf("query not forwarded: %q", gotQuery)
	}
	if gotDirection != "forward" {
		t.Fatalf("expected forward direction, got %q", gotDirection)
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	// Sorted across streams by timestamp.
	if !entries[0].Timestamp.Equal(base) || entries[0].Message != "Error: first" {
		t.Fatalf("entries not sorted: %+v", entries[0])
	}
	if entries[0].Severity != models.LogError || entries[0].DeploymentID != "deploy-7" {
		t.Fatalf("stream labels lost: %+v", entries[0])
	}
	if entries[1].ServiceName != "backend-api" || entries[1].Severity != models.LogInfo {
		t.Fatalf("app/detected_level fallback broken: %+v", entries[1])
	}
}

func TestFetchLogsDefaultQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"streams","result":[]}}`))
	}))
	defer srv.Close()

	client := NewLokiClient(srv.URL, "", 5*time.Second, 100)
	if _, err := client.FetchLogs(context.Background(), "", "scraper", time.Now().Add(-time.Hour), time.Now()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotQuery != `{service="scraper"}` {
		t.Fatalf("default query not built: %q", gotQuery)
	}
}

func TestFetchLogsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewLokiClient(srv.URL, "", 5*time.Second, 100)
	if _, err := client.FetchLogs(context.Background(), "{}", "backend-api", time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestFetchLogsUnconfigured(t *testing.T) {
	client := NewLokiClient("", "", time.Second, 10)
	if _, err := client.FetchLogs(context.Background(), "", "svc", time.Now(), time.Now()); err == nil {
		t.Fatalf("expected error when base URL missing")
	}
}
