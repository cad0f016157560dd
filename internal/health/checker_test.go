package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func TestCheckHealthyService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChecker(time.Second, &fakePinger{})
	got := c.Check(context.Background(), srv.URL)
	if !got.APIResponsive {
		t.Fatalf("2xx should be responsive: %+v", got)
	}
	if !got.DatabaseConnected {
		t.Fatalf("db ping ok should report connected")
	}
	if got.ResponseTime <= 0 {
		t.Fatalf("response time should be measured")
	}
}

func TestCheckServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewChecker(time.Second, &fakePinger{})
	if got := c.Check(context.Background(), srv.URL); got.APIResponsive {
		t.Fatalf("5xx should be unresponsive: %+v", got)
	}
}

func TestCheckTimeoutIsUnresponsiveNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewChecker(20*time.Millisecond, &fakePinger{})
	got := c.Check(context.Background(), srv.URL)
	if got.APIResponsive {
		t.Fatalf("timeout should degrade to unresponsive")
	}
	if got.Detail == "" {
		t.Fatalf("detail should explain the failure")
	}
}

func TestCheckDatabaseDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChecker(time.Second, &fakePinger{err: errors.New("connection refused")})
	got := c.Check(context.Background(), srv.URL)
	if got.DatabaseConnected {
		t.Fatalf("failed ping should report disconnected")
	}
	if !got.APIResponsive {
		t.Fatalf("db state must not affect the API probe")
	}
}

func TestCheckNoURLConfigured(t *testing.T) {
	c := NewChecker(time.Second, &fakePinger{})
	got := c.Check(context.Background(), "")
	if !got.APIResponsive {
		t.Fatalf("unprobed services are assumed responsive")
	}
}
