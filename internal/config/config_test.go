package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dinewatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":8090" {
		t.Errorf("server address = %q, want :8090", cfg.Server.Address)
	}
	if cfg.Server.MetricsAddress != ":2112" {
		t.Errorf("metrics address = %q, want :2112", cfg.Server.MetricsAddress)
	}
	if cfg.Detection.GapThreshold != 5*time.Minute {
		t.Errorf("gap threshold = %v, want 5m", cfg.Detection.GapThreshold)
	}
	if cfg.Validation.MinErrorFrequency != 3 || cfg.Validation.MinConfidence != 60 {
		t.Errorf("validation defaults = %d/%d, want 3/60", cfg.Validation.MinErrorFrequency, cfg.Validation.MinConfidence)
	}
	if !cfg.Validation.SingleErrorWithTrace {
		t.Error("singleErrorWithTrace should default to true")
	}
	if cfg.Queue.Subject != "dinewatch.investigations" {
		t.Errorf("queue subject = %q", cfg.Queue.Subject)
	}
	if cfg.Queue.Enabled || cfg.Cache.Enabled {
		t.Error("queue and cache should be disabled by default")
	}
	if cfg.Remediation.Actuator != "http" {
		t.Errorf("actuator = %q, want http", cfg.Remediation.Actuator)
	}
	if cfg.KnownIssues.Path != "configs/known-issues.yaml" {
		t.Errorf("known issues path = %q", cfg.KnownIssues.Path)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9999"
loki:
  baseURL: "http://loki:3100"
monitor:
  interval: 1m
  services:
    - name: backend-api
      healthURL: "http://backend:3000/health"
      logQuery: '{app="backend"}'
detection:
  gapThreshold: 2m
queue:
  enabled: true
  url: "nats://localhost:4222"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("server address = %q", cfg.Server.Address)
	}
	if cfg.Loki.BaseURL != "http://loki:3100" {
		t.Errorf("loki baseURL = %q", cfg.Loki.BaseURL)
	}
	if cfg.Monitor.Interval != time.Minute {
		t.Errorf("interval = %v, want 1m", cfg.Monitor.Interval)
	}
	if cfg.Detection.GapThreshold != 2*time.Minute {
		t.Errorf("gap threshold = %v, want 2m", cfg.Detection.GapThreshold)
	}
	// Untouched sections keep their defaults.
	if cfg.Loki.QueryPath != "/loki/api/v1/query_range" {
		t.Errorf("query path lost its default: %q", cfg.Loki.QueryPath)
	}
	if len(cfg.Monitor.Services) != 1 || cfg.Monitor.Services[0].Name != "backend-api" {
		t.Fatalf("services = %+v", cfg.Monitor.Services)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DINEWATCH_SERVER_ADDRESS", ":7070")
	t.Setenv("DINEWATCH_LOKI_URL", "http://override:3100")
	t.Setenv("DINEWATCH_GAP_THRESHOLD", "90s")
	t.Setenv("DINEWATCH_MIN_CONFIDENCE", "75")
	t.Setenv("DINEWATCH_SLACK_TOKEN", "xoxb-test")
	t.Setenv("DINEWATCH_SLACK_CHANNEL", "#ops")
	t.Setenv("DINEWATCH_REMEDIATION_ENABLED", "false")

	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Errorf("server address = %q", cfg.Server.Address)
	}
	if cfg.Loki.BaseURL != "http://override:3100" {
		t.Errorf("loki baseURL = %q", cfg.Loki.BaseURL)
	}
	if cfg.Detection.GapThreshold != 90*time.Second {
		t.Errorf("gap threshold = %v", cfg.Detection.GapThreshold)
	}
	if cfg.Validation.MinConfidence != 75 {
		t.Errorf("min confidence = %d", cfg.Validation.MinConfidence)
	}
	if !cfg.Slack.Enabled || cfg.Slack.Token != "xoxb-test" || cfg.Slack.Channel != "#ops" {
		t.Errorf("slack = %+v", cfg.Slack)
	}
	if cfg.Remediation.Enabled {
		t.Error("remediation should be disabled by env override")
	}
}

func TestEnvOverrideBadDurationIgnored(t *testing.T) {
	t.Setenv("DINEWATCH_GAP_THRESHOLD", "not-a-duration")

	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Detection.GapThreshold != 5*time.Minute {
		t.Errorf("gap threshold = %v, want default 5m", cfg.Detection.GapThreshold)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "slack without token",
			yaml: "slack:\n  enabled: true\n  channel: \"#ops\"\n",
			want: "slack.token",
		},
		{
			name: "slack without channel",
			yaml: "slack:\n  enabled: true\n  token: xoxb\n",
			want: "slack.channel",
		},
		{
			name: "github incomplete",
			yaml: "github:\n  enabled: true\n  token: ghp\n  owner: dinestack\n",
			want: "github",
		},
		{
			name: "queue without url",
			yaml: "queue:\n  enabled: true\n",
			want: "queue.url",
		},
		{
			name: "unknown actuator",
			yaml: "remediation:\n  actuator: kubectl\n",
			want: "actuator",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestMonitorLookup(t *testing.T) {
	m := MonitorConfig{Services: []ServiceTarget{
		{Name: "backend-api", HealthURL: "http://backend:3000/health", LogQuery: `{app="backend"}`},
		{Name: "scraper", HealthURL: "http://scraper:4000/health"},
	}}

	health, query := m.Lookup("backend-api")
	if health != "http://backend:3000/health" || query != `{app="backend"}` {
		t.Errorf("Lookup(backend-api) = %q, %q", health, query)
	}
	if health, query = m.Lookup("unknown"); health != "" || query != "" {
		t.Errorf("Lookup(unknown) = %q, %q, want empty", health, query)
	}
}

func TestMonitorContainer(t *testing.T) {
	m := MonitorConfig{Services: []ServiceTarget{
		{Name: "backend-api", Container: "dinestack-backend-1"},
		{Name: "scraper"},
	}}

	if got := m.Container("backend-api"); got != "dinestack-backend-1" {
		t.Errorf("Container(backend-api) = %q", got)
	}
	// Unset container and unknown service both fall back to the service name.
	if got := m.Container("scraper"); got != "scraper" {
		t.Errorf("Container(scraper) = %q", got)
	}
	if got := m.Container("unknown"); got != "unknown" {
		t.Errorf("Container(unknown) = %q", got)
	}
}
