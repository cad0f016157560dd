package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the dinewatch service.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Loki        LokiConfig        `yaml:"loki"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Detection   DetectionConfig   `yaml:"detection"`
	Validation  ValidationConfig  `yaml:"validation"`
	Remediation RemediationConfig `yaml:"remediation"`
	Store       StoreConfig       `yaml:"store"`
	Cache       CacheConfig       `yaml:"cache"`
	Queue       QueueConfig       `yaml:"queue"`
	Slack       SlackConfig       `yaml:"slack"`
	GitHub      GitHubConfig      `yaml:"github"`
	KnownIssues KnownIssuesConfig `yaml:"knownIssues"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LokiConfig configures the log source polled during investigation cycles.
type LokiConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	QueryPath string        `yaml:"queryPath"`
	Timeout   time.Duration `yaml:"timeout"`
	Limit     int           `yaml:"limit"`
}

// ServiceTarget names one monitored service and its probes.
type ServiceTarget struct {
	Name      string `yaml:"name"`
	HealthURL string `yaml:"healthURL"`
	LogQuery  string `yaml:"logQuery"`
	Container string `yaml:"container"`
}

// MonitorConfig drives the periodic investigation scheduler.
type MonitorConfig struct {
	Interval      time.Duration   `yaml:"interval"`
	HealthTimeout time.Duration   `yaml:"healthTimeout"`
	Services      []ServiceTarget `yaml:"services"`
}

// Lookup resolves a monitored service's probes by name. Unknown services
// return empty strings and are investigated with defaults.
func (m MonitorConfig) Lookup(service string) (healthURL, logQuery string) {
	for _, svc := range m.Services {
		if svc.Name == service {
			return svc.HealthURL, svc.LogQuery
		}
	}
	return "", ""
}

// Container resolves the Docker container backing a monitored service,
// defaulting to the service name itself.
func (m MonitorConfig) Container(service string) string {
	for _, svc := range m.Services {
		if svc.Name == service && svc.Container != "" {
			return svc.Container
		}
	}
	return service
}

// DetectionConfig tunes the error detector.
type DetectionConfig struct {
	GapThreshold time.Duration `yaml:"gapThreshold"`
}

// ValidationConfig tunes the real-vs-noise decision table.
type ValidationConfig struct {
	MinErrorFrequency    int           `yaml:"minErrorFrequency"`
	MinConfidence        int           `yaml:"minConfidence"`
	SingleErrorWithTrace bool          `yaml:"singleErrorWithTrace"`
	ResponseTimeLimit    time.Duration `yaml:"responseTimeLimit"`
}

// RemediationConfig controls scripted fix attempts.
type RemediationConfig struct {
	Enabled     bool          `yaml:"enabled"`
	RestartWait time.Duration `yaml:"restartWait"`
	Actuator    string        `yaml:"actuator"` // "http" or "docker"
	RestartURL  string        `yaml:"restartURL"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StoreConfig selects the persistence backend. An empty DSN selects the
// in-memory store.
type StoreConfig struct {
	PostgresDSN string        `yaml:"postgresDSN"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CacheConfig controls the Valkey-backed run locks and dedup cache.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	TLS          bool          `yaml:"tls"`
	LockTTL      time.Duration `yaml:"lockTTL"`
	DedupTTL     time.Duration `yaml:"dedupTTL"`
}

// QueueConfig configures the NATS-backed investigation job queue.
type QueueConfig struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	Subject      string        `yaml:"subject"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

// SlackConfig configures chat notifications.
type SlackConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// GitHubConfig configures the issue tracker.
type GitHubConfig struct {
	Enabled bool     `yaml:"enabled"`
	Token   string   `yaml:"token"`
	Owner   string   `yaml:"owner"`
	Repo    string   `yaml:"repo"`
	Labels  []string `yaml:"labels"`
}

// KnownIssuesConfig points at the YAML catalog of pre-seeded issue patterns.
type KnownIssuesConfig struct {
	Path string `yaml:"path"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DINEWATCH_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8090",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Loki: LokiConfig{
			QueryPath: "/loki/api/v1/query_range",
			Timeout:   30 * time.Second,
			Limit:     1000,
		},
		Monitor: MonitorConfig{
			Interval:      5 * time.Minute,
			HealthTimeout: 10 * time.Second,
		},
		Detection: DetectionConfig{GapThreshold: 5 * time.Minute},
		Validation: ValidationConfig{
			MinErrorFrequency:    3,
			MinConfidence:        60,
			SingleErrorWithTrace: true,
			ResponseTimeLimit:    3 * time.Second,
		},
		Remediation: RemediationConfig{
			Enabled:     true,
			RestartWait: 30 * time.Second,
			Actuator:    "http",
			Timeout:     30 * time.Second,
		},
		Store: StoreConfig{Timeout: 5 * time.Second},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			LockTTL:      10 * time.Minute,
			DedupTTL:     15 * time.Minute,
		},
		Queue: QueueConfig{
			Enabled:      false,
			Subject:      "dinewatch.investigations",
			MaxAttempts:  3,
			RetryBackoff: 5 * time.Second,
		},
		GitHub:      GitHubConfig{Labels: []string{"auto-detected"}},
		KnownIssues: KnownIssuesConfig{Path: "configs/known-issues.yaml"},
	}
}

func (c *Config) validate() error {
	if c.Slack.Enabled && c.Slack.Token == "" {
		return errors.New("slack notifications enabled but slack.token is empty")
	}
	if c.Slack.Enabled && c.Slack.Channel == "" {
		return errors.New("slack notifications enabled but slack.channel is empty")
	}
	if c.GitHub.Enabled && (c.GitHub.Token == "" || c.GitHub.Owner == "" || c.GitHub.Repo == "") {
		return errors.New("github ticketing enabled but token/owner/repo incomplete")
	}
	if c.Queue.Enabled && c.Queue.URL == "" {
		return errors.New("queue enabled but queue.url is empty")
	}
	if c.Remediation.Actuator != "http" && c.Remediation.Actuator != "docker" {
		return fmt.Errorf("unknown remediation actuator %q", c.Remediation.Actuator)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DINEWATCH_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("DINEWATCH_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("DINEWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DINEWATCH_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("DINEWATCH_LOKI_URL"); v != "" {
		cfg.Loki.BaseURL = v
	}
	if v := os.Getenv("DINEWATCH_POSTGRES_DSN"); v != "" {
		cfg.Store.PostgresDSN = v
	}
	if v := os.Getenv("DINEWATCH_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
		cfg.Cache.Enabled = true
	}
	if v := os.Getenv("DINEWATCH_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("DINEWATCH_NATS_URL"); v != "" {
		cfg.Queue.URL = v
		cfg.Queue.Enabled = true
	}
	if v := os.Getenv("DINEWATCH_SLACK_TOKEN"); v != "" {
		cfg.Slack.Token = v
		cfg.Slack.Enabled = true
	}
	if v := os.Getenv("DINEWATCH_SLACK_CHANNEL"); v != "" {
		cfg.Slack.Channel = v
	}
	if v := os.Getenv("DINEWATCH_GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
		cfg.GitHub.Enabled = true
	}
	if v := os.Getenv("DINEWATCH_GITHUB_OWNER"); v != "" {
		cfg.GitHub.Owner = v
	}
	if v := os.Getenv("DINEWATCH_GITHUB_REPO"); v != "" {
		cfg.GitHub.Repo = v
	}
	if v := os.Getenv("DINEWATCH_KNOWN_ISSUES_PATH"); v != "" {
		cfg.KnownIssues.Path = v
	}
	if v := os.Getenv("DINEWATCH_MONITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.Interval = d
		}
	}
	if v := os.Getenv("DINEWATCH_GAP_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detection.GapThreshold = d
		}
	}
	if v := os.Getenv("DINEWATCH_MIN_ERROR_FREQUENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Validation.MinErrorFrequency = n
		}
	}
	if v := os.Getenv("DINEWATCH_MIN_CONFIDENCE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Validation.MinConfidence = n
		}
	}
	if v := os.Getenv("DINEWATCH_REMEDIATION_ENABLED"); v != "" {
		cfg.Remediation.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("DINEWATCH_RESTART_URL"); v != "" {
		cfg.Remediation.RestartURL = v
	}
	if v := os.Getenv("DINEWATCH_RESTART_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remediation.RestartWait = d
		}
	}
}
