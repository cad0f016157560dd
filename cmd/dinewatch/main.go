package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dinestack/dinewatch/internal/api"
	"github.com/dinestack/dinewatch/internal/cache"
	"github.com/dinestack/dinewatch/internal/catalog"
	"github.com/dinestack/dinewatch/internal/config"
	"github.com/dinestack/dinewatch/internal/detector"
	"github.com/dinestack/dinewatch/internal/health"
	"github.com/dinestack/dinewatch/internal/ingest"
	"github.com/dinestack/dinewatch/internal/investigator"
	"github.com/dinestack/dinewatch/internal/metrics"
	"github.com/dinestack/dinewatch/internal/notify"
	"github.com/dinestack/dinewatch/internal/queue"
	"github.com/dinestack/dinewatch/internal/remediation"
	"github.com/dinestack/dinewatch/internal/scheduler"
	"github.com/dinestack/dinewatch/internal/store"
	"github.com/dinestack/dinewatch/internal/ticket"
	"github.com/dinestack/dinewatch/internal/utils"
	"github.com/dinestack/dinewatch/internal/validator"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	// Optional; local development keeps tokens in .env.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting dinewatch", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, using in-process locks only", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}
	runLocks := cache.NewRunLock(cacheProvider, cfg.Cache.LockTTL)
	seenSignatures := cache.NewDedup(cacheProvider, cfg.Cache.DedupTTL)

	var st store.Store
	if cfg.Store.PostgresDSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.Store.PostgresDSN, logger)
		if err != nil {
			logger.Error("failed to connect to postgres", slog.Any("error", err))
			os.Exit(1)
		}
		st = pg
	} else {
		logger.Warn("no postgres DSN configured, using in-memory store")
		st = store.NewMemory()
	}
	defer st.Close()

	issueCatalog, err := catalog.Load(cfg.KnownIssues.Path, st, logger)
	if err != nil {
		logger.Error("failed to load known-issue catalog", slog.Any("error", err))
		os.Exit(1)
	}
	if issueCatalog != nil {
		logger.Info("known-issue catalog loaded", slog.Int("entries", issueCatalog.Size()))
	}

	lokiClient := ingest.NewLokiClient(cfg.Loki.BaseURL, cfg.Loki.QueryPath, cfg.Loki.Timeout, cfg.Loki.Limit)
	healthChecker := health.NewChecker(cfg.Monitor.HealthTimeout, st)
	errorDetector := detector.New(cfg.Detection.GapThreshold)
	alertValidator := validator.New(cfg.Validation)

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Slack.Enabled {
		notifier = notify.NewSlackNotifier(cfg.Slack.Token, cfg.Slack.Channel, logger)
	}

	var ticketer ticket.Ticketer
	if cfg.GitHub.Enabled {
		gh, err := ticket.NewGitHubTicketer(ctx, cfg.GitHub.Token, cfg.GitHub.Owner, cfg.GitHub.Repo, logger)
		if err != nil {
			logger.Error("failed to configure issue tracker", slog.Any("error", err))
			os.Exit(1)
		}
		ticketer = gh
	}

	var remedy investigator.Remediator
	if cfg.Remediation.Enabled {
		actuator, closeActuator, err := buildActuator(cfg.Remediation, cfg.Monitor)
		if err != nil {
			logger.Error("failed to configure remediation actuator", slog.Any("error", err))
			os.Exit(1)
		}
		if closeActuator != nil {
			defer closeActuator()
		}
		healthURL := func(service string) string {
			url, _ := cfg.Monitor.Lookup(service)
			return url
		}
		remedy = remediation.NewDispatcher(st, logger,
			remediation.NewRestartAction(actuator, healthChecker, healthURL, cfg.Remediation.RestartWait, logger),
			remediation.NewReconnectDBAction(st, 2*time.Second),
			remediation.NewReconnectRedisAction(),
			remediation.NewCacheClearAction(),
		)
	}

	latency := utils.NewLatencyTracker(512)
	inv := investigator.New(investigator.Options{
		Logs:      lokiClient,
		Health:    healthChecker,
		Detector:  errorDetector,
		Catalog:   issueCatalog,
		Validator: alertValidator,
		Store:     st,
		Remedy:    remedy,
		Notifier:  notifier,
		Ticketer:  ticketer,
		Services:  cfg.Monitor,
		Latency:   latency,
		Logger:    logger,
	})

	var jobQueue queue.Queue
	if cfg.Queue.Enabled {
		nq, err := queue.NewNATSQueue(cfg.Queue.URL, cfg.Queue.Subject, cfg.Queue.MaxAttempts, cfg.Queue.RetryBackoff, logger)
		if err != nil {
			logger.Error("failed to connect to queue", slog.Any("error", err))
			os.Exit(1)
		}
		jobQueue = nq
	} else {
		jobQueue = queue.NewInlineQueue(cfg.Queue.MaxAttempts, cfg.Queue.RetryBackoff, logger)
	}
	defer jobQueue.Close()

	if err := jobQueue.Subscribe(ctx, inv.Investigate); err != nil {
		logger.Error("failed to subscribe to queue", slog.Any("error", err))
		os.Exit(1)
	}

	sched := scheduler.New(cfg.Monitor, lokiClient, errorDetector, st, jobQueue, runLocks, seenSignatures, logger)
	go sched.Run(ctx)

	handlers := api.NewHandlers(st, jobQueue, sched, latency, logger)
	server := api.NewServer(cfg.Server, handlers, logger)

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	server.Shutdown(context.Background())

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("dinewatch stopped")
}

func buildActuator(cfg config.RemediationConfig, monitor config.MonitorConfig) (remediation.Actuator, func() error, error) {
	switch cfg.Actuator {
	case "docker":
		actuator, err := remediation.NewDockerActuator(monitor.Container)
		if err != nil {
			return nil, nil, err
		}
		return actuator, actuator.Close, nil
	default:
		return remediation.NewHTTPActuator(cfg.RestartURL, os.Getenv("DINEWATCH_RESTART_TOKEN"), cfg.Timeout), nil, nil
	}
}
