package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dinestack/dinewatch/internal/models"
)

// Job is one queued investigation request. Attempt starts at 1 and is
// incremented on every re-publish after a failure.
type Job struct {
	AlertID int64               `json:"alert_id"`
	Alert   models.AlertContext `json:"alert"`
	Source  string              `json:"source"`
	Attempt int                 `json:"attempt"`
}

// Handler processes one investigation job. A returned error triggers a
// bounded retry.
type Handler func(ctx context.Context, job Job) error

// Queue decouples alert intake from investigation.
type Queue interface {
	Publish(ctx context.Context, job Job) error
	Subscribe(ctx context.Context, handler Handler) error
	Close()
}

// NATSQueue distributes investigation jobs over a NATS subject with a queue
// group, so multiple instances share the work. Failed jobs are re-published
// with exponential backoff until maxAttempts is reached.
type NATSQueue struct {
	conn        *nats.Conn
	sub         *nats.Subscription
	subject     string
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

const queueGroup = "dinewatch-investigators"

func NewNATSQueue(url, subject string, maxAttempts int, backoff time.Duration, logger *slog.Logger) (*NATSQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	logger.Info("connected to NATS", slog.String("url", url), slog.String("subject", subject))
	return &NATSQueue{
		conn:        conn,
		subject:     subject,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger,
	}, nil
}

func (q *NATSQueue) Publish(ctx context.Context, job Job) error {
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.conn.Publish(q.subject, data); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Subscribe registers the handler on the shared queue group. Handler errors
// re-publish the job with an incremented attempt after a backoff that doubles
// per attempt; jobs past maxAttempts are dropped with a log line.
func (q *NATSQueue) Subscribe(ctx context.Context, handler Handler) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			q.logger.Warn("dropping undecodable job", slog.Any("error", err))
			return
		}
		if job.Attempt < 1 {
			job.Attempt = 1
		}

		if err := handler(ctx, job); err != nil {
			q.retry(ctx, job, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", q.subject, err)
	}
	q.sub = sub
	return nil
}

func (q *NATSQueue) retry(ctx context.Context, job Job, cause error) {
	if job.Attempt >= q.maxAttempts {
		q.logger.Error("investigation job exhausted retries",
			slog.String("alert", job.Alert.AlertName),
			slog.String("service", job.Alert.AffectedService),
			slog.Int("attempts", job.Attempt),
			slog.Any("error", cause))
		return
	}

	delay := q.backoff << (job.Attempt - 1)
	job.Attempt++
	q.logger.Warn("investigation failed, retrying",
		slog.String("alert", job.Alert.AlertName),
		slog.Int("attempt", job.Attempt),
		slog.Duration("backoff", delay),
		slog.Any("error", cause))

	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if err := q.Publish(ctx, job); err != nil {
			q.logger.Error("failed to re-publish job", slog.Any("error", err))
		}
	}()
}

func (q *NATSQueue) Close() {
	if q.sub != nil {
		q.sub.Unsubscribe()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}

// InlineQueue runs jobs synchronously on Publish. Used when NATS is not
// configured and in tests; retry semantics match the NATS queue but without
// backoff delays between attempts beyond the configured duration.
type InlineQueue struct {
	handler     Handler
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

func NewInlineQueue(maxAttempts int, backoff time.Duration, logger *slog.Logger) *InlineQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &InlineQueue{maxAttempts: maxAttempts, backoff: backoff, logger: logger}
}

func (q *InlineQueue) Subscribe(ctx context.Context, handler Handler) error {
	q.handler = handler
	return nil
}

func (q *InlineQueue) Publish(ctx context.Context, job Job) error {
	if q.handler == nil {
		return fmt.Errorf("no handler subscribed")
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}

	var err error
	for ; job.Attempt <= q.maxAttempts; job.Attempt++ {
		if err = q.handler(ctx, job); err == nil {
			return nil
		}
		if job.Attempt < q.maxAttempts {
			q.logger.Warn("investigation failed, retrying",
				slog.String("alert", job.Alert.AlertName),
				slog.Int("attempt", job.Attempt+1),
				slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(q.backoff):
			}
		}
	}
	return fmt.Errorf("job exhausted %d attempts: %w", q.maxAttempts, err)
}

func (q *InlineQueue) Close() {}
