package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"

	"github.com/dinestack/dinewatch/internal/models"
)

// Notifier posts investigation updates to a chat channel. Notification
// failures are logged and swallowed so they never interrupt an
// investigation.
type Notifier interface {
	AlertReceived(ctx context.Context, alert models.AlertContext) *MessageRef
	InvestigationResult(ctx context.Context, ref *MessageRef, alert models.AlertContext, result models.ValidationResult, ticketURL string)
	RemediationOutcome(ctx context.Context, ref *MessageRef, alert models.AlertContext, remediation models.RemediationResult)
}

// MessageRef identifies a posted message so follow-ups can thread onto it.
type MessageRef struct {
	Channel   string
	Timestamp string
}

// SlackNotifier sends alert and investigation updates to a Slack channel,
// threading follow-ups under the initial alert message.
type SlackNotifier struct {
	client  *slack.Client
	channel string
	logger  *slog.Logger
}

func NewSlackNotifier(token, channel string, logger *slog.Logger) *SlackNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackNotifier{
		client:  slack.New(token),
		channel: channel,
		logger:  logger,
	}
}

func (n *SlackNotifier) AlertReceived(ctx context.Context, alert models.AlertContext) *MessageRef {
	text := fmt.Sprintf("%s *%s* on `%s`: investigating %d errors in the last %s",
		severityEmoji(alert.Severity), alert.AlertName, alert.AffectedService,
		alert.Metrics.ErrorCount, alert.Metrics.TimeWindow)

	channel, ts, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn("failed to post alert notification", slog.Any("error", err))
		return nil
	}
	return &MessageRef{Channel: channel, Timestamp: ts}
}

func (n *SlackNotifier) InvestigationResult(ctx context.Context, ref *MessageRef, alert models.AlertContext, result models.ValidationResult, ticketURL string) {
	var b strings.Builder
	if result.IsRealIssue {
		fmt.Fprintf(&b, ":mag: Confirmed real issue on `%s` (confidence %d%%): %s",
			alert.AffectedService, result.Confidence, result.Reason)
		if ticketURL != "" {
			fmt.Fprintf(&b, "\nTracked in %s", ticketURL)
		}
	} else {
		fmt.Fprintf(&b, ":white_check_mark: Dismissed alert on `%s` (confidence %d%%): %s",
			alert.AffectedService, result.Confidence, result.Reason)
	}
	n.post(ctx, ref, b.String())
}

func (n *SlackNotifier) RemediationOutcome(ctx context.Context, ref *MessageRef, alert models.AlertContext, remediation models.RemediationResult) {
	var text string
	if remediation.Success {
		text = fmt.Sprintf(":wrench: Auto-remediation `%s` succeeded on `%s`, no ticket needed",
			remediation.Action, alert.AffectedService)
	} else {
		text = fmt.Sprintf(":warning: Auto-remediation `%s` failed on `%s`, escalating",
			remediation.Action, alert.AffectedService)
	}
	n.post(ctx, ref, text)
}

func (n *SlackNotifier) post(ctx context.Context, ref *MessageRef, text string) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	channel := n.channel
	if ref != nil {
		channel = ref.Channel
		opts = append(opts, slack.MsgOptionTS(ref.Timestamp))
	}
	if _, _, err := n.client.PostMessageContext(ctx, channel, opts...); err != nil {
		n.logger.Warn("failed to post notification", slog.Any("error", err))
	}
}

func severityEmoji(severity models.AlertSeverity) string {
	switch severity {
	case models.AlertCritical:
		return ":rotating_light:"
	case models.AlertWarning:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

// NoopNotifier is used when Slack is not configured.
type NoopNotifier struct{}

func (NoopNotifier) AlertReceived(ctx context.Context, alert models.AlertContext) *MessageRef {
	return nil
}

func (NoopNotifier) InvestigationResult(ctx context.Context, ref *MessageRef, alert models.AlertContext, result models.ValidationResult, ticketURL string) {
}

func (NoopNotifier) RemediationOutcome(ctx context.Context, ref *MessageRef, alert models.AlertContext, remediation models.RemediationResult) {
}
