package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/dinestack/dinewatch/internal/metrics"
	"github.com/dinestack/dinewatch/internal/models"
)

// Ticket is a created or updated tracker issue.
type Ticket struct {
	Number int
	URL    string
}

// Ticketer files tracker issues for confirmed problems and appends
// occurrence comments to already-filed ones.
type Ticketer interface {
	CreateIssue(ctx context.Context, title, body string, labels []string) (*Ticket, error)
	AddComment(ctx context.Context, number int, body string) error
}

// GitHubTicketer files issues in a GitHub repository.
type GitHubTicketer struct {
	client *github.Client
	owner  string
	repo   string
	logger *slog.Logger
}

func NewGitHubTicketer(ctx context.Context, token, owner, repo string, logger *slog.Logger) (*GitHubTicketer, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("github owner and repo are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &GitHubTicketer{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
		logger: logger,
	}, nil
}

func (t *GitHubTicketer) CreateIssue(ctx context.Context, title, body string, labels []string) (*Ticket, error) {
	req := &github.IssueRequest{
		Title:  github.String(title),
		Body:   github.String(body),
		Labels: &labels,
	}
	issue, _, err := t.client.Issues.Create(ctx, t.owner, t.repo, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	metrics.CountTicket("created")
	t.logger.Info("created tracker issue",
		slog.Int("number", issue.GetNumber()), slog.String("title", title))
	return &Ticket{Number: issue.GetNumber(), URL: issue.GetHTMLURL()}, nil
}

func (t *GitHubTicketer) AddComment(ctx context.Context, number int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	_, _, err := t.client.Issues.CreateComment(ctx, t.owner, t.repo, number, comment)
	if err != nil {
		return fmt.Errorf("failed to comment on issue #%d: %w", number, err)
	}
	metrics.CountTicket("commented")
	return nil
}

// IssueTitle builds the canonical ticket title for a detected error.
func IssueTitle(cat models.IssueCategorization, service, message string) string {
	msg := message
	if len(msg) > 80 {
		msg = msg[:80]
	}
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(cat.Severity)), service, msg)
}

// IssueBody builds the ticket body from investigation evidence.
func IssueBody(alert models.AlertContext, topErr *models.DetectedError, cat models.IssueCategorization, validation models.ValidationResult, remediation *models.RemediationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Alert\n\n")
	fmt.Fprintf(&b, "- **Alert:** %s\n", alert.AlertName)
	fmt.Fprintf(&b, "- **Service:** %s\n", alert.AffectedService)
	fmt.Fprintf(&b, "- **Received:** %s\n", alert.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- **Type:** %s, **Component:** %s, **Severity:** %s\n",
		cat.Type, cat.Component, cat.Severity)
	fmt.Fprintf(&b, "- **Confidence:** %d%% (%s)\n", validation.Confidence, validation.Reason)

	if topErr != nil {
		fmt.Fprintf(&b, "\n## Top error\n\n")
		fmt.Fprintf(&b, "`%s` seen %d times\n\n", topErr.Signature, topErr.OccurrenceCount)
		fmt.Fprintf(&b, "```\n%s\n```\n", strings.Join(topErr.LogLines, "\n"))
		if topErr.StackTrace != "" {
			fmt.Fprintf(&b, "\n<details><summary>Stack trace</summary>\n\n```\n%s\n```\n</details>\n",
				topErr.StackTrace)
		}
	}

	if remediation != nil && remediation.Attempted {
		fmt.Fprintf(&b, "\n## Remediation\n\n")
		fmt.Fprintf(&b, "Attempted `%s`, success: %v\n\n```\n%s\n```\n",
			remediation.Action, remediation.Success, strings.Join(remediation.Logs, "\n"))
	}

	return b.String()
}

// OccurrenceComment builds the recurrence comment for an existing ticket.
func OccurrenceComment(occurrences int, alert models.AlertContext) string {
	return fmt.Sprintf("Recurred at %s on `%s`, %d occurrences total.",
		alert.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"),
		alert.AffectedService, occurrences)
}

// Labels derives issue labels from the categorization.
func Labels(cat models.IssueCategorization) []string {
	return []string{
		"auto-detected",
		string(cat.Type),
		string(cat.Component),
		"severity:" + string(cat.Severity),
	}
}
