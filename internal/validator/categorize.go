package validator

import (
	"strings"
	"time"

	"github.com/dinestack/dinewatch/internal/models"
)

// keywordRule maps substring matches over the combined error text to a label.
// Ordered; first match wins.
type keywordRule[T any] struct {
	keywords []string
	label    T
}

var typeRules = []keywordRule[models.IssueType]{
	{[]string{"timeout", "slow", "latency", "response time"}, models.IssueTypePerformance},
	{[]string{"jwt", "token", "auth", "unauthorized", "permission"}, models.IssueTypeSecurity},
	{[]string{"postgres", "database", "prisma", "migration", "5432"}, models.IssueTypeDatabase},
	{[]string{"deploy", "container", "restart", "oom"}, models.IssueTypeInfra},
}

var componentRules = []keywordRule[models.Component]{
	{[]string{"postgres", "prisma", "database", "5432"}, models.ComponentDatabase},
	{[]string{"redis", "cache", "6379"}, models.ComponentCache},
	{[]string{"jwt", "auth", "login", "session"}, models.ComponentAuth},
	{[]string{"scraper", "michelin", "puppeteer"}, models.ComponentScraper},
	{[]string{"react", "frontend", "hydration"}, models.ComponentFrontend},
}

// Categorize labels an issue for routing. A matched known issue contributes
// its severity/category/component verbatim; otherwise severity derives from
// health and frequency thresholds and type/component from keyword search over
// the error text and affected endpoints.
func (v *Validator) Categorize(
	alert models.AlertContext,
	analysis models.LogAnalysis,
	health models.HealthCheck,
	known *models.KnownIssue,
) models.IssueCategorization {
	if known != nil {
		return models.IssueCategorization{
			Severity:  known.Severity,
			Type:      issueTypeFromCategory(known.Category),
			Component: models.Component(known.Component),
		}
	}

	text := strings.ToLower(combinedErrorText(alert, analysis))

	return models.IssueCategorization{
		Severity:  deriveSeverity(analysis.ErrorCount, health),
		Type:      firstMatch(text, typeRules, models.IssueTypeBug),
		Component: firstMatch(text, componentRules, models.ComponentBackendAPI),
	}
}

func deriveSeverity(errorCount int, health models.HealthCheck) models.ErrorSeverity {
	switch {
	case !health.APIResponsive:
		return models.SeverityCritical
	case errorCount > 50:
		return models.SeverityCritical
	case errorCount > 10 || health.ResponseTime > 5*time.Second:
		return models.SeverityHigh
	case errorCount > 3 || health.ResponseTime > 3*time.Second:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func combinedErrorText(alert models.AlertContext, analysis models.LogAnalysis) string {
	parts := []string{alert.AlertName}
	for _, e := range analysis.Errors {
		parts = append(parts, e.ErrorMessage, e.Category)
	}
	parts = append(parts, alert.Metrics.AffectedEndpoints...)
	return strings.Join(parts, " ")
}

func firstMatch[T any](text string, rules []keywordRule[T], fallback T) T {
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.label
			}
		}
	}
	return fallback
}

func issueTypeFromCategory(category string) models.IssueType {
	switch category {
	case "database":
		return models.IssueTypeDatabase
	case "auth":
		return models.IssueTypeSecurity
	case "timeout", "performance":
		return models.IssueTypePerformance
	case "memory", "infrastructure":
		return models.IssueTypeInfra
	default:
		return models.IssueTypeBug
	}
}
