package detector

import (
	"regexp"

	"github.com/dinestack/dinewatch/internal/models"
)

// classificationRule tags a group of error lines with a category and severity.
// Rules are data, not code: the detector evaluates them top to bottom and the
// first match wins.
type classificationRule struct {
	pattern  *regexp.Regexp
	severity models.ErrorSeverity
	category string
}

var classificationRules = []classificationRule{
	{regexp.MustCompile(`(?i)ECONNREFUSED.*5432|connection.+refused.+postgres|database.+connection|prisma.+error`), models.SeverityCritical, "database"},
	{regexp.MustCompile(`(?i)out of memory|heap limit|ENOMEM|OOMKilled`), models.SeverityCritical, "memory"},
	{regexp.MustCompile(`(?i)ECONNREFUSED.*6379|redis`), models.SeverityHigh, "cache"},
	{regexp.MustCompile(`(?i)ETIMEDOUT|timed? ?out|deadline exceeded`), models.SeverityHigh, "timeout"},
	{regexp.MustCompile(`(?i)jwt|token expired|unauthorized|forbidden`), models.SeverityMedium, "auth"},
	{regexp.MustCompile(`(?i)validation|invalid (input|payload)|bad request`), models.SeverityLow, "validation"},
	// Catch-all: any line mentioning "error" that no specific rule claimed.
	{regexp.MustCompile(`(?i)error`), models.SeverityLow, "general"},
}

// classify returns the category and severity for a group's concatenated
// messages; groups no rule matches fall back to general/medium.
func classify(text string) (category string, severity models.ErrorSeverity) {
	for _, rule := range classificationRules {
		if rule.pattern.MatchString(text) {
			return rule.category, rule.severity
		}
	}
	return "general", models.SeverityMedium
}
