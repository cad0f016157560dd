package models

// ValidationResult is the validator's verdict on one alert. Derived per
// investigation and never persisted as-is; the ticketing step consumes it.
type ValidationResult struct {
	IsRealIssue              bool
	Confidence               int
	Reason                   string
	ShouldCreateIssue        bool
	ShouldAttemptRemediation bool
	ShouldUpdateExisting     bool
	KnownIssue               *KnownIssue
}

// IssueType classifies the kind of work a ticket represents.
type IssueType string

const (
	IssueTypeBug         IssueType = "bug"
	IssueTypePerformance IssueType = "performance"
	IssueTypeSecurity    IssueType = "security"
	IssueTypeDatabase    IssueType = "database"
	IssueTypeInfra       IssueType = "infrastructure"
)

// Component names the part of the platform an issue belongs to.
type Component string

const (
	ComponentBackendAPI Component = "backend-api"
	ComponentDatabase   Component = "database"
	ComponentCache      Component = "cache"
	ComponentAuth       Component = "auth-service"
	ComponentFrontend   Component = "frontend"
	ComponentScraper    Component = "scraper"
)

// IssueCategorization labels an issue for routing and triage.
type IssueCategorization struct {
	Severity  ErrorSeverity
	Type      IssueType
	Component Component
}
