package detector

import (
	"regexp"
	"strings"
	"time"

	"github.com/dinestack/dinewatch/internal/models"
	"github.com/dinestack/dinewatch/internal/utils"
)

// DefaultGapThreshold separates temporally adjacent error runs when the
// caller does not configure one.
const DefaultGapThreshold = 5 * time.Minute

const maxMessageLength = 200

// errorKeywords flag error-like lines whose severity field is not "error".
var errorKeywords = []string{"error", "failed", "exception", "fatal", "crash"}

var (
	mainErrorRe  = regexp.MustCompile(`Error:\s*(.+)`)
	exceptionRe  = regexp.MustCompile(`(\w+Exception|Error):\s*(.+)`)
	stackFrameRe = regexp.MustCompile(`^\s*at\s+`)
	indentedRe   = regexp.MustCompile(`^\s`)
)

// Detector turns ordered log entries into deduplicated detected errors.
type Detector struct {
	gapThreshold time.Duration
}

// New constructs a Detector with the given grouping gap threshold; zero or
// negative values select the default.
func New(gapThreshold time.Duration) *Detector {
	if gapThreshold <= 0 {
		gapThreshold = DefaultGapThreshold
	}
	return &Detector{gapThreshold: gapThreshold}
}

// Detect scans entries (which the caller must supply in timestamp order),
// groups error-like runs, and produces one DetectedError per run. Empty input
// yields empty output.
func (d *Detector) Detect(entries []models.LogEntry) []models.DetectedError {
	flagged := filterErrorLike(entries)
	if len(flagged) == 0 {
		return nil
	}

	var detected []models.DetectedError
	for _, group := range d.groupByGap(flagged) {
		detected = append(detected, analyzeGroup(group))
	}
	return detected
}

// GapThreshold reports the configured grouping threshold.
func (d *Detector) GapThreshold() time.Duration {
	return d.gapThreshold
}

func filterErrorLike(entries []models.LogEntry) []models.LogEntry {
	flagged := make([]models.LogEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Severity == models.LogError || containsErrorKeyword(entry.Message) {
			flagged = append(flagged, entry)
		}
	}
	return flagged
}

func containsErrorKeyword(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// groupByGap splits the filtered run into groups in a single left-to-right
// pass: a gap over the threshold between adjacent entries starts a new group.
// No sorting happens here.
func (d *Detector) groupByGap(entries []models.LogEntry) [][]models.LogEntry {
	var groups [][]models.LogEntry
	var current []models.LogEntry

	for i, entry := range entries {
		if i > 0 && entry.Timestamp.Sub(entries[i-1].Timestamp) > d.gapThreshold {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, entry)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func analyzeGroup(group []models.LogEntry) models.DetectedError {
	var sb strings.Builder
	for _, entry := range group {
		sb.WriteString(entry.Message)
		sb.WriteByte('\n')
	}
	combined := sb.String()

	category, severity := classify(combined)
	message := extractMainMessage(group)

	rawLines := make([]string, 0, len(group))
	for _, entry := range group {
		rawLines = append(rawLines, entry.RawLine)
	}

	logLines := rawLines
	if len(logLines) > models.MaxErrorLogLines {
		logLines = logLines[:models.MaxErrorLogLines]
	}

	first := group[0]
	return models.DetectedError{
		Signature:       GenerateSignature(message, category),
		ServiceName:     first.ServiceName,
		ErrorMessage:    message,
		Severity:        severity,
		Category:        category,
		LogLines:        append([]string(nil), logLines...),
		StackTrace:      extractStackTrace(rawLines),
		FirstSeen:       first.Timestamp,
		LastSeen:        group[len(group)-1].Timestamp,
		OccurrenceCount: len(group),
		DeploymentID:    first.DeploymentID,
	}
}

// extractMainMessage picks the human-readable headline for a group: the first
// line carrying an Error:/SomethingException: marker, else the first entry's
// message, both capped at 200 characters.
func extractMainMessage(group []models.LogEntry) string {
	for _, entry := range group {
		for _, line := range strings.Split(entry.Message, "\n") {
			if m := mainErrorRe.FindStringSubmatch(line); m != nil {
				return utils.Truncate(strings.TrimSpace(m[1]), maxMessageLength)
			}
			if m := exceptionRe.FindStringSubmatch(line); m != nil {
				return utils.Truncate(strings.TrimSpace(m[2]), maxMessageLength)
			}
		}
	}
	return utils.Truncate(group[0].Message, maxMessageLength)
}

// extractStackTrace captures a contiguous stack trace from raw lines. A line
// matching a stack frame or containing "Error:" opens capture; indented lines
// and further frames continue it; anything else closes it. Groups with no
// trace fall back to their first 10 raw lines.
func extractStackTrace(rawLines []string) string {
	var captured []string
	capturing := false

	for _, line := range rawLines {
		switch {
		case stackFrameRe.MatchString(line) || strings.Contains(line, "Error:"):
			capturing = true
			captured = append(captured, line)
		case capturing && indentedRe.MatchString(line):
			captured = append(captured, line)
		case capturing:
			capturing = false
		}
	}

	if len(captured) == 0 {
		limit := len(rawLines)
		if limit > 10 {
			limit = 10
		}
		captured = rawLines[:limit]
	}
	return strings.Join(captured, "\n")
}
