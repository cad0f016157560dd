package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dinestack/dinewatch/internal/models"
)

// Catalog holds the pre-seeded known-issue patterns matched against detected
// error text. Entries are ordered; the first matching pattern wins.
type Catalog struct {
	mu      sync.Mutex
	entries []entry
	counter OccurrenceCounter
	logger  *slog.Logger
}

type entry struct {
	issue   models.KnownIssue
	pattern *regexp.Regexp
	hits    int
}

// OccurrenceCounter persists how often a known issue has matched. May be nil.
type OccurrenceCounter interface {
	IncrementKnownIssue(ctx context.Context, issueID string) error
}

// catalogFile is the YAML root structure.
type catalogFile struct {
	Issues []models.KnownIssue `yaml:"issues"`
}

// Load reads the known-issue pack from path. An empty path or missing file
// yields a nil catalog, which never matches.
func Load(path string, counter OccurrenceCounter, logger *slog.Logger) (*Catalog, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read known issues: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse known issues: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	entries := make([]entry, 0, len(file.Issues))
	for _, issue := range file.Issues {
		re, err := regexp.Compile(issue.Pattern)
		if err != nil {
			return nil, fmt.Errorf("known issue %q: bad pattern: %w", issue.ID, err)
		}
		entries = append(entries, entry{issue: issue, pattern: re})
	}

	return &Catalog{entries: entries, counter: counter, logger: logger}, nil
}

// Match returns the first known issue whose pattern matches the error text,
// or nil. A hit bumps the entry's occurrence counter, in memory and (best
// effort) in the store.
func (c *Catalog) Match(ctx context.Context, errorText string) *models.KnownIssue {
	if c == nil || errorText == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		e := &c.entries[i]
		if !e.pattern.MatchString(errorText) {
			continue
		}
		e.hits++

		if c.counter != nil {
			if err := c.counter.IncrementKnownIssue(ctx, e.issue.ID); err != nil {
				c.logger.Warn("known issue counter update failed",
					slog.String("issue", e.issue.ID), slog.Any("error", err))
			}
		}

		matched := e.issue
		matched.OccurrenceCount = e.hits
		return &matched
	}
	return nil
}

// Size reports the number of loaded catalog entries.
func (c *Catalog) Size() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
