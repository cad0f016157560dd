package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testCatalog = `issues:
  - id: postgres-connection-refused
    title: Postgres connection refused
    pattern: '(?i)ECONNREFUSED.*5432'
    severity: critical
    category: database
    component: database
    autoRemediable: true
    remediationAction: reconnect-db
  - id: jwt-token-expired
    title: JWT Token Expired
    pattern: '(?i)jwt.+expired'
    severity: low
    category: auth
    component: auth-service
    autoRemediable: false
`

type fakeCounter struct {
	incremented []string
}

func (f *fakeCounter) IncrementKnownIssue(_ context.Context, issueID string) error {
	f.incremented = append(f.incremented, issueID)
	return nil
}

func writeCatalog(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known-issues.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadEmptyPath(t *testing.T) {
	c, err := Load("", nil, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil catalog for empty path")
	}
	// A nil catalog never matches and reports size zero.
	if c.Match(context.Background(), "anything") != nil {
		t.Fatalf("nil catalog must not match")
	}
	if c.Size() != 0 {
		t.Fatalf("nil catalog size should be 0")
	}
}

func TestLoadMissingFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil, nil)
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil catalog for missing file")
	}
}

func TestLoadBadPattern(t *testing.T) {
	path := writeCatalog(t, "issues:\n  - id: broken\n    pattern: '('\n")
	if _, err := Load(path, nil, nil); err == nil {
		t.Fatalf("expected error for invalid pattern")
	}
}

func TestMatchFirstWins(t *testing.T) {
	counter := &fakeCounter{}
	c, err := Load(writeCatalog(t, testCatalog), counter, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Size() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Size())
	}

	got := c.Match(context.Background(), "Error: connect ECONNREFUSED 127.0.0.1:5432")
	if got == nil || got.ID != "postgres-connection-refused" {
		t.Fatalf("expected postgres entry, got %+v", got)
	}
	if !got.AutoRemediable || got.RemediationAction != "reconnect-db" {
		t.Fatalf("remediation metadata lost: %+v", got)
	}

	if c.Match(context.Background(), "nothing suspicious here") != nil {
		t.Fatalf("unrelated text must not match")
	}

	if len(counter.incremented) != 1 || counter.incremented[0] != "postgres-connection-refused" {
		t.Fatalf("store counter not updated: %v", counter.incremented)
	}
}

func TestMatchCountsOccurrences(t *testing.T) {
	c, err := Load(writeCatalog(t, testCatalog), nil, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	first := c.Match(context.Background(), "JsonWebTokenError: jwt expired at auth middleware")
	second := c.Match(context.Background(), "jwt   expired again")
	if first == nil || second == nil {
		t.Fatalf("expected both to match")
	}
	if first.OccurrenceCount != 1 || second.OccurrenceCount != 2 {
		t.Fatalf("hits should accumulate: %d then %d", first.OccurrenceCount, second.OccurrenceCount)
	}
}
