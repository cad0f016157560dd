package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dinestack/dinewatch/internal/models"
)

// Pinger verifies database connectivity with a trivial query.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker probes a service's health endpoint and the shared database.
type Checker struct {
	httpClient *http.Client
	db         Pinger
}

// NewChecker builds a Checker; db may be nil when no database probe is wanted.
func NewChecker(timeout time.Duration, db Pinger) *Checker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Checker{
		httpClient: &http.Client{Timeout: timeout},
		db:         db,
	}
}

// Check probes healthURL and the database. Any 2xx within the timeout counts
// as responsive; a transport error or timeout counts as unresponsive rather
// than propagating. An empty healthURL is treated as responsive so services
// without a probe never trip rule 1 by accident.
func (c *Checker) Check(ctx context.Context, healthURL string) models.HealthCheck {
	result := models.HealthCheck{
		APIResponsive:     true,
		DatabaseConnected: true,
		CheckedAt:         time.Now().UTC(),
	}

	if healthURL != "" {
		start := time.Now()
		responsive, detail := c.probe(ctx, healthURL)
		result.ResponseTime = time.Since(start)
		result.APIResponsive = responsive
		result.Detail = detail
	}

	if c.db != nil {
		if err := c.db.Ping(ctx); err != nil {
			result.DatabaseConnected = false
			if result.Detail != "" {
				result.Detail += "; "
			}
			result.Detail += fmt.Sprintf("database ping: %v", err)
		}
	}

	return result
}

func (c *Checker) probe(ctx context.Context, healthURL string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false, fmt.Sprintf("bad health URL: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Sprintf("health probe failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, ""
	}
	return false, fmt.Sprintf("health probe returned %s", resp.Status)
}
