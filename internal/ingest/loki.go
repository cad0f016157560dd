package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dinestack/dinewatch/internal/models"
	"github.com/dinestack/dinewatch/internal/utils"
)

// LokiClient fetches raw log lines from a Loki-compatible query_range API.
type LokiClient struct {
	baseURL    string
	queryPath  string
	limit      int
	httpClient *http.Client
}

// NewLokiClient constructs a client targeting the configured Loki instance.
func NewLokiClient(baseURL, queryPath string, timeout time.Duration, limit int) *LokiClient {
	if queryPath == "" {
		queryPath = "/loki/api/v1/query_range"
	}
	if limit <= 0 {
		limit = 1000
	}
	return &LokiClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		queryPath: queryPath,
		limit:     limit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type lokiResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// FetchLogs runs the LogQL query over [start, end] and returns entries in
// timestamp order, which the detector requires.
func (c *LokiClient) FetchLogs(ctx context.Context, query, service string, start, end time.Time) ([]models.LogEntry, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("loki client not configured")
	}
	if query == "" {
		query = fmt.Sprintf(`{service=%q}`, service)
	}

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse loki base URL: %w", err)
	}
	endpoint.Path = path.Join(endpoint.Path, c.queryPath)

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.FormatInt(start.UnixNano(), 10))
	params.Set("end", strconv.FormatInt(end.UnixNano(), 10))
	params.Set("limit", strconv.Itoa(c.limit))
	params.Set("direction", "forward")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("loki query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loki returned %s", resp.Status)
	}

	var decoded lokiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode loki response: %w", err)
	}

	var entries []models.LogEntry
	for _, stream := range decoded.Data.Result {
		svc := firstNonEmpty(stream.Stream["service"], stream.Stream["app"], service)
		deployment := stream.Stream["deployment_id"]
		severity := logSeverity(stream.Stream["level"], stream.Stream["detected_level"])

		for _, value := range stream.Values {
			ts, err := utils.ParseUnixNano(value[0])
			if err != nil {
				continue
			}
			entries = append(entries, models.LogEntry{
				Timestamp:    ts,
				Message:      value[1],
				Severity:     severity,
				ServiceName:  svc,
				DeploymentID: deployment,
				RawLine:      value[1],
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func logSeverity(levels ...string) models.LogSeverity {
	for _, level := range levels {
		switch strings.ToLower(level) {
		case "error", "err", "fatal":
			return models.LogError
		case "warn", "warning":
			return models.LogWarn
		case "info", "debug", "trace":
			return models.LogInfo
		}
	}
	return models.LogInfo
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
