// Package dbclient is the HTTP access layer for the remote SQL services.
// Each source exposes a constrained SELECT endpoint plus table and schema
// introspection; this client adds query safety, retries with an escalating
// timeout budget, and a process-wide TTL result cache.
package dbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kdt-ai/neo-backend/internal/model"
)

const (
	// DefaultLimit is applied when the caller does not specify a row cap.
	DefaultLimit = 100
	// SafetyLimit is the hard ceiling injected into statements without a LIMIT.
	SafetyLimit = 500

	firstAttemptTimeout = 90 * time.Second
	retryTimeout        = 120 * time.Second
	maxQueryAttempts    = 2
	introspectTimeout   = 10 * time.Second
)

var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\b`)

// Client talks to the per-source SQL services.
type Client struct {
	urls   map[model.Source]string
	secret string
	http   *http.Client
	cache  *queryCache

	// Per-attempt budgets; tests shrink these.
	firstTimeout time.Duration
	retryBudget  time.Duration
}

// New creates a Client for the given source base URLs. The shared secret is
// forwarded on every /api/sql call when non-empty.
func New(serviceURLs map[model.Source]string, secret string) *Client {
	return &Client{
		urls:   serviceURLs,
		secret: secret,
		// Per-call deadlines are set via context; the client itself has none
		// so the escalating retry budget stays in charge.
		http:         &http.Client{},
		cache:        newQueryCache(queryCacheTTL),
		firstTimeout: firstAttemptTimeout,
		retryBudget:  retryTimeout,
	}
}

// SourceURL returns the configured base URL for a source.
func (c *Client) SourceURL(source model.Source) (string, bool) {
	u, ok := c.urls[source]
	return u, ok
}

// Sources returns the sources this client is configured for.
func (c *Client) Sources() []model.Source {
	out := make([]model.Source, 0, len(c.urls))
	for _, s := range model.AllSources() {
		if _, ok := c.urls[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Execute runs a SELECT query against a source with the default limit and
// caching enabled.
func (c *Client) Execute(ctx context.Context, source model.Source, query string) (*model.QueryResult, error) {
	return c.ExecuteWithOptions(ctx, source, query, DefaultLimit, true)
}

// ExecuteWithOptions runs a SELECT query against a source.
// Only SELECT statements are accepted; statements without a LIMIT clause get
// one appended, capped at SafetyLimit. Results are cached for five minutes
// keyed by the normalized statement.
func (c *Client) ExecuteWithOptions(ctx context.Context, source model.Source, query string, limit int, useCache bool) (*model.QueryResult, error) {
	base, ok := c.urls[source]
	if !ok {
		return nil, newUnknownSourceError(source)
	}

	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return nil, newRejectedError(source, "only SELECT queries are allowed")
	}

	if !limitPattern.MatchString(trimmed) {
		if limit <= 0 || limit > SafetyLimit {
			limit = SafetyLimit
		}
		trimmed = fmt.Sprintf("%s LIMIT %d", strings.TrimRight(trimmed, ";"), limit)
	}

	key := cacheKey(source, trimmed)
	if useCache {
		if cached, ok := c.cache.get(key); ok {
			return cached, nil
		}
	}

	result, err := c.executeWithRetry(ctx, source, base, trimmed)
	if err != nil {
		return nil, err
	}

	if useCache {
		c.cache.set(key, result)
	}
	return result, nil
}

// executeWithRetry posts the query, retrying once on timeout with a longer
// budget. HTTP 4xx responses are never retried.
func (c *Client) executeWithRetry(ctx context.Context, source model.Source, base, query string) (*model.QueryResult, error) {
	var result *model.QueryResult
	attempt := 0

	backoff := retry.WithMaxRetries(maxQueryAttempts-1, retry.NewConstant(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		timeout := c.firstTimeout
		if attempt > 1 {
			timeout = c.retryBudget
		}

		res, err := c.postQuery(ctx, source, base, query, timeout)
		if err != nil {
			if ctx.Err() == nil && isTimeout(err) {
				slog.Warn("[DB] query timed out, retrying",
					"source", source,
					"attempt", attempt,
					"next_timeout_s", int(c.retryBudget.Seconds()),
				)
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		var qe *QueryError
		if errors.As(err, &qe) {
			return nil, qe
		}
		if isTimeout(err) {
			return nil, newTimeoutError(source, maxQueryAttempts)
		}
		return nil, newUpstreamError(source, err)
	}
	return result, nil
}

type sqlRequest struct {
	Query  string `json:"query"`
	Secret string `json:"secret,omitempty"`
}

func (c *Client) postQuery(ctx context.Context, source model.Source, base, query string, timeout time.Duration) (*model.QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(sqlRequest{Query: query, Secret: c.secret})
	if err != nil {
		return nil, fmt.Errorf("dbclient.Execute marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/sql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dbclient.Execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, newRejectedError(source, extractDetail(resp.Body, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newUpstreamError(source, fmt.Errorf("status %d", resp.StatusCode))
	}

	var result model.QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, newUpstreamError(source, fmt.Errorf("decode: %w", err))
	}
	return &result, nil
}

// ListTables returns the table names exposed by a source.
func (c *Client) ListTables(ctx context.Context, source model.Source) ([]model.TableInfo, error) {
	base, ok := c.urls[source]
	if !ok {
		return nil, newUnknownSourceError(source)
	}

	var payload struct {
		Tables []string `json:"tables"`
	}
	if err := c.getJSON(ctx, base+"/api/sql/tables", &payload); err != nil {
		return nil, newUpstreamError(source, err)
	}

	tables := make([]model.TableInfo, len(payload.Tables))
	for i, name := range payload.Tables {
		tables[i] = model.TableInfo{Name: name}
	}
	return tables, nil
}

// Describe returns the column schema for a table on a source.
func (c *Client) Describe(ctx context.Context, source model.Source, table string) ([]model.ColumnInfo, error) {
	base, ok := c.urls[source]
	if !ok {
		return nil, newUnknownSourceError(source)
	}

	var payload struct {
		Columns []model.ColumnInfo `json:"columns"`
	}
	if err := c.getJSON(ctx, base+"/api/sql/schema/"+table, &payload); err != nil {
		return nil, newUpstreamError(source, err)
	}
	return payload.Columns, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, introspectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ClearCache drops all cached query results.
func (c *Client) ClearCache() {
	c.cache.clear()
}

// CacheStats reports query cache occupancy.
func (c *Client) CacheStats() CacheStats {
	return c.cache.stats()
}

// extractDetail pulls the "detail" field from a 4xx JSON body, falling back
// to a generic message.
func extractDetail(body io.Reader, status int) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err == nil && len(raw) > 0 {
		var payload struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Detail != "" {
			return payload.Detail
		}
	}
	return fmt.Sprintf("upstream rejected query (status %d)", status)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
