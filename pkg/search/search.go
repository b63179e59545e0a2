// Package search implements the Search Store Adapter (C2): one index per
// run behind an alias, created with a fixed mapping/settings document,
// streamed via raw `_bulk` HTTP requests, promoted atomically, with stale
// indexes cleaned up afterward. It talks directly to an
// Elasticsearch-compatible HTTP API — no client SDK, since the wire
// contract is pinned by spec.md §4.4 down to the JSON body.
package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cuemby/turbosync/pkg/health"
	"github.com/cuemby/turbosync/pkg/log"
)

// Client is a thin HTTP client for the configured search node.
type Client struct {
	baseURL        string
	username       string
	password       string
	indexPrefix    string
	keepOldIndexes int
	chunkLines     int
	bulkConcurrent int
	httpClient     *http.Client
}

// Options configures a Client.
type Options struct {
	Node           string
	Username       string
	Password       string
	IndexPrefix    string
	KeepOldIndexes int
	ChunkLines     int // action+doc pairs per _bulk POST, default 30000
	BulkConcurrent int
	Timeout        time.Duration
}

// New creates a Client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 300 * time.Second // per-chunk HTTP timeout, spec.md §5
	}
	chunkLines := opts.ChunkLines
	if chunkLines == 0 {
		chunkLines = 30000
	}
	return &Client{
		baseURL:        strings.TrimSuffix(opts.Node, "/"),
		username:       opts.Username,
		password:       opts.Password,
		indexPrefix:    opts.IndexPrefix,
		keepOldIndexes: opts.KeepOldIndexes,
		chunkLines:     chunkLines,
		bulkConcurrent: opts.BulkConcurrent,
		httpClient:     &http.Client{Timeout: timeout},
	}
}

// Ping checks search-store reachability via a lightweight cluster-health
// call, reusing pkg/health's generic HTTP checker rather than hand-rolling
// a second status-code check. The pipeline engine treats a failure as
// non-fatal: the run proceeds against the primary store alone and counts
// 0 indexed.
func (c *Client) Ping(ctx context.Context) error {
	checker := health.NewHTTPChecker(c.baseURL + "/_cluster/health")
	if c.username != "" {
		checker = checker.WithHeader("Authorization", basicAuthHeader(c.username, c.password))
	}
	result := checker.Check(ctx)
	if !result.Healthy {
		return fmt.Errorf("search: ping: %s", result.Message)
	}
	return nil
}

func basicAuthHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// runIndexName computes "<alias>_YYYYMMDD_HHmmss" for now.
func runIndexName(alias string, now time.Time) string {
	return fmt.Sprintf("%s_%s", alias, now.Format("20060102_150405"))
}

// PrepareRun creates this run's timestamped index with the fixed
// load-time mapping/settings and returns its name.
func (c *Client) PrepareRun(ctx context.Context, alias string) (string, error) {
	idx := runIndexName(alias, time.Now())
	body := loadTimeIndexBody()

	if err := c.do(ctx, http.MethodPut, "/"+idx, body, nil); err != nil {
		return "", fmt.Errorf("search: prepare run: %w", err)
	}
	return idx, nil
}

// IngestShard streams a search-shard bulk file to the given index,
// chunking at chunkLines action+doc pairs, up to 4 chunk POSTs from this
// file in flight at once (the caller is responsible for holding its own
// BulkConcurrent-wide semaphore across files).
func (c *Client) IngestShard(ctx context.Context, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("search: open shard: %w", err)
	}
	defer f.Close()

	const maxInFlight = 4
	sem := make(chan struct{}, maxInFlight)
	results := make(chan int64, 64)
	errCh := make(chan error, 64)
	var inFlight int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 8*1024*1024)

	var chunk bytes.Buffer
	pairLines := 0
	maxLinesPerChunk := c.chunkLines * 2

	flush := func() {
		if chunk.Len() == 0 {
			return
		}
		body := make([]byte, chunk.Len())
		copy(body, chunk.Bytes())
		chunk.Reset()
		pairLines = 0

		sem <- struct{}{}
		inFlight++
		go func(payload []byte) {
			defer func() { <-sem }()
			n, err := c.postBulk(ctx, payload)
			if err != nil {
				errCh <- err
				return
			}
			results <- n
		}(body)
	}

	for scanner.Scan() {
		chunk.Write(scanner.Bytes())
		chunk.WriteByte('\n')
		pairLines++
		if pairLines >= maxLinesPerChunk {
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("search: scan shard: %w", err)
	}
	flush()

	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}
	close(results)
	close(errCh)

	var indexed int64
	for n := range results {
		indexed += n
	}
	firstLogged := false
	for err := range errCh {
		if !firstLogged {
			log.WithComponent("search").Warn().Err(err).Msg("bulk chunk failed")
			firstLogged = true
		}
	}
	return indexed, nil
}

// postBulk POSTs one _bulk chunk and counts items with no error. Per
// spec.md §4.4/§6, the bulk endpoint is the one call in this client that
// takes an ndjson body; every other request is plain JSON.
func (c *Client) postBulk(ctx context.Context, payload []byte) (int64, error) {
	var result bulkResponse
	if err := c.doWithContentType(ctx, http.MethodPost, "/_bulk", "application/x-ndjson", payload, &result); err != nil {
		return 0, err
	}

	var indexed int64
	for _, item := range result.Items {
		action := item.Index
		if action.Error == nil {
			indexed++
		}
	}
	return indexed, nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			Error json.RawMessage `json:"error,omitempty"`
		} `json:"index"`
	} `json:"items"`
}

// Promote restores normal runtime settings on runIndex, then atomically
// repoints alias to it, removing it from whatever index (or, if the alias
// name is currently a concrete legacy index, deleting that index first).
func (c *Client) Promote(ctx context.Context, alias, runIndex string) error {
	if err := c.do(ctx, http.MethodPost, "/"+runIndex+"/_refresh", nil, nil); err != nil {
		return fmt.Errorf("search: refresh: %w", err)
	}

	if err := c.do(ctx, http.MethodPut, "/"+runIndex+"/_settings", promoteSettingsBody(), nil); err != nil {
		return fmt.Errorf("search: restore settings: %w", err)
	}

	if err := c.deleteIfConcreteIndex(ctx, alias); err != nil {
		return err
	}

	actions := map[string]any{
		"actions": []map[string]any{
			{"remove": map[string]any{"index": "*", "alias": alias}},
			{"add": map[string]any{"index": runIndex, "alias": alias}},
		},
	}
	body, _ := json.Marshal(actions)
	if err := c.do(ctx, http.MethodPost, "/_aliases", body, nil); err != nil {
		return fmt.Errorf("search: alias swap: %w", err)
	}
	return nil
}

// deleteIfConcreteIndex handles the legacy case where alias is itself a
// concrete index rather than an alias; the plain alias-swap call would
// otherwise fail.
func (c *Client) deleteIfConcreteIndex(ctx context.Context, alias string) error {
	var info map[string]any
	err := c.do(ctx, http.MethodGet, "/"+alias, nil, &info)
	if err != nil {
		// Not found is the expected first-run case.
		return nil
	}
	// GET on an alias answers keyed by the indices behind it; only a
	// concrete index answers keyed by its own name.
	if _, concrete := info[alias]; !concrete {
		return nil
	}
	if err := c.do(ctx, http.MethodDelete, "/"+alias, nil, nil); err != nil {
		return fmt.Errorf("search: delete legacy concrete index %s: %w", alias, err)
	}
	return nil
}

// CleanupOldIndexes deletes every index matching "<alias>_*" except
// runIndex (the one just promoted). Delete failures are logged and
// non-fatal — the run has already succeeded.
func (c *Client) CleanupOldIndexes(ctx context.Context, alias, runIndex string) {
	var indices []map[string]any
	if err := c.do(ctx, http.MethodGet, "/_cat/indices/"+alias+"_*?format=json", nil, &indices); err != nil {
		log.WithComponent("search").Warn().Err(err).Msg("list old indexes failed")
		return
	}
	for _, row := range indices {
		name, _ := row["index"].(string)
		if name == "" || name == runIndex {
			continue
		}
		if err := c.do(ctx, http.MethodDelete, "/"+name, nil, nil); err != nil {
			log.WithComponent("search").Warn().Err(err).Str("index", name).Msg("delete old index failed")
		}
	}
}

// do performs an HTTP request against the search node and decodes the JSON
// response into out, if non-nil. A non-2xx response is returned as an
// error. The application/json Content-Type header is sent only when body
// is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	return c.doWithContentType(ctx, method, path, "application/json", body, out)
}

func (c *Client) doWithContentType(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("search: %s %s: status %d: %s", method, path, resp.StatusCode, data)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
