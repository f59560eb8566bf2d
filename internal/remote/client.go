// Package remote implements the generic remote data source: a windowed,
// paged fetcher for one bulletin type against the maritime-safety API. Each
// [Client] serialises its own outbound requests so overlapping fetches for
// the same entity type never race, while clients for different entity types
// run fully concurrently. Transport failures get a 3-attempt
// exponential-backoff [Retry]; elements failing required-field validation are
// dropped with a log line, never surfaced as an error.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/njoerd114/msisync/internal/model"
)

// defaultPageSize is the number of records requested per remote page.
const defaultPageSize = 250

// FetchError reports a failed remote fetch. The local cache is untouched.
type FetchError struct {
	Entity string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Entity, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Doer is the subset of [*http.Client] the client uses. Defining it as an
// interface allows mock injection in tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the outcome of one windowed fetch.
type Result[M any] struct {
	// Records are the decoded, validated records, in wire order.
	Records []M

	// DeclaredTotal is the record count the remote declared as available for
	// the window. When the envelope carries no total it equals the number of
	// elements received, and the mismatch path never triggers.
	DeclaredTotal int

	// Dropped counts elements rejected by required-field validation.
	Dropped int
}

// Client fetches one entity type from the remote API.
type Client[M any] struct {
	schema   *model.Schema[M]
	baseURL  string
	hc       Doer
	log      *slog.Logger
	pageSize int

	// sem serialises fetches for this entity type (single-worker queue).
	sem chan struct{}
}

// New returns a client for the schema's entity, rooted at baseURL. A nil hc
// falls back to a default [http.Client] with a request timeout.
func New[M any](schema *model.Schema[M], baseURL string, hc Doer, logger *slog.Logger) *Client[M] {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client[M]{
		schema:   schema,
		baseURL:  strings.TrimRight(baseURL, "/"),
		hc:       hc,
		log:      logger,
		pageSize: defaultPageSize,
		sem:      make(chan struct{}, 1),
	}
}

// Fetch retrieves every page of the incremental window anchored at newest
// (nil means everything). It blocks while another fetch for the same entity
// type is in flight.
func (c *Client[M]) Fetch(ctx context.Context, newest *M) (Result[M], error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return Result[M]{}, &FetchError{Entity: c.schema.Key, Err: ctx.Err()}
	}

	params := c.schema.SinceParams(newest, time.Now().UTC())
	params.Set("output", "json")
	if c.schema.SortHint != "" {
		params.Set("sort", c.schema.SortHint)
	}

	var res Result[M]
	res.DeclaredTotal = -1

	for pageNum := 0; ; pageNum++ {
		elements, total, err := c.fetchPage(ctx, params, pageNum)
		if err != nil {
			return Result[M]{}, &FetchError{Entity: c.schema.Key, Err: err}
		}
		if pageNum == 0 && total >= 0 {
			res.DeclaredTotal = total
		}

		for _, raw := range elements {
			rec, err := c.schema.Decode(raw)
			if err != nil {
				res.Dropped++
				c.log.Warn("dropping undecodable record", "entity", c.schema.Key, "error", err)
				continue
			}
			if !c.schema.Valid(rec) {
				res.Dropped++
				c.log.Warn("dropping record missing required fields", "entity", c.schema.Key)
				continue
			}
			res.Records = append(res.Records, rec)
		}

		// A short page means the window is exhausted.
		if len(elements) < c.pageSize {
			break
		}
	}

	if res.DeclaredTotal < 0 {
		res.DeclaredTotal = len(res.Records) + res.Dropped
	}

	c.log.Debug("fetch complete",
		"entity", c.schema.Key,
		"records", len(res.Records),
		"dropped", res.Dropped,
		"declared_total", res.DeclaredTotal,
	)
	return res, nil
}

// fetchPage issues one page request with transport-level retry and decodes
// the envelope.
func (c *Client[M]) fetchPage(ctx context.Context, params url.Values, pageNum int) ([]json.RawMessage, int, error) {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	q.Set("pageNum", strconv.Itoa(pageNum))

	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(c.schema.Key), q.Encode())

	var body []byte
	err := Retry(ctx, defaultMaxAttempts, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("remote returned unexpected status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, -1, err
	}

	return decodeEnvelope(body, c.schema.ArrayKey)
}

// decodeEnvelope extracts the entity-array field and the optional declared
// total from a response body of the form {"<arrayKey>": [...], "totalCount": n}.
func decodeEnvelope(body []byte, arrayKey string) ([]json.RawMessage, int, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, -1, fmt.Errorf("decode envelope: %w", err)
	}

	raw, ok := env[arrayKey]
	if !ok {
		return nil, -1, fmt.Errorf("envelope missing array field %q", arrayKey)
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, -1, fmt.Errorf("decode array field %q: %w", arrayKey, err)
	}

	total := -1
	if rawTotal, ok := env["totalCount"]; ok {
		if err := json.Unmarshal(rawTotal, &total); err != nil {
			total = -1 // a malformed total is treated as absent
		}
	}
	return elements, total, nil
}
