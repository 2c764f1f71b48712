package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/govpoll/internal/gov"
	"github.com/roach88/govpoll/internal/retry"
)

const proposalListPath = "proposal_list"

// StatusError is a non-success HTTP response from the indexer.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("indexer %s: http %d", e.URL, e.Code)
}

var errRateLimited = errors.New("rate limited")

// Opts is the set of options for a new Client.
type Opts struct {
	BaseURL    string
	PageSize   int
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client

	// Backoff overrides retry.RateLimitConfig (tests).
	Backoff *retry.Config
}

// Client pages through the indexer's proposal list.
type Client struct {
	baseURL  string
	pageSize int
	token    string
	client   *http.Client
	backoff  retry.Config
	logger   *zap.Logger
}

// New creates a Client. PageSize defaults to 50 and Timeout to 30s.
func New(o Opts, logger *zap.Logger) *Client {
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}
	backoff := retry.RateLimitConfig()
	if o.Backoff != nil {
		backoff = *o.Backoff
	}
	return &Client{
		baseURL:  strings.TrimRight(o.BaseURL, "/"),
		pageSize: o.PageSize,
		token:    o.Token,
		client:   client,
		backoff:  backoff,
		logger:   logger.Named("feed"),
	}
}

// BaseURL returns the indexer root the client was configured with.
func (c *Client) BaseURL() string { return c.baseURL }

// Fetch returns every proposal in the feed, or only those with a block time
// strictly after *after when after is non-nil. Records without a readable
// block time are kept.
//
// Paging stops at the first empty or short page. A 429 response retries the
// same page with backoff until it succeeds or ctx ends. If the server rejects
// the block_time filter with a 400, paging restarts from offset 0 without
// the filter, once.
func (c *Client) Fetch(ctx context.Context, after *int64) ([]gov.Raw, error) {
	filtered := after != nil
	var out []gov.Raw

	for offset := 0; ; {
		page, err := c.fetchPage(ctx, offset, after, filtered)
		if err != nil {
			var se *StatusError
			if filtered && errors.As(err, &se) && se.Code == http.StatusBadRequest {
				c.logger.Warn("indexer rejected block_time filter, refetching unfiltered",
					zap.Int64("after", *after),
					zap.Error(err))
				filtered = false
				offset = 0
				out = out[:0]
				continue
			}
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, p := range page {
			if after != nil && !passesAfter(p, *after) {
				continue
			}
			out = append(out, p)
		}
		if len(page) < c.pageSize {
			break
		}
		offset += c.pageSize
	}

	c.logger.Debug("fetched proposals", zap.Int("count", len(out)), zap.Bool("filtered", filtered))
	return out, nil
}

// passesAfter is the client-side half of the block_time filter.
func passesAfter(p gov.Raw, after int64) bool {
	ts, ok := p.OriginTime()
	if !ok {
		return true
	}
	return ts > after
}

func (c *Client) fetchPage(ctx context.Context, offset int, after *int64, filtered bool) ([]gov.Raw, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	if filtered && after != nil {
		q.Set("block_time", "gt."+strconv.FormatInt(*after, 10))
	}
	u := c.baseURL + "/" + proposalListPath + "?" + q.Encode()

	var page []gov.Raw
	err := retry.WithBackoff(ctx, c.backoff, c.logger, "proposal_list", func() error {
		var err error
		page, err = c.get(ctx, u)
		if errors.Is(err, errRateLimited) {
			return err
		}
		return retry.Permanent(err)
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, u string) ([]gov.Raw, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}
	defer drainAndClose(resp.Body)

	c.logger.Debug("GET", zap.String("url", u), zap.Int("status", resp.StatusCode))

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, URL: u}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var page []gov.Raw
	if err := dec.Decode(&page); err != nil {
		return nil, fmt.Errorf("decode %s: %w", u, err)
	}
	return page, nil
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()
}
