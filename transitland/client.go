// Package transitland is a client for the transit.land REST API (v2) covering
// feed version listing and GTFS archive downloads.
package transitland

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/theoremus-urban-solutions/transitdata/internal/httpclient"
)

// pageSize is the largest page transit.land serves for feed_versions.
const pageSize = 100

// Config configures the transit.land client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RateLimit  float64
	RateBurst  int
	MaxRetries int
	Backoff    time.Duration
	Transport  http.RoundTripper
}

// Client talks to transit.land.
type Client struct {
	http *httpclient.Client
}

// NewClient creates a transit.land client. An API key is mandatory.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			RateBurst:  cfg.RateBurst,
			MaxRetries: cfg.MaxRetries,
			Backoff:    cfg.Backoff,
			Headers:    map[string]string{"apikey": cfg.APIKey},
			Transport:  cfg.Transport,
		}),
	}, nil
}

// FeedVersions lists up to limit versions of a feed, newest first.
// limit <= 0 lists every version.
func (c *Client) FeedVersions(ctx context.Context, feedKey string, limit int) ([]FeedVersion, error) {
	path := "/feeds/" + url.PathEscape(feedKey) + "/feed_versions"

	var (
		out   []FeedVersion
		after int64
	)
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageLimit(limit, len(out))))
		if after > 0 {
			q.Set("after", strconv.FormatInt(after, 10))
		}

		resp, err := c.http.Get(ctx, path, q)
		if err != nil {
			return nil, fmt.Errorf("list feed versions for %s: %w", feedKey, err)
		}
		var page feedVersionsResponse
		if err := resp.JSON(&page); err != nil {
			return nil, fmt.Errorf("decode feed versions for %s: %w", feedKey, err)
		}

		out = append(out, page.FeedVersions...)
		if len(page.FeedVersions) == 0 || page.Meta.After == 0 || page.Meta.After == after {
			break
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		after = page.Meta.After
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFeedVersions, feedKey)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].FetchedAt.After(out[j].FetchedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func pageLimit(limit, have int) int {
	if limit <= 0 {
		return pageSize
	}
	if rest := limit - have; rest < pageSize {
		return rest
	}
	return pageSize
}

// DownloadLatest streams the most recent GTFS archive of a feed into w.
func (c *Client) DownloadLatest(ctx context.Context, feedKey string, w io.Writer) (int64, error) {
	path := "/feeds/" + url.PathEscape(feedKey) + "/download_latest_feed_version"
	_, n, err := c.http.Stream(ctx, &httpclient.Request{Path: path}, w)
	if err != nil {
		return n, fmt.Errorf("download latest version of %s: %w", feedKey, err)
	}
	return n, nil
}

// DownloadVersion streams the GTFS archive with the given sha1 into w.
func (c *Client) DownloadVersion(ctx context.Context, sha1 string, w io.Writer) (int64, error) {
	path := "/feed_versions/" + url.PathEscape(sha1) + "/download"
	_, n, err := c.http.Stream(ctx, &httpclient.Request{Path: path}, w)
	if err != nil {
		return n, fmt.Errorf("download feed version %s: %w", sha1, err)
	}
	return n, nil
}
