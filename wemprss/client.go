// Package wemprss talks to a we-mp-rss instance: a directory of followed
// public accounts and one RSS feed per account.
package wemprss

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/tmshv/reader/internal"
)

const (
	// DirectoryPageSize is the largest page the /rss endpoint serves.
	DirectoryPageSize = 30
	DirectoryMaxPages = 20

	DefaultBaseUrl = "http://127.0.0.1:8001"
	DefaultSource  = "default"
	UnknownFeed    = "未知公众号"

	maxDocumentSize = 32 << 20
	userAgent       = "reader/1.0 (+we-mp-rss sync)"
)

type Client struct {
	http   *http.Client
	logger *slog.Logger
}

func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "wemprss"),
	}
}

func DirectoryUrl(baseUrl string, limit, offset int) string {
	return fmt.Sprintf("%s/rss?limit=%d&offset=%d", baseUrl, limit, offset)
}

// FeedUrl is the RSS address of one account, without paging parameters.
func FeedUrl(baseUrl, feedID string) string {
	return fmt.Sprintf("%s/rss/%s/api", baseUrl, url.PathEscape(feedID))
}

func FeedPageUrl(baseUrl, feedID string, limit, offset int) string {
	return fmt.Sprintf("%s?limit=%d&offset=%d", FeedUrl(baseUrl, feedID), limit, offset)
}

// fetch downloads and parses one RSS document. A document that arrived in
// full but cannot be parsed is returned as nil with no error: the caller
// treats it as a feed without items. Anything that stops the body from
// arriving is an UpstreamError.
func (c *Client) fetch(ctx context.Context, feedUrl string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedUrl, nil)
	if err != nil {
		return nil, &internal.UpstreamError{Url: feedUrl, Cause: err}
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &internal.UpstreamError{Url: feedUrl, Cause: err}
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &internal.UpstreamError{Url: feedUrl, StatusCode: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxDocumentSize))
	if err != nil {
		return nil, &internal.UpstreamError{Url: feedUrl, Cause: fmt.Errorf("read body: %w", err)}
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("malformed feed document", "url", feedUrl, "error", err)
		return nil, nil
	}
	return feed, nil
}
