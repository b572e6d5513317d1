package wemprss

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/tmshv/reader/internal"
)

// ListFeeds pages through the account directory until a short page or
// DirectoryMaxPages. Feeds are deduplicated by id, first occurrence wins.
// Any failed page fails the whole listing.
func (c *Client) ListFeeds(ctx context.Context, baseUrl string) ([]internal.Feed, error) {
	result := make([]internal.Feed, 0)
	seen := make(map[string]struct{})

	offset := 0
	for page := 0; page < DirectoryMaxPages; page++ {
		feed, err := c.fetch(ctx, DirectoryUrl(baseUrl, DirectoryPageSize, offset))
		if err != nil {
			return nil, err
		}

		feeds := parseFeedList(feed)
		for _, f := range feeds {
			if _, ok := seen[f.ID]; ok {
				continue
			}
			seen[f.ID] = struct{}{}
			result = append(result, f)
		}

		if len(feeds) < DirectoryPageSize {
			break
		}
		offset += DirectoryPageSize
	}

	c.logger.Debug("listed feeds", "base_url", baseUrl, "count", len(result))
	return result, nil
}

// parseFeedList maps directory items to feeds. Items without an id are
// dropped and do not count towards the page size.
func parseFeedList(feed *gofeed.Feed) []internal.Feed {
	if feed == nil {
		return nil
	}

	feeds := make([]internal.Feed, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := feedID(item)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(item.Title)
		if name == "" {
			name = UnknownFeed
		}
		feeds = append(feeds, internal.Feed{ID: id, Name: name})
	}
	return feeds
}

// feedID prefers the <id> element, then <guid>, then the link path.
func feedID(item *gofeed.Item) string {
	if id := strings.TrimSpace(item.Custom["id"]); id != "" {
		return id
	}
	if id := strings.TrimSpace(item.GUID); id != "" {
		return id
	}
	return feedIDFromLink(item.Link)
}

// feedIDFromLink extracts "abc" from links like {base}/rss/abc or
// {base}/rss/abc/api.
func feedIDFromLink(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Path == "" {
		return ""
	}
	p := strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/api")
	dir, id := path.Split(p)
	if id == "" || strings.TrimRight(dir, "/") == "" || id == "rss" {
		return ""
	}
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}

// ResolveFeeds maps explicit ids to directory names, falling back to the id
// itself. Without ids the whole directory is returned.
func (c *Client) ResolveFeeds(ctx context.Context, baseUrl string, feedIDs []string) ([]internal.Feed, error) {
	all, err := c.ListFeeds(ctx, baseUrl)
	if err != nil {
		return nil, err
	}
	if len(feedIDs) == 0 {
		return all, nil
	}

	names := make(map[string]string, len(all))
	for _, f := range all {
		names[f.ID] = f.Name
	}
	targets := make([]internal.Feed, 0, len(feedIDs))
	for _, id := range feedIDs {
		name, ok := names[id]
		if !ok {
			name = id
		}
		targets = append(targets, internal.Feed{ID: id, Name: name})
	}
	return targets, nil
}
