package wemprss

import (
	"context"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/tmshv/reader/internal"
)

// FetchFeedArticles reads one page of an account feed. A document that
// cannot be parsed yields no articles rather than an error.
func (c *Client) FetchFeedArticles(ctx context.Context, baseUrl, feedID, sourceHint string, limit, offset int) ([]internal.RawArticle, error) {
	feed, err := c.fetch(ctx, FeedPageUrl(baseUrl, feedID, limit, offset))
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return []internal.RawArticle{}, nil
	}

	source := strings.TrimSpace(sourceHint)
	if source == "" {
		source = strings.TrimSpace(feed.Title)
	}
	if source == "" {
		source = DefaultSource
	}

	result := make([]internal.RawArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		result = append(result, mapArticleItem(item, source))
	}
	return result, nil
}

func mapArticleItem(item *gofeed.Item, source string) internal.RawArticle {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}
	return internal.RawArticle{
		Title:          strings.TrimSpace(item.Title),
		Url:            link,
		PublishDate:    publishDate(item),
		Source:         source,
		RawPublishDate: item.Published,
	}
}

// publishDate prefers the timestamp gofeed already parsed and falls back to
// a lenient parse of the raw text. nil means the date is unusable.
func publishDate(item *gofeed.Item) *string {
	if item.PublishedParsed != nil {
		d := internal.DateOnly(*item.PublishedParsed)
		return &d
	}
	if d, ok := internal.NormalizeDate(item.Published); ok {
		return &d
	}
	return nil
}
