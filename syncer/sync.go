package syncer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/tmshv/reader/internal"
	"github.com/tmshv/reader/utils"
)

const (
	ReasonEmptyTitle  = "title is empty"
	ReasonInvalidUrl  = "url is invalid"
	ReasonInvalidDate = "publish_date is invalid"
)

// Sync pulls one page of every target feed and upserts the valid articles.
// Invalid articles, store failures and failed feeds are reported in the
// result; only bad input or a failed directory listing return an error.
func (e *Engine) Sync(ctx context.Context, req SyncRequest) (*internal.SyncResult, error) {
	baseUrl, feedIDs, err := normalizeTarget(req.BaseUrl, req.FeedIDs)
	if err != nil {
		return nil, err
	}
	limit := ClampLimit(req.Limit)
	logger := e.logger.With("run_id", uuid.NewString(), "base_url", baseUrl)

	feeds, err := e.source.ResolveFeeds(ctx, baseUrl, feedIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve feeds: %w", err)
	}
	logger.Info("sync started", "feeds", len(feeds), "limit", limit)

	result := &internal.SyncResult{
		BaseUrl:    baseUrl,
		FeedCount:  len(feeds),
		Detail:     make([]internal.FeedSyncDetail, 0, len(feeds)),
		ErrorItems: make([]internal.SyncErrorItem, 0),
	}

	var failures *multierror.Error
	for _, feed := range feeds {
		detail, items, err := e.syncFeed(ctx, baseUrl, feed, limit)
		if err != nil {
			failures = multierror.Append(failures, fmt.Errorf("feed %s: %w", feed.ID, err))
		}

		result.Inserted += detail.Inserted
		result.Ignored += detail.Ignored
		result.Errors += detail.Errors
		result.Detail = append(result.Detail, detail)
		result.ErrorItems = append(result.ErrorItems, items...)
	}
	result.SyncedAt = e.now().UTC()
	result.FeedErrors = failures.ErrorOrNil()

	if result.FeedErrors != nil {
		logger.Error("feeds failed", "failed", failures.Len(), "error", result.FeedErrors)
	}
	logger.Info("sync finished",
		"inserted", result.Inserted,
		"ignored", result.Ignored,
		"errors", result.Errors,
	)
	return result, nil
}

// syncFeed never fails half way: a failed page fetch is returned together
// with a detail that already records it.
func (e *Engine) syncFeed(ctx context.Context, baseUrl string, feed internal.Feed, limit int) (internal.FeedSyncDetail, []internal.SyncErrorItem, error) {
	detail := internal.FeedSyncDetail{FeedID: feed.ID, FeedName: feed.Name}
	items := make([]internal.SyncErrorItem, 0)

	articles, err := e.source.FetchFeedArticles(ctx, baseUrl, feed.ID, feed.Name, limit, 0)
	if err != nil {
		detail.Errors++
		detail.Error = err.Error()
		items = append(items, internal.SyncErrorItem{FeedID: feed.ID, Reason: err.Error()})
		return detail, items, err
	}

	for _, a := range articles {
		if reason := validateArticle(a); reason != "" {
			detail.Errors++
			item := internal.SyncErrorItem{FeedID: feed.ID, Reason: reason, Url: a.Url, Title: a.Title}
			if reason == ReasonInvalidDate {
				item.RawPublishDate = a.RawPublishDate
			}
			items = append(items, item)
			continue
		}

		inserted, err := e.upsert(ctx, a)
		if err != nil {
			detail.Errors++
			items = append(items, internal.SyncErrorItem{FeedID: feed.ID, Reason: err.Error(), Url: a.Url, Title: a.Title})
			continue
		}
		if inserted {
			detail.Inserted++
		} else {
			detail.Ignored++
		}
	}

	return detail, items, nil
}

// validateArticle returns the reason of the first failed check, or "".
func validateArticle(a internal.RawArticle) string {
	if strings.TrimSpace(a.Title) == "" {
		return ReasonEmptyTitle
	}
	if !utils.IsHttpUrl(a.Url) {
		return ReasonInvalidUrl
	}
	if a.PublishDate == nil {
		return ReasonInvalidDate
	}
	return ""
}

// upsert inserts the article unless its url is known. A known row keeps its
// content but adopts the we-mp-rss origin.
func (e *Engine) upsert(ctx context.Context, a internal.RawArticle) (bool, error) {
	res, err := e.store.CreateArticle(ctx, internal.Article{
		Title:       a.Title,
		Url:         a.Url,
		PublishDate: *a.PublishDate,
		Source:      a.Source,
		SyncOrigin:  internal.OriginWeMpRss,
	})
	if err != nil {
		return false, err
	}
	if res.Changes == 1 {
		return true, nil
	}

	existing, err := e.store.GetArticleByUrl(ctx, a.Url)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if origin := internal.ReconcileOrigin(existing.SyncOrigin, internal.OriginWeMpRss); origin != existing.SyncOrigin {
		if err := e.store.MarkSyncOrigin(ctx, existing.ID, origin); err != nil {
			return false, err
		}
	}
	return false, nil
}
