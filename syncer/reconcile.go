package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/tmshv/reader/internal"
	"github.com/tmshv/reader/utils"
)

// Reconcile deletes local we-mp-rss articles of each target feed whose url
// is no longer listed upstream. Rows of another origin or another source are
// never touched. A feed whose listing fails is reported and left alone.
func (e *Engine) Reconcile(ctx context.Context, req ReconcileRequest) (*internal.ReconcileResult, error) {
	baseUrl, feedIDs, err := normalizeTarget(req.BaseUrl, req.FeedIDs)
	if err != nil {
		return nil, err
	}
	logger := e.logger.With("run_id", uuid.NewString(), "base_url", baseUrl)

	feeds, err := e.source.ResolveFeeds(ctx, baseUrl, feedIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve feeds: %w", err)
	}
	logger.Info("reconcile started", "feeds", len(feeds))

	result := &internal.ReconcileResult{
		BaseUrl:   baseUrl,
		FeedCount: len(feeds),
		Detail:    make([]internal.FeedReconcileDetail, 0, len(feeds)),
	}

	var failures *multierror.Error
	for _, feed := range feeds {
		detail := internal.FeedReconcileDetail{FeedID: feed.ID, FeedName: feed.Name}

		remote, err := e.remoteUrls(ctx, baseUrl, feed)
		if err != nil {
			failures = multierror.Append(failures, fmt.Errorf("feed %s: %w", feed.ID, err))
			detail.Error = err.Error()
			result.Detail = append(result.Detail, detail)
			continue
		}

		deleted, local, err := e.deleteMissing(ctx, feed, remote, logger)
		if err != nil {
			return nil, fmt.Errorf("reconcile feed %s: %w", feed.ID, err)
		}

		detail.RemoteCount = len(remote)
		detail.LocalCount = local
		detail.Deleted = deleted
		result.Deleted += deleted
		result.Detail = append(result.Detail, detail)
	}
	result.ReconciledAt = e.now().UTC()
	result.FeedErrors = failures.ErrorOrNil()

	if result.FeedErrors != nil {
		logger.Error("feed listings failed, their rows were kept", "failed", failures.Len(), "error", result.FeedErrors)
	}
	logger.Info("reconcile finished", "deleted", result.Deleted)
	return result, nil
}

// remoteUrls pages through the whole feed and collects its valid urls.
func (e *Engine) remoteUrls(ctx context.Context, baseUrl string, feed internal.Feed) (map[string]struct{}, error) {
	urls := make(map[string]struct{})
	offset := 0
	for page := 0; page < ReconcileMaxPages; page++ {
		articles, err := e.source.FetchFeedArticles(ctx, baseUrl, feed.ID, feed.Name, ReconcilePageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, a := range articles {
			if utils.IsHttpUrl(a.Url) {
				urls[a.Url] = struct{}{}
			}
		}
		if len(articles) < ReconcilePageSize {
			break
		}
		offset += ReconcilePageSize
	}
	return urls, nil
}

func (e *Engine) deleteMissing(ctx context.Context, feed internal.Feed, remote map[string]struct{}, logger *slog.Logger) (int64, int, error) {
	local, err := e.store.ListArticleIDsBySourceOrigin(ctx, feed.Name, internal.OriginWeMpRss)
	if err != nil {
		return 0, 0, err
	}

	stale := make([]int64, 0)
	for _, ref := range local {
		if _, ok := remote[ref.Url]; !ok {
			stale = append(stale, ref.ID)
		}
	}
	if len(stale) == 0 {
		return 0, len(local), nil
	}

	deleted, err := e.store.DeleteArticlesByIDs(ctx, stale)
	if err != nil {
		return 0, len(local), err
	}
	logger.Info("deleted stale articles", "feed_id", feed.ID, "feed_name", feed.Name, "deleted", deleted)
	return deleted, len(local), nil
}
