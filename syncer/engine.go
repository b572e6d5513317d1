// Package syncer keeps the local article store in step with a we-mp-rss
// instance. Sync pulls and upserts; Reconcile deletes what upstream dropped.
// Feeds and pages are processed strictly one after another.
package syncer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tmshv/reader/internal"
	"github.com/tmshv/reader/utils"
	"github.com/tmshv/reader/wemprss"
)

const (
	DefaultLimit = 30
	MaxLimit     = 100

	ReconcilePageSize = 100
	ReconcileMaxPages = 60
)

type FeedSource interface {
	ResolveFeeds(ctx context.Context, baseUrl string, feedIDs []string) ([]internal.Feed, error)
	FetchFeedArticles(ctx context.Context, baseUrl, feedID, sourceHint string, limit, offset int) ([]internal.RawArticle, error)
}

// ArticleStore is the part of store.Store the engines write through.
type ArticleStore interface {
	CreateArticle(ctx context.Context, article internal.Article) (internal.CreateResult, error)
	GetArticleByUrl(ctx context.Context, url string) (*internal.Article, error)
	MarkSyncOrigin(ctx context.Context, id int64, origin string) error
	ListArticleIDsBySourceOrigin(ctx context.Context, source string, origin string) ([]internal.ArticleRef, error)
	DeleteArticlesByIDs(ctx context.Context, ids []int64) (int64, error)
}

type SyncRequest struct {
	BaseUrl string   `json:"base_url"`
	Limit   int      `json:"limit"`
	FeedIDs []string `json:"feed_ids"`
}

type ReconcileRequest struct {
	BaseUrl string   `json:"base_url"`
	FeedIDs []string `json:"feed_ids"`
}

type Engine struct {
	source FeedSource
	store  ArticleStore
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(source FeedSource, store ArticleStore, logger *slog.Logger) *Engine {
	return &Engine{
		source: source,
		store:  store,
		logger: logger.With("component", "syncer"),
		now:    time.Now,
	}
}

// ClampLimit maps a requested page size to [1, MaxLimit]; zero means
// DefaultLimit.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	return max(1, min(MaxLimit, limit))
}

// normalizeTarget validates the shared part of both requests.
func normalizeTarget(baseUrl string, feedIDs []string) (string, []string, error) {
	baseUrl = utils.NormalizeBaseUrl(baseUrl, wemprss.DefaultBaseUrl)
	if !utils.IsHttpUrl(baseUrl) {
		return "", nil, internal.NewValidationError("base_url", "must be an http(s) url")
	}

	ids := make([]string, 0, len(feedIDs))
	for _, id := range feedIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return "", nil, internal.NewValidationError("feed_ids", "must not contain empty ids")
		}
		ids = append(ids, id)
	}
	return baseUrl, ids, nil
}

var _ FeedSource = (*wemprss.Client)(nil)
