package store

import (
	"context"

	. "github.com/tmshv/reader/internal"
)

type Store interface {
	CreateArticle(ctx context.Context, article Article) (CreateResult, error)
	ImportArticles(ctx context.Context, articles []Article) (ImportResult, error)
	GetArticleByUrl(ctx context.Context, url string) (*Article, error)
	GetArticleByID(ctx context.Context, id int64) (*Article, error)
	ListArticles(ctx context.Context, filter ArticleFilter) ([]Article, error)
	MarkSyncOrigin(ctx context.Context, id int64, origin string) error
	UpdateReadStatus(ctx context.Context, id int64, isRead bool) (bool, error)
	UpdateStarStatus(ctx context.Context, id int64, isStarred bool) (bool, error)
	ListArticleIDsBySourceOrigin(ctx context.Context, source string, origin string) ([]ArticleRef, error)
	DeleteArticlesByIDs(ctx context.Context, ids []int64) (int64, error)
	CleanupDuplicatesByTitleDate(ctx context.Context) (CleanupResult, error)
	GetStats(ctx context.Context) (Stats, error)

	UpsertArticleLinks(ctx context.Context, articleID int64, links []ArticleLink) (int, error)
	ListArticleLinks(ctx context.Context, articleID int64) ([]ArticleLink, error)
	ListCollectedLinks(ctx context.Context) ([]ArticleLink, error)
	GetArticleLink(ctx context.Context, linkID int64) (*ArticleLink, error)
	SetLinkCollected(ctx context.Context, linkID int64, collected bool) (bool, error)
	DeleteArticleLink(ctx context.Context, linkID int64) (bool, error)

	Close() error
}

var _ Store = (*SqliteStore)(nil)
