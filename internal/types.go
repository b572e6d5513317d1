package internal

import "time"

const (
	OriginManual  = "manual"
	OriginWeMpRss = "we-mp-rss"
)

type Article struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Url         string    `json:"url" db:"url"`
	PublishDate string    `json:"publish_date" db:"publish_date"`
	Source      string    `json:"source" db:"source"`
	SyncOrigin  string    `json:"sync_origin" db:"sync_origin"`
	IsRead      bool      `json:"is_read" db:"is_read"`
	IsStarred   bool      `json:"is_starred" db:"is_starred"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	// LinkCount is filled on reads only.
	LinkCount int64 `json:"link_count" db:"link_count"`
}

// ArticleLink is an outbound link found in, or attached to, an article.
// (ArticleID, Url) is unique.
type ArticleLink struct {
	ID          int64     `json:"id" db:"id"`
	ArticleID   int64     `json:"article_id" db:"article_id"`
	Url         string    `json:"url" db:"url"`
	Domain      string    `json:"domain" db:"domain"`
	Title       string    `json:"title" db:"title"`
	IsCollected bool      `json:"is_collected" db:"is_collected"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ArticleRef is the slice of an Article reconciliation needs.
type ArticleRef struct {
	ID  int64  `json:"id" db:"id"`
	Url string `json:"url" db:"url"`
}

type CreateResult struct {
	Changes int64 `json:"changes"`
	LastID  int64 `json:"last_id"`
}

type ImportResult struct {
	Inserted int `json:"inserted"`
	Ignored  int `json:"ignored"`
}

type CleanupResult struct {
	Deleted             int64 `json:"deleted"`
	DuplicateCandidates int64 `json:"duplicate_candidates"`
}

type Stats struct {
	UnreadToday    int64   `json:"unread_today"`
	TotalArticles  int64   `json:"total_articles"`
	ReadArticles   int64   `json:"read_articles"`
	CompletionRate float64 `json:"completion_rate"`
}

type ArticleFilter struct {
	Source     string
	SyncOrigin string
}

// Feed is one account listed by the upstream directory. It is never stored.
type Feed struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RawArticle is an upstream item before validation. PublishDate is nil when
// the upstream timestamp could not be parsed.
type RawArticle struct {
	Title          string  `json:"title"`
	Url            string  `json:"url"`
	PublishDate    *string `json:"publish_date"`
	Source         string  `json:"source"`
	RawPublishDate string  `json:"raw_publish_date"`
}

type SyncErrorItem struct {
	FeedID         string `json:"feed_id"`
	Reason         string `json:"reason"`
	Url            string `json:"url"`
	Title          string `json:"title"`
	RawPublishDate string `json:"raw_publish_date,omitempty"`
}

type FeedSyncDetail struct {
	FeedID   string `json:"feed_id"`
	FeedName string `json:"feed_name"`
	Inserted int    `json:"inserted"`
	Ignored  int    `json:"ignored"`
	Errors   int    `json:"errors"`
	Error    string `json:"error,omitempty"`
}

type SyncResult struct {
	BaseUrl    string           `json:"base_url"`
	FeedCount  int              `json:"feed_count"`
	Inserted   int              `json:"inserted"`
	Ignored    int              `json:"ignored"`
	Errors     int              `json:"errors"`
	Detail     []FeedSyncDetail `json:"detail"`
	ErrorItems []SyncErrorItem  `json:"error_items"`
	SyncedAt   time.Time        `json:"synced_at"`
	// FeedErrors aggregates the feeds that failed as a whole, nil when none did.
	FeedErrors error `json:"-"`
}

type FeedReconcileDetail struct {
	FeedID      string `json:"feed_id"`
	FeedName    string `json:"feed_name"`
	RemoteCount int    `json:"remote_count"`
	LocalCount  int    `json:"local_count"`
	Deleted     int64  `json:"deleted"`
	Error       string `json:"error,omitempty"`
}

type ReconcileResult struct {
	BaseUrl      string                `json:"base_url"`
	FeedCount    int                   `json:"feed_count"`
	Deleted      int64                 `json:"deleted"`
	Detail       []FeedReconcileDetail `json:"detail"`
	ReconciledAt time.Time             `json:"reconciled_at"`
	FeedErrors   error                 `json:"-"`
}

// ReconcileOrigin returns the sync origin a stored row should carry after an
// integration observed its URL again. The latest integration always wins, so
// reconciliation of that integration is allowed to remove the row later.
func ReconcileOrigin(existing, incoming string) string {
	if incoming == "" {
		return existing
	}
	return incoming
}
