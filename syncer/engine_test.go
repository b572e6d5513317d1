package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmshv/reader/internal"
	"github.com/tmshv/reader/store"
	"github.com/tmshv/reader/wemprss"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type upstreamItem struct {
	Title   string
	Link    string
	PubDate string
}

// upstream is a fake we-mp-rss serving a directory and paged account feeds.
type upstream struct {
	mu      sync.Mutex
	feeds   []internal.Feed
	items   map[string][]upstreamItem
	failing map[string]bool
	stalled map[string]bool
	hits    map[string]int
}

func newUpstream(feeds ...internal.Feed) *upstream {
	return &upstream{
		feeds:   feeds,
		items:   make(map[string][]upstreamItem),
		failing: make(map[string]bool),
		stalled: make(map[string]bool),
		hits:    make(map[string]int),
	}
}

func (u *upstream) set(feedID string, items ...upstreamItem) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.items[feedID] = items
}

// stalls reports whether the request is for a feed that sends half a
// document and then hangs.
func (u *upstream) stalls(r *http.Request) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/rss/"), "/api")
	return r.URL.Path != "/rss" && u.stalled[id]
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if u.stalls(r) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>upstream</title>`)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>upstream</title>`)

	if r.URL.Path == "/rss" {
		for i := offset; i < len(u.feeds) && i < offset+limit; i++ {
			fmt.Fprintf(&b, `<item><title>%s</title><guid>%s</guid></item>`, u.feeds[i].Name, u.feeds[i].ID)
		}
	} else {
		id, err := url.PathUnescape(strings.TrimSuffix(strings.TrimPrefix(r.URL.EscapedPath(), "/rss/"), "/api"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		u.hits[id]++
		if u.failing[id] {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		items := u.items[id]
		for i := offset; i < len(items) && i < offset+limit; i++ {
			it := items[i]
			fmt.Fprintf(&b, `<item><title>%s</title><link>%s</link><pubDate>%s</pubDate></item>`, it.Title, it.Link, it.PubDate)
		}
	}

	b.WriteString(`</channel></rss>`)
	fmt.Fprint(w, b.String())
}

func validItems(prefix string, n int) []upstreamItem {
	items := make([]upstreamItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, upstreamItem{
			Title:   fmt.Sprintf("%s article %d", prefix, i),
			Link:    fmt.Sprintf("https://mp.example.com/%s/%d", prefix, i),
			PubDate: "Tue, 05 Mar 2024 10:00:00 +0000",
		})
	}
	return items
}

type fixture struct {
	engine   *Engine
	store    *store.SqliteStore
	upstream *upstream
	baseUrl  string
}

func newFixture(t *testing.T, feeds ...internal.Feed) *fixture {
	t.Helper()
	up := newUpstream(feeds...)
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	st, err := store.NewSqliteStore(filepath.Join(t.TempDir(), "app.db"), "", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	client := wemprss.NewClient(5*time.Second, discardLogger())
	engine := NewEngine(client, st, discardLogger())
	engine.now = func() time.Time { return time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC) }

	return &fixture{engine: engine, store: st, upstream: up, baseUrl: srv.URL}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -5: 1, 1: 1, 30: 30, 100: 100, 500: MaxLimit}
	for in, want := range cases {
		assert.Equal(t, want, ClampLimit(in), "ClampLimit(%d)", in)
	}
}

func TestValidateArticle(t *testing.T) {
	date := "2024-03-05"
	cases := []struct {
		name    string
		article internal.RawArticle
		want    string
	}{
		{"valid", internal.RawArticle{Title: "T", Url: "https://x/1", PublishDate: &date}, ""},
		{"blank title wins over everything", internal.RawArticle{Title: "  ", Url: "ftp://x", PublishDate: nil}, ReasonEmptyTitle},
		{"non http url", internal.RawArticle{Title: "T", Url: "ftp://x/1", PublishDate: &date}, ReasonInvalidUrl},
		{"empty url", internal.RawArticle{Title: "T", Url: "", PublishDate: nil}, ReasonInvalidUrl},
		{"missing date", internal.RawArticle{Title: "T", Url: "http://x/1", PublishDate: nil}, ReasonInvalidDate},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, validateArticle(c.article))
		})
	}
}

func TestSyncScenarioTwoFeeds(t *testing.T) {
	f := newFixture(t, internal.Feed{ID: "mp-a", Name: "Account A"}, internal.Feed{ID: "mp-b", Name: "Account B"})
	for _, id := range []string{"mp-a", "mp-b"} {
		items := validItems(id, 5)
		items = append(items, upstreamItem{Title: id + " broken", Link: "https://mp.example.com/" + id + "/broken", PubDate: "2024-13-45"})
		f.upstream.set(id, items...)
	}

	res, err := f.engine.Sync(context.Background(), SyncRequest{BaseUrl: f.baseUrl, Limit: 30})
	require.NoError(t, err)
	assert.Equal(t, 2, res.FeedCount)
	assert.Equal(t, 10, res.Inserted)
	assert.Equal(t, 0, res.Ignored)
	assert.Equal(t, 2, res.Errors)
	assert.Equal(t, f.baseUrl, res.BaseUrl)
	assert.Equal(t, time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC), res.SyncedAt)

	require.Len(t, res.Detail, 2)
	assert.Equal(t, internal.FeedSyncDetail{FeedID: "mp-a", FeedName: "Account A", Inserted: 5, Errors: 1}, res.Detail[0])
	assert.Equal(t, internal.FeedSyncDetail{FeedID: "mp-b", FeedName: "Account B", Inserted: 5, Errors: 1}, res.Detail[1])

	require.Len(t, res.ErrorItems, 2)
	assert.Equal(t, internal.SyncErrorItem{
		FeedID:         "mp-a",
		Reason:         ReasonInvalidDate,
		Url:            "https://mp.example.com/mp-a/broken",
		Title:          "mp-a broken",
		RawPublishDate: "2024-13-45",
	}, res.ErrorItems[0])
	assert.Equal(t, "mp-b", res.ErrorItems[1].FeedID)

	broken, err := f.store.GetArticleByUrl(context.Background(), "https://mp.example.com/mp-a/broken")
	require.NoError(t, err)
	assert.Nil(t, broken, "invalid articles are not stored")

	stored, err := f.store.GetArticleByUrl(context.Background(), "https://mp.example.com/mp-b/3")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Account B", stored.Source)
	assert.Equal(t, internal.OriginWeMpRss, stored.SyncOrigin)
	assert.Equal(t, "2024-03-05", stored.PublishDate)
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t, internal.Feed{ID: "mp-a", Name: "Account A"})
	f.upstream.set("mp-a", validItems("a", 7)...)

	first, err := f.engine.Sync(context.Background(), SyncRequest{BaseUrl: f.baseUrl})
	require.NoError(t, err)
	assert.Equal(t, 7, first.Inserted)
	assert.Equal(t, 0, first.Ignored)

	second, err := f.engine.Sync(context.Background(), SyncRequest{BaseUrl: f.baseUrl})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 7, second.Ignored)
	assert.Equal(t, 0, second.Errors)

	all, err := f.store.ListArticles(context.Background(), internal.ArticleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 7)
}

func TestSyncRejectsInvalidArticles(t *testing.T) {
	f := newFixture(t, internal.Feed{ID: "mp-a", Name: "Account A"})
	f.upstream.set("mp-a",
		upstreamItem{Title: "", Link: "https://mp.example.com/1", PubDate: "Tue, 05 Mar 2024 10:00:00 +0000"},
		upstreamItem{Title: "Bad url", Link: "ftp://mp.example.com/2", PubDate: "Tue, 05 Mar 2024 10:00:00 +0000"},
		upstreamItem{Title: "Bad date", Link: "https://mp.example.com/3", PubDate: "2024-02-30"},
	)

	res, err := f.engine.Sync(context.Background(), SyncRequest{BaseUrl: f.baseUrl})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 3, res.Errors)

	reasons := make([]string, 0, len(res.ErrorItems))
	for _, it := range res.ErrorItems {
		reasons = append(reasons, it.Reason)
	}
	assert.Equal(t, []string{ReasonEmptyTitle, ReasonInvalidUrl, ReasonInvalidDate}, reasons)

	all, err := f.store.ListArticles(context.Background(), internal.ArticleFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSyncLimitIsCapped(t *testing.T) {
	f := newFixture(t, internal.Feed{ID: "mp-a", Name: "Account A"})
	f.upstream.set("mp-a", validItems("a", 120)...)

	res, err := f.engine.Sync(context.Background(), SyncRequest{BaseUrl: f.baseUrl, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, res.Inserted)
}

func TestSyncAdoptsManualRows(t *testing.T) {
	f := newFixture(t, internal.Feed{ID: "mp-a", Name: "Account A"})
	f.upstream.set("mp-a", validItems("a", 2)...)
	ctx := context.Background()

	_, err := f.store.CreateArticle(ctx, internal.Article{
		Title:       "My own title",
		Url:         "https://mp.example.com/a/0",
		PublishDate: "2024-01-01",
		Source:      "Manual source",
		SyncOrigin:  internal.OriginManual,
	})
	require.NoError(t, err)

	res, err := f.engine.Sync(ctx, SyncRequest{BaseUrl: f.baseUrl})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Ignored)

	adopted, err := f.store.GetArticleByUrl(ctx, "https://mp.example.com/a/0")
	require.NoError(t, err)
	assert.Equal(t, internal.OriginWeMpRss, adopted.SyncOrigin)
	assert.Equal(t, "My own title", adopted.Title, "content is never overwritten")
	assert.Equal(t, "Manual source", adopted.Source)
}

func TestSyncExplicitFeedIDs(t *testing.T) {
	f := newFixture(t, internal.Feed{ID: "mp-a", Name: "Account A"}, internal.Feed{ID: "mp-b", Name: "Account B"})
	f.upstream.set("mp-b", validItems("b", 1)...)
	f.upstream.set("ghost", validItems("ghost", 1)...)

	res, err := f.engine.Sync(context.Background(), SyncRequest{BaseUrl: f.baseUrl + "/", FeedIDs: []string{"mp-b", "ghost"}})
	require.NoError(t, err)
	assert.Equal(t, f.baseUrl, res.BaseUrl, "trailing slash trimmed")
	assert.Equal(t, 2, res.FeedCount)
	assert.Equal(t, "Account B", res.Detail[0].FeedName)
	assert.Equal(t, "ghost", res.Detail[1].FeedName, "unknown ids keep the id as name")
	assert.Zero(t, f.upstream.hits["mp-a"])

	ghost, err := f.store.GetArticleByUrl(context.Background(), "https://mp.example.com/ghost/0")
	require.NoError(t, err)
	require.NotNil(t, ghost)
	assert.Equal(t, "ghost", ghost.Source)
}

func TestSyncFailedFeedDoesNotStopOthers(t *testing.T) {
	f := newFixture(t, internal.Feed{ID: "mp-a", Name: "Account A"}, internal.Feed{ID: "mp-b", Name: "Account B"})
	f.upstream.failing["mp-a"] = true
	f.upstream.set("mp-b", validItems("b", 3)...)

	res, err := f.engine.Sync(context.Background(), SyncRequest{BaseUrl: f.baseUrl})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 1, res.Errors)
	assert.NotEmpty(t, res.Detail[0].Error)
	require.Len(t, res.ErrorItems, 1)
	assert.Equal(t, "mp-a", res.ErrorItems[0].FeedID)

	var merr *multierror.Error
	require.True(t, errors.As(res.FeedErrors, &merr), "expected aggregated feed errors, got %v", res.FeedErrors)
	assert.Equal(t, 1, merr.Len())
	var upErr *internal.UpstreamError
	assert.True(t, errors.As(merr.Errors[0], &upErr))
}

func TestSyncValidationError(t *testing.T) {
	f := newFixture(t)
	cases := []SyncRequest{
		{BaseUrl: "ftp://example.com"},
		{BaseUrl: "not a url"},
		{BaseUrl: f.baseUrl, FeedIDs: []string{"ok", "  "}},
	}
	for _, req := range cases {
		_, err := f.engine.Sync(context.Background(), req)
		var verr *internal.ValidationError
		assert.True(t, errors.As(err, &verr), "request %+v: expected ValidationError, got %v", req, err)
	}
}

func TestSyncDirectoryFailureFailsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	engine := NewEngine(wemprss.NewClient(time.Second, discardLogger()), &fakeStore{}, discardLogger())
	_, err := engine.Sync(context.Background(), SyncRequest{BaseUrl: srv.URL})
	var upErr *internal.UpstreamError
	require.True(t, errors.As(err, &upErr), "expected UpstreamError, got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)
}
