package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/gosimple/slug"
	"github.com/tmshv/reader/api"
	"github.com/tmshv/reader/internal"
	"github.com/tmshv/reader/syncer"
	"github.com/tmshv/reader/wemprss"
)

type ServeCmd struct {
	Addr string `help:"Listen address." env:"READER_ADDR" default:":3000"`
}

func (c *ServeCmd) Run(ctx context.Context, app *App) error {
	server := api.New(api.Deps{
		Store:   app.Store,
		Syncer:  app.Engine,
		Feeds:   app.Client,
		Content: app.Reader,
		BaseUrl: app.BaseUrl,
		Logger:  app.Logger,
	})

	go func() {
		<-ctx.Done()
		app.Logger.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			app.Logger.Error("shutdown", "error", err)
		}
	}()
	return server.Listen(c.Addr)
}

type FeedsCmd struct {
	OPML bool `help:"Print the directory as OPML." name:"opml"`
}

func (c *FeedsCmd) Run(ctx context.Context, app *App) error {
	feeds, err := app.Client.ListFeeds(ctx, app.BaseUrl)
	if err != nil {
		return err
	}
	if c.OPML {
		doc, err := wemprss.FeedsOPML(app.BaseUrl, feeds)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, doc)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, f := range feeds {
		fmt.Fprintf(w, "%s\t%s\n", f.ID, f.Name)
	}
	return w.Flush()
}

type SyncCmd struct {
	FeedID    []string `help:"Account to sync; repeatable. Every account of the directory when omitted." name:"feed-id"`
	Limit     int      `help:"Articles requested per account (1-100)." default:"30"`
	ReportDir string   `help:"Directory to mirror the report into." type:"path"`
}

func (c *SyncCmd) Run(ctx context.Context, app *App) error {
	res, err := app.Engine.Sync(ctx, syncer.SyncRequest{
		BaseUrl: app.BaseUrl,
		Limit:   c.Limit,
		FeedIDs: c.FeedID,
	})
	if err != nil {
		return err
	}
	app.Logger.Info("sync finished",
		"feeds", res.FeedCount,
		"inserted", res.Inserted,
		"ignored", res.Ignored,
		"errors", res.Errors,
	)
	if err := report(os.Stdout, c.ReportDir, res.BaseUrl, "sync", res); err != nil {
		return err
	}
	return res.FeedErrors
}

type ReconcileCmd struct {
	FeedID    []string `help:"Account to reconcile; repeatable. Every account of the directory when omitted." name:"feed-id"`
	ReportDir string   `help:"Directory to mirror the report into." type:"path"`
}

func (c *ReconcileCmd) Run(ctx context.Context, app *App) error {
	res, err := app.Engine.Reconcile(ctx, syncer.ReconcileRequest{
		BaseUrl: app.BaseUrl,
		FeedIDs: c.FeedID,
	})
	if err != nil {
		return err
	}
	app.Logger.Info("reconcile finished", "feeds", res.FeedCount, "deleted", res.Deleted)
	if err := report(os.Stdout, c.ReportDir, res.BaseUrl, "reconcile", res); err != nil {
		return err
	}
	return res.FeedErrors
}

type ImportCmd struct {
	File string `arg:"" help:"JSON file with an array of articles or {\"articles\": [...]}." type:"existingfile"`
}

func (c *ImportCmd) Run(ctx context.Context, app *App) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	articles, err := internal.DecodeArticleBatch(data)
	if err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}
	res, err := app.Store.ImportArticles(ctx, articles)
	if err != nil {
		return err
	}
	app.Logger.Info("import finished", "file", c.File, "inserted", res.Inserted, "ignored", res.Ignored)
	return nil
}

type CleanupCmd struct{}

func (c *CleanupCmd) Run(ctx context.Context, app *App) error {
	res, err := app.Store.CleanupDuplicatesByTitleDate(ctx)
	if err != nil {
		return err
	}
	app.Logger.Info("cleanup finished", "candidates", res.DuplicateCandidates, "deleted", res.Deleted)
	return nil
}

type ReadCmd struct {
	ID int64 `arg:"" help:"Article id."`
}

func (c *ReadCmd) Run(ctx context.Context, app *App) error {
	article, err := app.Store.GetArticleByID(ctx, c.ID)
	if err != nil {
		return err
	}
	if article == nil {
		return fmt.Errorf("article %d: %w", c.ID, internal.ErrNotFound)
	}

	content, err := app.Reader.Fetch(ctx, article.Url)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "# %s\n\n%s\n", content.Title, content.Markdown)
	if len(content.Links) > 0 {
		fmt.Fprintln(os.Stdout, "\nLinks:")
		for _, l := range content.Links {
			fmt.Fprintf(os.Stdout, "- [%s](%s) %s\n", l.Text, l.Url, l.Domain)
		}
	}

	if _, err := app.Store.UpsertArticleLinks(ctx, article.ID, content.ArticleLinks()); err != nil {
		return err
	}
	_, err = app.Store.UpdateReadStatus(ctx, article.ID, true)
	return err
}

// report prints a result as JSON and, when dir is set, mirrors it to
// <dir>/<slug(base url)>-<kind>.json so the last run can be inspected later.
func report(w io.Writer, dir, baseUrl, kind string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return err
	}
	if dir == "" {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(reportPath(dir, baseUrl, kind), data, 0o644)
}

func reportPath(dir, baseUrl, kind string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.json", slug.Make(baseUrl), kind))
}
