package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/tmshv/reader/reader"
	"github.com/tmshv/reader/store"
	"github.com/tmshv/reader/syncer"
	"github.com/tmshv/reader/utils"
	"github.com/tmshv/reader/wemprss"
)

type Globals struct {
	DB         string        `help:"SQLite database file." env:"READER_DB" default:"data/app.db" type:"path"`
	BaseUrl    string        `help:"we-mp-rss service address." env:"WE_MP_RSS_BASE_URL" default:"http://127.0.0.1:8001"`
	Timeout    time.Duration `help:"Timeout of every upstream request." env:"READER_TIMEOUT" default:"60s"`
	LogLevel   string        `help:"Log level." env:"READER_LOG_LEVEL" default:"info" enum:"debug,info,warn,error"`
	Migrations string        `help:"Directory with migration files; embedded migrations are used when empty." env:"READER_MIGRATIONS" type:"path"`
}

var cli struct {
	Globals

	Serve     ServeCmd     `cmd:"" help:"Run the HTTP API."`
	Feeds     FeedsCmd     `cmd:"" help:"List accounts of the we-mp-rss directory."`
	Sync      SyncCmd      `cmd:"" help:"Copy articles of we-mp-rss accounts into the store."`
	Reconcile ReconcileCmd `cmd:"" help:"Delete synced articles that we-mp-rss no longer lists."`
	Import    ImportCmd    `cmd:"" help:"Import articles from a JSON file."`
	Cleanup   CleanupCmd   `cmd:"" help:"Remove duplicate articles sharing title and publish date."`
	Read      ReadCmd      `cmd:"" help:"Print an article as Markdown, store its links and mark it read."`
}

// App holds the components every command is built from.
type App struct {
	Logger  *slog.Logger
	Store   *store.SqliteStore
	Client  *wemprss.Client
	Engine  *syncer.Engine
	Reader  *reader.Reader
	BaseUrl string
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func (g *Globals) open() (*App, error) {
	logger := newLogger(g.LogLevel)
	st, err := store.NewSqliteStore(g.DB, g.Migrations, logger)
	if err != nil {
		return nil, err
	}
	client := wemprss.NewClient(g.Timeout, logger)
	return &App{
		Logger:  logger,
		Store:   st,
		Client:  client,
		Engine:  syncer.NewEngine(client, st, logger),
		Reader:  reader.New(g.Timeout, logger),
		BaseUrl: utils.NormalizeBaseUrl(g.BaseUrl, wemprss.DefaultBaseUrl),
	}, nil
}

func (a *App) Close() {
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("close store", "error", err)
	}
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("reader"),
		kong.Description("Article store with a we-mp-rss integration."),
		kong.UsageOnError(),
	)

	app, err := cli.Globals.open()
	kctx.FatalIfErrorf(err)
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(app)
	if err != nil {
		app.Logger.Error("command failed", "command", kctx.Command(), "error", err)
		app.Close()
		os.Exit(1)
	}
}
