// Package api exposes the article store and the we-mp-rss integration over
// HTTP. Every JSON response is wrapped as {"success": bool, "data"|"error"}.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tmshv/reader/internal"
	"github.com/tmshv/reader/reader"
	"github.com/tmshv/reader/store"
	"github.com/tmshv/reader/syncer"
)

type Syncer interface {
	Sync(ctx context.Context, req syncer.SyncRequest) (*internal.SyncResult, error)
	Reconcile(ctx context.Context, req syncer.ReconcileRequest) (*internal.ReconcileResult, error)
}

type FeedLister interface {
	ListFeeds(ctx context.Context, baseUrl string) ([]internal.Feed, error)
}

type ContentFetcher interface {
	Fetch(ctx context.Context, pageUrl string) (*reader.Content, error)
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Server struct {
	app     *fiber.App
	store   store.Store
	syncer  Syncer
	feeds   FeedLister
	content ContentFetcher
	baseUrl string
	logger  *slog.Logger
}

type Deps struct {
	Store   store.Store
	Syncer  Syncer
	Feeds   FeedLister
	Content ContentFetcher
	// BaseUrl is the we-mp-rss address used when a request names none.
	BaseUrl string
	Logger  *slog.Logger
}

func New(deps Deps) *Server {
	s := &Server{
		store:   deps.Store,
		syncer:  deps.Syncer,
		feeds:   deps.Feeds,
		content: deps.Content,
		baseUrl: deps.BaseUrl,
		logger:  deps.Logger.With("component", "api"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "reader",
		BodyLimit:             2 << 20,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.requestLogger)
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.app.Group("/api")
	api.Get("/health", s.health)
	api.Get("/stats", s.stats)

	articles := api.Group("/articles")
	s.linkRoutes(articles)
	articles.Post("/import", s.importArticles)
	articles.Get("/", s.listArticles)
	articles.Get("/:id", s.getArticle)
	articles.Patch("/:id/read", s.setRead)
	articles.Patch("/:id/star", s.setStar)
	articles.Get("/:id/content", s.articleContent)

	integrations := api.Group("/integrations")
	integrations.Post("/cleanup-duplicates", s.cleanupDuplicates)
	integrations.Get("/we-mp-rss/feeds", s.listFeeds)
	integrations.Get("/we-mp-rss/feeds.opml", s.feedsOPML)
	integrations.Post("/we-mp-rss/sync", s.sync)
	integrations.Post("/we-mp-rss/reconcile-delete", s.reconcile)
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	id := c.Get(fiber.HeaderXRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(fiber.HeaderXRequestID, id)

	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = statusOf(err)
	}
	s.logger.Info("request",
		"request_id", id,
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return err
}

func statusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return internal.HTTPStatus(err)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "status", code, "error", err)
	}
	return c.Status(code).JSON(envelope{Success: false, Error: err.Error()})
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(envelope{Success: true, Data: data})
}

// decode reads an optional JSON body into v; an empty body leaves v as is.
func decode(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	if err := c.App().Config().JSONDecoder(body, v); err != nil {
		return internal.NewValidationError("body", "invalid json: "+err.Error())
	}
	return nil
}

func articleID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, internal.NewValidationError("id", "must be a positive integer")
	}
	return int64(id), nil
}
