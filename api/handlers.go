package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tmshv/reader/internal"
	"github.com/tmshv/reader/syncer"
	"github.com/tmshv/reader/utils"
	"github.com/tmshv/reader/wemprss"
)

func (s *Server) health(c *fiber.Ctx) error {
	return ok(c, fiber.Map{"status": "ok", "now": time.Now().UTC()})
}

func (s *Server) stats(c *fiber.Ctx) error {
	stats, err := s.store.GetStats(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, stats)
}

func (s *Server) importArticles(c *fiber.Ctx) error {
	articles, err := internal.DecodeArticleBatch(c.Body())
	if err != nil {
		return err
	}
	res, err := s.store.ImportArticles(c.UserContext(), articles)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (s *Server) listArticles(c *fiber.Ctx) error {
	list, err := s.store.ListArticles(c.UserContext(), internal.ArticleFilter{
		Source:     c.Query("source"),
		SyncOrigin: c.Query("origin"),
	})
	if err != nil {
		return err
	}

	grouped := make(map[string][]internal.Article)
	for _, a := range list {
		grouped[a.PublishDate] = append(grouped[a.PublishDate], a)
	}
	return ok(c, fiber.Map{"grouped": grouped, "list": list})
}

func (s *Server) findArticle(c *fiber.Ctx) (*internal.Article, error) {
	id, err := articleID(c)
	if err != nil {
		return nil, err
	}
	article, err := s.store.GetArticleByID(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if article == nil {
		return nil, fmt.Errorf("article %d: %w", id, internal.ErrNotFound)
	}
	return article, nil
}

func (s *Server) getArticle(c *fiber.Ctx) error {
	article, err := s.findArticle(c)
	if err != nil {
		return err
	}
	return ok(c, article)
}

func (s *Server) setFlag(c *fiber.Ctx, update func(id int64, value bool) (bool, error), field string) error {
	id, err := articleID(c)
	if err != nil {
		return err
	}
	var body map[string]*flag
	if err := decode(c, &body); err != nil {
		return err
	}
	value, present := body[field]
	if !present || value == nil {
		return internal.NewValidationError(field, "is required")
	}

	found, err := update(id, bool(*value))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("article %d: %w", id, internal.ErrNotFound)
	}
	return s.getArticle(c)
}

func (s *Server) setRead(c *fiber.Ctx) error {
	return s.setFlag(c, func(id int64, v bool) (bool, error) {
		return s.store.UpdateReadStatus(c.UserContext(), id, v)
	}, "is_read")
}

func (s *Server) setStar(c *fiber.Ctx) error {
	return s.setFlag(c, func(id int64, v bool) (bool, error) {
		return s.store.UpdateStarStatus(c.UserContext(), id, v)
	}, "is_starred")
}

func (s *Server) articleContent(c *fiber.Ctx) error {
	article, err := s.findArticle(c)
	if err != nil {
		return err
	}
	content, err := s.content.Fetch(c.UserContext(), article.Url)
	if err != nil {
		return err
	}
	added, err := s.store.UpsertArticleLinks(c.UserContext(), article.ID, content.ArticleLinks())
	if err != nil {
		return err
	}
	s.logger.Debug("stored article links", "article_id", article.ID, "found", len(content.Links), "added", added)
	return ok(c, content)
}

func (s *Server) cleanupDuplicates(c *fiber.Ctx) error {
	res, err := s.store.CleanupDuplicatesByTitleDate(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (s *Server) queryBaseUrl(c *fiber.Ctx) (string, error) {
	baseUrl := utils.NormalizeBaseUrl(c.Query("base_url"), s.baseUrl)
	if !utils.IsHttpUrl(baseUrl) {
		return "", internal.NewValidationError("base_url", "must be an http(s) url")
	}
	return baseUrl, nil
}

func (s *Server) listFeeds(c *fiber.Ctx) error {
	baseUrl, err := s.queryBaseUrl(c)
	if err != nil {
		return err
	}
	feeds, err := s.feeds.ListFeeds(c.UserContext(), baseUrl)
	if err != nil {
		return err
	}
	return ok(c, feeds)
}

func (s *Server) feedsOPML(c *fiber.Ctx) error {
	baseUrl, err := s.queryBaseUrl(c)
	if err != nil {
		return err
	}
	feeds, err := s.feeds.ListFeeds(c.UserContext(), baseUrl)
	if err != nil {
		return err
	}
	doc, err := wemprss.FeedsOPML(baseUrl, feeds)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/x-opml; charset=utf-8")
	return c.SendString(doc)
}

func (s *Server) sync(c *fiber.Ctx) error {
	var req syncer.SyncRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	if req.BaseUrl == "" {
		req.BaseUrl = s.baseUrl
	}
	res, err := s.syncer.Sync(c.UserContext(), req)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (s *Server) reconcile(c *fiber.Ctx) error {
	var req syncer.ReconcileRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	if req.BaseUrl == "" {
		req.BaseUrl = s.baseUrl
	}
	res, err := s.syncer.Reconcile(c.UserContext(), req)
	if err != nil {
		return err
	}
	return ok(c, res)
}
