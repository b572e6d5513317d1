package api

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/tmshv/reader/internal"
	"github.com/tmshv/reader/utils"
)

func (s *Server) linkRoutes(articles fiber.Router) {
	articles.Get("/links/collected", s.collectedLinks)
	articles.Get("/:id/links", s.listLinks)
	articles.Post("/:id/links", s.addLink)
	articles.Delete("/:id/links/:linkId", s.deleteLink)
	articles.Patch("/:id/links/:linkId/collect", s.collectLink)
}

func (s *Server) collectedLinks(c *fiber.Ctx) error {
	links, err := s.store.ListCollectedLinks(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, links)
}

// articleLinks answers with the article's links after a change.
func (s *Server) articleLinks(c *fiber.Ctx, articleID int64) error {
	links, err := s.store.ListArticleLinks(c.UserContext(), articleID)
	if err != nil {
		return err
	}
	return ok(c, links)
}

func (s *Server) listLinks(c *fiber.Ctx) error {
	article, err := s.findArticle(c)
	if err != nil {
		return err
	}
	return s.articleLinks(c, article.ID)
}

func (s *Server) addLink(c *fiber.Ctx) error {
	article, err := s.findArticle(c)
	if err != nil {
		return err
	}
	var body struct {
		Url   string `json:"url"`
		Title string `json:"title"`
	}
	if err := decode(c, &body); err != nil {
		return err
	}
	raw := strings.TrimSpace(body.Url)
	u, err := url.Parse(raw)
	if err != nil || !utils.IsHttpUrl(raw) {
		return internal.NewValidationError("url", "must be an http(s) url")
	}

	_, err = s.store.UpsertArticleLinks(c.UserContext(), article.ID, []internal.ArticleLink{{
		Url:    u.String(),
		Domain: utils.Domain(u.String()),
		Title:  strings.TrimSpace(body.Title),
	}})
	if err != nil {
		return err
	}
	return s.articleLinks(c, article.ID)
}

// findLink resolves :linkId and insists it belongs to :id.
func (s *Server) findLink(c *fiber.Ctx) (*internal.ArticleLink, error) {
	article, err := s.findArticle(c)
	if err != nil {
		return nil, err
	}
	linkID, err := c.ParamsInt("linkId")
	if err != nil || linkID <= 0 {
		return nil, internal.NewValidationError("linkId", "must be a positive integer")
	}
	link, err := s.store.GetArticleLink(c.UserContext(), int64(linkID))
	if err != nil {
		return nil, err
	}
	if link == nil || link.ArticleID != article.ID {
		return nil, fmt.Errorf("link %d of article %d: %w", linkID, article.ID, internal.ErrNotFound)
	}
	return link, nil
}

func (s *Server) deleteLink(c *fiber.Ctx) error {
	link, err := s.findLink(c)
	if err != nil {
		return err
	}
	if _, err := s.store.DeleteArticleLink(c.UserContext(), link.ID); err != nil {
		return err
	}
	return s.articleLinks(c, link.ArticleID)
}

func (s *Server) collectLink(c *fiber.Ctx) error {
	link, err := s.findLink(c)
	if err != nil {
		return err
	}
	var body struct {
		IsCollected *flag `json:"is_collected"`
	}
	if err := decode(c, &body); err != nil {
		return err
	}
	if body.IsCollected == nil {
		return internal.NewValidationError("is_collected", "is required")
	}
	if _, err := s.store.SetLinkCollected(c.UserContext(), link.ID, bool(*body.IsCollected)); err != nil {
		return err
	}
	return s.articleLinks(c, link.ArticleID)
}
