// Package reader downloads an article page and turns it into readable
// Markdown plus the list of outbound links it references.
package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/cixtor/readability"
	"github.com/tmshv/reader/internal"
	"github.com/tmshv/reader/utils"
)

const maxPageSize = 8 << 20

type Link struct {
	Url    string `json:"url"`
	Domain string `json:"domain"`
	Text   string `json:"text"`
}

type Content struct {
	Url      string `json:"url"`
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
	Links    []Link `json:"links"`
}

// ArticleLinks maps the extracted links to rows of the article link store.
func (c *Content) ArticleLinks() []internal.ArticleLink {
	links := make([]internal.ArticleLink, 0, len(c.Links))
	for _, l := range c.Links {
		links = append(links, internal.ArticleLink{Url: l.Url, Domain: l.Domain, Title: l.Text})
	}
	return links
}

type Reader struct {
	http   *http.Client
	logger *slog.Logger
}

func New(timeout time.Duration, logger *slog.Logger) *Reader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Reader{
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("component", "reader"),
	}
}

func (r *Reader) Fetch(ctx context.Context, pageUrl string) (*Content, error) {
	base, err := url.Parse(pageUrl)
	if err != nil || !utils.IsHttpUrl(pageUrl) {
		return nil, internal.NewValidationError("url", fmt.Sprintf("not an http(s) url: %q", pageUrl))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageUrl, nil)
	if err != nil {
		return nil, err
	}
	res, err := r.http.Do(req)
	if err != nil {
		return nil, &internal.UpstreamError{Url: pageUrl, Cause: err}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, &internal.UpstreamError{Url: pageUrl, StatusCode: res.StatusCode}
	}

	page, err := io.ReadAll(io.LimitReader(res.Body, maxPageSize))
	if err != nil {
		return nil, &internal.UpstreamError{Url: pageUrl, Cause: err}
	}

	article, err := readability.New().Parse(bytes.NewReader(page), pageUrl)
	if err != nil {
		return nil, fmt.Errorf("extract readable content of %s: %w", pageUrl, err)
	}

	conv := md.NewConverter(base.Host, true, nil)
	markdown, err := conv.ConvertString(article.Content)
	if err != nil {
		return nil, fmt.Errorf("convert %s to markdown: %w", pageUrl, err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = pageTitle(page)
	}

	links, err := extractLinks(article.Content, base)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("fetched article content", "url", pageUrl, "markdown_len", len(markdown), "links", len(links))

	return &Content{
		Url:      pageUrl,
		Title:    title,
		Markdown: markdown,
		Links:    links,
	}, nil
}

func pageTitle(page []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// extractLinks returns absolute http(s) links of an HTML fragment in
// document order, without duplicates or links back to the page itself.
func extractLinks(fragment string, base *url.URL) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("parse content html: %w", err)
	}

	links := make([]Link, 0)
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		target := abs.String()
		if !utils.IsHttpUrl(target) || target == pageWithoutFragment(base) {
			return
		}
		if _, ok := seen[target]; ok {
			return
		}
		seen[target] = struct{}{}
		links = append(links, Link{
			Url:    target,
			Domain: utils.Domain(target),
			Text:   strings.TrimSpace(s.Text()),
		})
	})
	return links, nil
}

func pageWithoutFragment(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return c.String()
}
