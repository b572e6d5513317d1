package wemprss

import (
	"github.com/gilliek/go-opml/opml"
	"github.com/tmshv/reader/internal"
)

// FeedsOPML renders the directory as an OPML subscription list pointing at
// each account's RSS address.
func FeedsOPML(baseUrl string, feeds []internal.Feed) (string, error) {
	outlines := make([]opml.Outline, 0, len(feeds))
	for _, f := range feeds {
		outlines = append(outlines, opml.Outline{
			Text:   f.Name,
			Title:  f.Name,
			Type:   "rss",
			XMLURL: FeedUrl(baseUrl, f.ID),
		})
	}

	doc := opml.OPML{
		Version: "2.0",
		Head:    opml.Head{Title: "we-mp-rss " + baseUrl},
		Body:    opml.Body{Outlines: outlines},
	}
	return doc.XML()
}
