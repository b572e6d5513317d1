package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeArticleBatch reads an import payload: either a bare JSON array of
// articles or an object {"articles": [...]}. Every article is marked as a
// manual import regardless of what the payload claims.
func DecodeArticleBatch(data []byte) ([]Article, error) {
	data = bytes.TrimSpace(data)
	var articles []Article
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &articles); err != nil {
			return nil, NewValidationError("body", fmt.Sprintf("invalid json: %v", err))
		}
	} else {
		var payload struct {
			Articles []Article `json:"articles"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, NewValidationError("body", fmt.Sprintf("invalid json: %v", err))
		}
		articles = payload.Articles
	}
	if articles == nil {
		return nil, NewValidationError("body", `expected an array of articles or {"articles": [...]}`)
	}

	for i := range articles {
		articles[i].SyncOrigin = OriginManual
	}
	return articles, nil
}
