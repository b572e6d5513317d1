package internal

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const DateLayout = "2006-01-02"

// DateOnly formats t as a UTC calendar date.
func DateOnly(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// NormalizeDate parses free-form date text and returns its UTC calendar date.
// Text without a zone is read as UTC.
func NormalizeDate(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	t, err := dateparse.ParseIn(text, time.UTC)
	if err != nil {
		return "", false
	}
	return DateOnly(t), true
}
