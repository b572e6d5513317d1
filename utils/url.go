package utils

import (
	"net/url"
	"strings"
)

func IsHttpUrl(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// NormalizeBaseUrl trims surrounding space and trailing slashes. An empty
// input yields fallback.
func NormalizeBaseUrl(urlStr string, fallback string) string {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		urlStr = fallback
	}
	return strings.TrimRight(urlStr, "/")
}

// Domain returns the lowercased host of urlStr without a leading "www.".
func Domain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
