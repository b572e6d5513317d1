package utils

import "testing"

func TestHttpUrls(t *testing.T) {
	urls := []string{
		"https://web-standards.ru/podcast/387/",
		"http://mp.weixin.qq.com/s?__biz=MzA&mid=1",
		"https://lea.verou.me/blog/2023/state-of-html-2023/",
	}

	for _, url := range urls {
		if !IsHttpUrl(url) {
			t.Errorf("Url %s must be accepted", url)
		}
	}
}

func TestNotHttpUrls(t *testing.T) {
	urls := []string{
		"",
		"not a url",
		"ftp://example.com/file",
		"javascript:alert(1)",
		"/relative/path",
		"https://",
		"mailto:someone@example.com",
	}

	for _, url := range urls {
		if IsHttpUrl(url) {
			t.Errorf("Url %q must be rejected", url)
		}
	}
}

func TestNormalizeBaseUrl(t *testing.T) {
	cases := [][3]string{
		{"http://127.0.0.1:8001/", "", "http://127.0.0.1:8001"},
		{"  http://x///  ", "", "http://x"},
		{"", "http://127.0.0.1:8001", "http://127.0.0.1:8001"},
		{"http://x/base/", "", "http://x/base"},
	}

	for _, c := range cases {
		result := NormalizeBaseUrl(c[0], c[1])
		if result != c[2] {
			t.Errorf("NormalizeBaseUrl(%q, %q) = %q, want %q", c[0], c[1], result, c[2])
		}
	}
}

func TestDomain(t *testing.T) {
	cases := map[string]string{
		"https://www.Example.com/a?b=c": "example.com",
		"http://blog.example.com:8080/": "blog.example.com",
		"::not-a-url":                   "",
	}

	for in, want := range cases {
		if got := Domain(in); got != want {
			t.Errorf("Domain(%q) = %q, want %q", in, got, want)
		}
	}
}
