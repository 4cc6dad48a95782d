package extract_test

import (
	"testing"

	"github.com/qepting91/reddit-link-harvester/internal/extract"
	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"sentence with link", "Check out https://example.com for more info!", []string{"https://example.com"}},
		{"no links", "No links in this text", nil},
		{"empty", "", nil},
		{"whitespace only", " \n\t ", nil},
		{"trailing slash is distinct", "Visit https://a.com and https://a.com/", []string{"https://a.com", "https://a.com/"}},
		{"query kept", "Visit https://site.com/page?id=123", []string{"https://site.com/page?id=123"}},
		{"trailing period", "Link: https://github.com/user/repo.", []string{"https://github.com/user/repo"}},
		{"multiple", "Multiple: https://a.com and https://b.com here", []string{"https://a.com", "https://b.com"}},
		{"platform only", "https://www.reddit.com/r/test", nil},
		{"platform media", "look https://i.redd.it/abc.jpg and redd.it/xyz", nil},
		{"markdown link", "[link](https://site.com/page).", []string{"https://site.com/page"}},
		{"markdown link with url text", "[https://a.com](https://a.com)", []string{"https://a.com"}},
		{"markdown bare target", "see [site](site.com/page)", []string{"http://site.com/page"}},
		{"balanced parens kept", "see https://en.wikipedia.org/wiki/Go_(programming_language).", []string{"https://en.wikipedia.org/wiki/Go_(programming_language)"}},
		{"html residue", "https://example.com/wow!<b>bold</b>", []string{"https://example.com/wow"}},
		{"hashbang kept", "app at https://example.com/#!/home", []string{"https://example.com/#!/home"}},
		{"bare domain with path", "try example.org/docs today", []string{"http://example.org/docs"}},
		{"www prefix", "www.example.com", []string{"http://www.example.com"}},
		{"www overlap collapses", "www.example.com and http://www.example.com", []string{"http://www.example.com"}},
		{"punctuation only", "https://.", nil},
		{"email is not a link", "mail me@gmail.com", nil},
		{"file names", "edit README.md and main.py", nil},
		{"tld prefix of word", "join example.community now", nil},
		{"case preserved", "HTTPS://Example.COM/Path", []string{"HTTPS://Example.COM/Path"}},
		{"quoted", `href "https://quoted.io/x"`, []string{"https://quoted.io/x"}},
		{"domain-like path segment", "https://github.com/my_name/my_name.github.io", []string{"https://github.com/my_name/my_name.github.io"}},
		{"domain in query", "https://www.google.com/search?q=site:example.com", []string{"https://www.google.com/search?q=site:example.com"}},
		{"underscore in path", "https://example.com/path_with_under.io/x", []string{"https://example.com/path_with_under.io/x"}},
		{"markdown domain text", "[example.com](https://example.com)", []string{"https://example.com"}},
		{"markdown domain path text", "[example.com/docs](https://example.com/docs)", []string{"https://example.com/docs"}},
		{"underscore is not a separator", "my_name.github.io", nil},
		{"bare next to explicit", "docs.example.org and https://example.com/a", []string{"http://docs.example.org", "https://example.com/a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extract.Extract(tt.text)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	text := "b.com a.com https://c.com https://a.com"
	first := extract.Extract(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, extract.Extract(text))
	}
}

func TestCustomPlatformDomains(t *testing.T) {
	n := extract.New([]string{"Example.com"})

	assert.Empty(t, n.Extract("https://www.example.com/path"))
	assert.Equal(t, []string{"https://www.reddit.com/r/x"}, n.Extract("https://www.reddit.com/r/x"))
	assert.True(t, n.IsPlatform("HTTPS://EXAMPLE.COM"))
}

func TestExternalLink(t *testing.T) {
	n := extract.New(nil)

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"https://github.com/x", "https://github.com/x", true},
		{"  http://blog.example.org/post  ", "http://blog.example.org/post", true},
		{"https://www.reddit.com/r/golang/comments/abc/title/", "", false},
		{"https://v.redd.it/abc", "", false},
		{"", "", false},
		{"ftp://files.example.com/a", "", false},
		{"/r/golang", "", false},
	}
	for _, tt := range tests {
		got, ok := n.ExternalLink(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
