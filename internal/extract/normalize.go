// Package extract recovers external links from noisy post text.
//
// One rule set covers every input shape seen in listings: scheme or www.
// prefixed tokens, bare domains from a TLD allow-list, markdown link
// residue and trailing sentence punctuation. Bump RulesVersion whenever the
// output for an existing input changes.
package extract

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// RulesVersion identifies the current normalisation rule set.
const RulesVersion = 4

// DefaultPlatformDomains are the domains the source platform itself runs on.
// Links containing any of them are internal and never recorded.
var DefaultPlatformDomains = []string{
	"reddit.com",
	"www.reddit.com",
	"old.reddit.com",
	"new.reddit.com",
	"redd.it",
	"i.redd.it",
	"v.redd.it",
	"preview.redd.it",
	"reddit.app.link",
}

const tokenBody = "[^\\s\"'`<>\\x00-\\x1f\\x7f]"

var (
	schemeRe = regexp.MustCompile(`(?i)(?:https?://|www\.)` + tokenBody + `+`)
	bareRe   = regexp.MustCompile(
		`(?i)(?:^|[\s(\[<>"'` + "`" + `,;*|])` +
			`((?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+(?:` + tldAlternation() + `)\b` +
			`(?:/` + tokenBody + `*)?)`)
)

const trailingJunk = ".,;:!?)]'\"<>"

// Normalizer extracts canonical external URLs from free text.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	platform []string
}

// New returns a Normalizer that treats the given domains as internal.
// An empty list falls back to DefaultPlatformDomains.
func New(platformDomains []string) *Normalizer {
	if len(platformDomains) == 0 {
		platformDomains = DefaultPlatformDomains
	}
	n := &Normalizer{platform: make([]string, 0, len(platformDomains))}
	for _, d := range platformDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			n.platform = append(n.platform, d)
		}
	}
	return n
}

var std = New(DefaultPlatformDomains)

// Extract runs the default Normalizer over text.
func Extract(text string) []string {
	return std.Extract(text)
}

// Extract returns the distinct external URLs found in text, sorted.
func (n *Normalizer) Extract(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	seen := make(map[string]struct{})
	spans := schemeRe.FindAllStringIndex(text, -1)
	for _, sp := range spans {
		if u, ok := n.clean(text[sp[0]:sp[1]]); ok {
			seen[u] = struct{}{}
		}
	}
	for _, m := range bareRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if overlaps(spans, start, end) || strings.HasPrefix(text[end:], "](") {
			continue
		}
		if u, ok := n.clean(text[start:end]); ok {
			seen[u] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// overlaps reports whether [start, end) intersects any of spans. A bare
// domain inside an explicit URL is part of that URL, not a second link.
func overlaps(spans [][]int, start, end int) bool {
	for _, sp := range spans {
		if start < sp[1] && sp[0] < end {
			return true
		}
	}
	return false
}

// IsPlatform reports whether raw mentions one of the platform domains.
func (n *Normalizer) IsPlatform(raw string) bool {
	lower := strings.ToLower(raw)
	for _, d := range n.platform {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

// ExternalLink validates a post's own link target. It returns the trimmed
// link when it is an absolute http(s) URL outside the platform domains.
func (n *Normalizer) ExternalLink(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || n.IsPlatform(raw) {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || !validHost(u.Hostname()) {
		return "", false
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return "", false
	}
	return raw, true
}

func (n *Normalizer) clean(tok string) (string, bool) {
	tok = trimTrailing(tok)
	if i := strings.LastIndex(tok, "]("); i >= 0 {
		tok = tok[i+2:]
	}
	tok = trimTrailing(cutResidue(tok))
	if tok == "" {
		return "", false
	}
	if !hasScheme(tok) {
		tok = "http://" + tok
	}

	u, err := url.Parse(tok)
	if err != nil || !validHost(u.Hostname()) {
		return "", false
	}
	if n.IsPlatform(tok) {
		return "", false
	}
	return tok, true
}

// trimTrailing strips sentence and markup punctuation from the end of tok.
// A closing bracket that balances an opener inside the token is kept.
func trimTrailing(tok string) string {
	for tok != "" {
		c := tok[len(tok)-1]
		if !strings.ContainsRune(trailingJunk, rune(c)) {
			break
		}
		if c == ')' && strings.Count(tok, "(") >= strings.Count(tok, ")") {
			break
		}
		if c == ']' && strings.Count(tok, "[") >= strings.Count(tok, "]") {
			break
		}
		tok = tok[:len(tok)-1]
	}
	return tok
}

// cutResidue truncates at the first unbalanced ')', any '<', or a '!' that
// is not part of a "#!" fragment.
func cutResidue(tok string) string {
	depth := 0
	for i := 0; i < len(tok); i++ {
		switch tok[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return tok[:i]
			}
			depth--
		case '<':
			return tok[:i]
		case '!':
			if i == 0 || tok[i-1] != '#' {
				return tok[:i]
			}
		}
	}
	return tok
}

func hasScheme(tok string) bool {
	lower := strings.ToLower(tok)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func validHost(host string) bool {
	if host == "" || !strings.Contains(host, ".") {
		return false
	}
	if strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") || strings.Contains(host, "..") {
		return false
	}
	return true
}
