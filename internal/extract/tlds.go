package extract

import (
	"regexp"
	"sort"
	"strings"
)

// bareTLDs is the allow-list for scheme-less domain detection. File
// extensions that double as country codes (md, py, rs, sh) are left out on
// purpose; they produce far more false positives than links in post text.
var bareTLDs = []string{
	"com", "net", "org", "edu", "gov", "mil", "int",
	"io", "co", "ai", "app", "dev", "me", "info", "biz", "xyz",
	"tech", "site", "online", "store", "shop", "blog", "news", "page",
	"cloud", "link", "club", "live", "pro", "one", "wiki", "social",
	"design", "studio", "space", "website", "digital", "agency", "email",
	"tv", "fm", "gg", "ly", "gl", "be", "cc", "ws", "so", "to", "im", "vc",
	"us", "uk", "ca", "de", "fr", "es", "it", "nl", "se", "no", "fi", "dk",
	"pl", "ru", "ch", "at", "au", "nz", "jp", "cn", "kr", "in", "br", "mx",
	"ar", "za", "ie", "eu",
}

// tldAlternation returns the allow-list as a regexp alternation, longest
// first so "community" is never cut short to "com".
func tldAlternation() string {
	tlds := append([]string(nil), bareTLDs...)
	sort.Slice(tlds, func(i, j int) bool {
		if len(tlds[i]) != len(tlds[j]) {
			return len(tlds[i]) > len(tlds[j])
		}
		return tlds[i] < tlds[j]
	})
	quoted := make([]string, len(tlds))
	for i, t := range tlds {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return strings.Join(quoted, "|")
}
