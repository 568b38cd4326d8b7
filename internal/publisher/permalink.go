package publisher

import (
	"net/url"
	"regexp"
	"strings"
)

var permalinkRe = regexp.MustCompile(`^https?://(?:www\.|mobile\.)?(?:x|twitter)\.com/([A-Za-z0-9_]{1,15})/status/(\d+)`)

// Permalink reports whether raw has the shape of a permanent post URL and
// returns it in canonical form, without query or trailing path such as
// /analytics or /photo/1.
func Permalink(raw string) (string, bool) {
	m := permalinkRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", false
	}
	return "https://x.com/" + m[1] + "/status/" + m[2], true
}

// permalinkHandle returns the account handle of a canonical permalink.
func permalinkHandle(link string) string {
	m := permalinkRe.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}

// absolute resolves href against base. Unparseable input yields "".
func absolute(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	h, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(h).String()
}
