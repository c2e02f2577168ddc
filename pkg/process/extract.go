package process

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ExtractLinks returns the absolute http(s) targets of the page's anchors.
//
// Order matters: the crawler descends into links in the order returned, and
// that order decides which URL is discovered first and therefore its
// download index. Links come back in document order, duplicates included,
// so the caller's visited set is the only deduplication.
//
// Relative hrefs resolve against the first <base href> in the document,
// itself resolved against pageURL, or against pageURL when there is none.
// Empty hrefs and anything that is not http or https after resolution
// (mailto:, javascript:, tel:) are dropped.
func ExtractLinks(body io.Reader, pageURL string) ([]string, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var hrefs []string
	baseSeen := false
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}
		switch n.Data {
		case "base":
			if baseSeen {
				continue
			}
			if href, ok := attr(n, "href"); ok {
				baseSeen = true
				if b, err := base.Parse(href); err == nil {
					base = b
				}
			}
		case "a":
			if href, ok := attr(n, "href"); ok && href != "" {
				hrefs = append(hrefs, href)
			}
		}
	}

	// <base> applies to the whole document, also to anchors before it.
	links := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		if abs := resolve(href, base); abs != "" {
			links = append(links, abs)
		}
	}
	return links, nil
}

// attr returns the trimmed value of the first attribute named key.
func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val), true
		}
	}
	return "", false
}

// Resolve resolves href against the page it was found on. It returns ""
// when either side does not parse or the result is not http(s).
func Resolve(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return resolve(strings.TrimSpace(href), base)
}

func resolve(ref string, base *url.URL) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}

	abs := base.ResolveReference(u)
	switch strings.ToLower(abs.Scheme) {
	case "http", "https":
		return abs.String()
	default:
		return ""
	}
}
