package publisher

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// RenderedItem is one post element found in a page snapshot.
type RenderedItem struct {
	URL    string
	Handle string
	// Annotated items carry a social-context banner (pinned, reposted)
	// and are never the post we just created.
	Annotated bool
}

// RenderedItems parses a page snapshot and returns the rendered post
// elements in document order, each with the permalink taken from the
// anchor wrapping its timestamp. Items without a usable permalink are
// dropped.
func RenderedItems(page, baseURL, itemTestID string) ([]RenderedItem, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	var items []RenderedItem
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "article" && attr(n, "data-testid") == itemTestID {
			if it, ok := itemFrom(n, baseURL); ok {
				items = append(items, it)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return items, nil
}

func itemFrom(article *html.Node, baseURL string) (RenderedItem, bool) {
	var href string
	if t := find(article, func(n *html.Node) bool { return n.Data == "time" }); t != nil {
		for p := t.Parent; p != nil && p != article; p = p.Parent {
			if p.Type == html.ElementNode && p.Data == "a" {
				href = attr(p, "href")
				break
			}
		}
	}
	if href == "" {
		return RenderedItem{}, false
	}

	link, ok := Permalink(absolute(baseURL, href))
	if !ok {
		return RenderedItem{}, false
	}
	annotated := find(article, func(n *html.Node) bool { return attr(n, "data-testid") == "socialContext" }) != nil
	return RenderedItem{URL: link, Handle: permalinkHandle(link), Annotated: annotated}, true
}

func find(root *html.Node, match func(*html.Node) bool) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if n := find(c, match); n != nil {
			return n
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
