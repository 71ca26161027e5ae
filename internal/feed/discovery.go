package feed

import (
	"context"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

var feedLinkTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
	"application/rdf+xml":  true,
}

// DiscoverFeeds fetches siteURL and returns the feed links it advertises in
// document order. Fetch failures are returned; an unparseable page yields
// no links. Callers fall back to siteURL itself when the result is empty.
func (f *Fetcher) DiscoverFeeds(ctx context.Context, siteURL string) ([]string, error) {
	resp, err := f.get(ctx, siteURL, pageAccept)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	base := resp.Request.URL
	links := ExtractFeedLinks(io.LimitReader(resp.Body, maxPageBytes), base)
	f.logger.Debug().Str("site", siteURL).Int("feeds", len(links)).Msg("Discovered feeds")
	return links, nil
}

// ExtractFeedLinks returns the href of every <link> whose type names a feed
// format. Relative hrefs are resolved against base when it is non-nil.
func ExtractFeedLinks(r io.Reader, base *url.URL) []string {
	doc, err := html.Parse(r)
	if err != nil {
		return nil
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "link" {
			var typ, href string
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "type":
					typ = strings.ToLower(strings.TrimSpace(a.Val))
				case "href":
					href = strings.TrimSpace(a.Val)
				}
			}
			if feedLinkTypes[typ] && href != "" {
				links = append(links, resolve(base, href))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
