package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

const (
	maxFeedBytes = 5 << 20
	maxPageBytes = 5 << 20

	feedAccept = "application/rss+xml, application/atom+xml, application/rdf+xml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8"
	pageAccept = "text/html, application/xhtml+xml;q=0.9, */*;q=0.8"
)

type Fetcher struct {
	client    *http.Client
	parser    *gofeed.Parser
	logger    zerolog.Logger
	userAgent string
}

func NewFetcher(client *http.Client, logger zerolog.Logger, userAgent string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		client:    client,
		parser:    newParser(),
		logger:    logger.With().Str("component", "feed").Logger(),
		userAgent: userAgent,
	}
}

// FetchFeed downloads and parses one feed. Network failures and non-2xx
// responses wrap ErrFetch; undecodable documents wrap ErrParse. A feed
// without items is not an error.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string) (FetchResult, error) {
	result := FetchResult{URL: feedURL}

	resp, err := f.get(ctx, feedURL, feedAccept)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return result, fmt.Errorf("%w: %s: reading body: %v", ErrFetch, feedURL, err)
	}

	parsed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("%w: %s: %v", ErrParse, feedURL, err)
	}
	if parsed == nil {
		return result, fmt.Errorf("%w: %s: empty document", ErrParse, feedURL)
	}

	result.FeedTitle = parsed.Title
	ordered := documentThumbnails(body)
	if len(ordered) != len(parsed.Items) {
		ordered = nil
	}
	result.Entries = make([]Entry, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		if item == nil {
			continue
		}
		e := entryFromItem(item)
		if ordered != nil {
			e.Thumbnails = ordered[i]
		}
		result.Entries = append(result.Entries, e)
	}

	f.logger.Debug().Str("feed", feedURL).Str("title", parsed.Title).Int("entries", len(result.Entries)).Msg("Fetched feed")
	return result, nil
}

// get validates the destination and performs a GET, rejecting non-2xx.
func (f *Fetcher) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrFetch, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", accept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: unexpected response status %d", ErrFetch, rawURL, resp.StatusCode)
	}
	return resp, nil
}

func entryFromItem(item *gofeed.Item) Entry {
	e := Entry{
		Title:      item.Title,
		Link:       NormalizeLink(strings.TrimSpace(item.Link)),
		Thumbnails: thumbnailsFromItem(item),
	}
	if item.PublishedParsed != nil {
		published := *item.PublishedParsed
		e.Published = &published
	}
	return e
}
