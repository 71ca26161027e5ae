package summarizer

import (
	"context"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	securitynet "tldrbot/internal/security/netutil"
)

const maxArticleBytes = 5 << 20

// Extractive fetches the article page, isolates the main content with
// readability and picks sentences with one of the ranking algorithms.
type Extractive struct {
	client    *http.Client
	logger    zerolog.Logger
	userAgent string
	strip     *bluemonday.Policy
}

var _ Summarizer = (*Extractive)(nil)

func NewExtractive(client *http.Client, logger zerolog.Logger, userAgent string) *Extractive {
	if client == nil {
		client = http.DefaultClient
	}
	return &Extractive{
		client:    client,
		logger:    logger.With().Str("component", "summarizer").Logger(),
		userAgent: userAgent,
		strip:     bluemonday.StrictPolicy(),
	}
}

func (s *Extractive) Summarize(ctx context.Context, req Request) (Result, error) {
	rank, ok := algorithms[req.Algorithm]
	if !ok {
		return Result{}, fmt.Errorf("%w: algorithm %q", ErrUnsupported, req.Algorithm)
	}
	if req.Length <= 0 {
		return Result{}, fmt.Errorf("%w: summary length must be positive", ErrUnsupported)
	}

	pageURL, body, err := s.fetch(ctx, req.URL)
	if err != nil {
		return Result{}, err
	}

	paragraphs, err := s.extractParagraphs(body, pageURL)
	if err != nil {
		return Result{}, err
	}

	sentences := buildSentences(paragraphs)
	if len(sentences) == 0 {
		return Result{Failed: true}, fmt.Errorf("%w: %s", ErrEmpty, req.URL)
	}

	selected := rank(sentences, req.Length)
	result := Result{
		Bullets:         make([]string, 0, len(selected)),
		HighlightedText: highlight(paragraphs, sentences, selected),
	}
	for _, i := range selected {
		result.Bullets = append(result.Bullets, sentences[i].text)
	}
	if len(result.Bullets) == 0 {
		return Result{Failed: true}, fmt.Errorf("%w: %s", ErrEmpty, req.URL)
	}

	s.logger.Debug().Str("url", req.URL).Str("algorithm", req.Algorithm).Int("bullets", len(result.Bullets)).Msg("Summarized article")
	return result, nil
}

func (s *Extractive) fetch(ctx context.Context, rawURL string) (*url.URL, []byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, nil, fmt.Errorf("%w: invalid article URL %q", ErrFetch, rawURL)
	}
	if err := securitynet.CheckHost(u.Hostname()); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html, application/xhtml+xml;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrFetch, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("%w: %s: unexpected response status %d", ErrFetch, rawURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, _ := mime.ParseMediaType(ct)
		if mediaType != "text/html" && mediaType != "application/xhtml+xml" && mediaType != "text/plain" {
			return nil, nil, fmt.Errorf("%w: content type %q", ErrUnsupported, mediaType)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading %s: %v", ErrFetch, rawURL, err)
	}
	return resp.Request.URL, body, nil
}

// extractParagraphs returns the plain-text blocks of the main content.
func (s *Extractive) extractParagraphs(body []byte, pageURL *url.URL) ([]string, error) {
	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtract, err)
	}

	var buf strings.Builder
	if err := article.RenderHTML(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtract, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(buf.String()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtract, err)
	}

	var paragraphs []string
	doc.Find("p, li, blockquote, pre").Each(func(_ int, sel *goquery.Selection) {
		// nested blocks are read through their outermost ancestor
		if sel.ParentsFiltered("p, li, blockquote, pre").Length() > 0 {
			return
		}
		if text := normalizeSpace(s.strip.Sanitize(sel.Text())); text != "" {
			paragraphs = append(paragraphs, html.UnescapeString(text))
		}
	})
	if len(paragraphs) == 0 {
		for _, block := range strings.Split(doc.Text(), "\n\n") {
			if text := normalizeSpace(block); text != "" {
				paragraphs = append(paragraphs, text)
			}
		}
	}
	return paragraphs, nil
}

// highlight escapes every paragraph and wraps the selected sentences in <mark>.
func highlight(paragraphs []string, sentences []sentence, selected []int) []string {
	chosen := make(map[int]bool, len(selected))
	for _, i := range selected {
		chosen[i] = true
	}

	out := make([]string, len(paragraphs))
	var b strings.Builder
	si := 0
	for pi := range paragraphs {
		b.Reset()
		for ; si < len(sentences) && sentences[si].paragraph == pi; si++ {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			text := html.EscapeString(sentences[si].text)
			if chosen[si] {
				b.WriteString("<mark>" + text + "</mark>")
			} else {
				b.WriteString(text)
			}
		}
		out[pi] = b.String()
	}
	return out
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
