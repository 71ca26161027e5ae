package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// Sample XML feed data
const (
	sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
	<title>Sample RSS Feed</title>
	<link>http://example.com/rss</link>
	<description>This is a sample RSS feed.</description>
	<item>
		<title>RSS Entry 1</title>
		<link>http://example.com/rss/entry1?ref=feed#comments</link>
		<pubDate>Mon, 01 Jan 2023 10:00:00 +0000</pubDate>
		<media:thumbnail width="66" height="49" url="http://example.com/img/small.jpg"/>
		<media:thumbnail width="976" height="549" url="http://example.com/img/large.jpg"/>
	</item>
	<item>
		<title>Video: Something moving</title>
		<link>http://example.com/rss/video</link>
	</item>
	<item>
		<title>RSS Entry 3</title>
		<link>http://example.com/rss/entry3</link>
		<media:group>
			<media:content url="http://example.com/v.mp4">
				<media:thumbnail width="120" height="90" url="http://example.com/img/grouped.png"/>
			</media:content>
		</media:group>
	</item>
</channel>
</rss>`

	sampleAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
	<title>Sample Atom Feed</title>
	<link href="http://example.com/atom"/>
	<updated>2023-01-02T11:00:00Z</updated>
	<id>urn:uuid:60a76c80-d399-11d9-b93C-0003939e0af6</id>
	<entry>
		<title>Atom Entry 1</title>
		<link href="http://example.com/atom/entry1#top"/>
		<id>urn:uuid:1225c695-cfb8-4ebb-aaaa-80da344efa6a</id>
		<published>2023-01-01T10:00:00Z</published>
		<updated>2023-01-01T12:00:00Z</updated>
	</entry>
</feed>`

	updatedOnlyAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
	<title>Revisions</title>
	<updated>2023-01-02T11:00:00Z</updated>
	<entry>
		<title>Edited Entry</title>
		<link href="http://example.com/atom/edited"/>
		<updated>2023-01-01T12:00:00Z</updated>
	</entry>
	<entry>
		<title>Dated Entry</title>
		<link href="http://example.com/atom/dated"/>
		<published>2023-01-01T09:30:00Z</published>
	</entry>
</feed>`

	mixedMediaRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
	<title>Mixed Media</title>
	<item>
		<title>Tie</title>
		<link>http://example.com/rss/tie</link>
		<media:content url="http://example.com/clip.mp4">
			<media:thumbnail width="400" height="300" url="http://example.com/img/content.jpg"/>
		</media:content>
		<media:thumbnail width="300" height="400" url="http://example.com/img/top.jpg"/>
		<media:group>
			<media:thumbnail width="50" height="50" url="http://example.com/img/grouped.jpg"/>
		</media:group>
	</item>
</channel>
</rss>`

	emptyRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Empty</title><link>http://example.com</link></channel></rss>`

	nonXMLContent = `This is not XML content at all. It's just plain text.`

	samplePage = `<!DOCTYPE html>
<html><head>
	<title>Example News</title>
	<link rel="stylesheet" href="/style.css">
	<link rel="alternate" type="application/rss+xml" title="Top stories" href="/feeds/top.xml">
	<link rel="alternate" type="text/html" href="/mobile">
	<link rel="alternate" type="APPLICATION/ATOM+XML" href="http://other.example.com/atom.xml">
	<link rel="alternate" type="application/rss+xml" href="">
</head><body><p>hello</p></body></html>`
)

// newMockFeedServer sets up an httptest.Server with a given handler.
func newMockFeedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func staticHandler(contentType, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write([]byte(body))
	}
}

func newTestFetcher() *Fetcher {
	return NewFetcher(&http.Client{Timeout: 5 * time.Second}, zerolog.Nop(), "tldrbot-test")
}

func TestFetchFeed_RSS(t *testing.T) {
	var gotUA string
	server := newMockFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		staticHandler("application/rss+xml", sampleRSS)(w, r)
	})

	result, err := newTestFetcher().FetchFeed(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchFeed() error = %v", err)
	}
	if gotUA != "tldrbot-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if result.FeedTitle != "Sample RSS Feed" {
		t.Errorf("FeedTitle = %q", result.FeedTitle)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(result.Entries))
	}

	first := result.Entries[0]
	if first.Link != "http://example.com/rss/entry1?ref=feed" {
		t.Errorf("fragment not stripped: %q", first.Link)
	}
	if first.Published == nil {
		t.Fatal("expected publish time for first entry")
	}
	if want := time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC); !first.Published.Equal(want) {
		t.Errorf("Published = %v, want %v", first.Published, want)
	}
	if len(first.Thumbnails) != 2 {
		t.Fatalf("expected 2 thumbnails, got %d", len(first.Thumbnails))
	}
	if first.Thumbnails[1] != (Thumbnail{URL: "http://example.com/img/large.jpg", Width: 976, Height: 549}) {
		t.Errorf("unexpected thumbnail %+v", first.Thumbnails[1])
	}

	video := result.Entries[1]
	if video.Published != nil {
		t.Errorf("entry without pubDate must have no publish time, got %v", video.Published)
	}
	if len(video.Thumbnails) != 0 {
		t.Errorf("expected no thumbnails, got %v", video.Thumbnails)
	}

	grouped := result.Entries[2]
	if len(grouped.Thumbnails) != 1 || grouped.Thumbnails[0].URL != "http://example.com/img/grouped.png" {
		t.Errorf("nested media thumbnail not collected: %+v", grouped.Thumbnails)
	}
}

func TestFetchFeed_ThumbnailsInDocumentOrder(t *testing.T) {
	server := newMockFeedServer(t, staticHandler("application/rss+xml", mixedMediaRSS))

	result, err := newTestFetcher().FetchFeed(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchFeed() error = %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(result.Entries))
	}

	var urls []string
	for _, th := range result.Entries[0].Thumbnails {
		urls = append(urls, th.URL)
	}
	want := []string{
		"http://example.com/img/content.jpg",
		"http://example.com/img/top.jpg",
		"http://example.com/img/grouped.jpg",
	}
	if strings.Join(urls, " ") != strings.Join(want, " ") {
		t.Errorf("thumbnails = %v, want %v", urls, want)
	}
	if got := ThumbnailURL(result.Entries[0].Thumbnails); got != want[0] {
		t.Errorf("tie should go to the first thumbnail in the document, got %q", got)
	}
}

func TestDocumentThumbnails_NotXML(t *testing.T) {
	if got := documentThumbnails([]byte(`{"version": "https://jsonfeed.org/version/1"}`)); len(got) != 0 {
		t.Errorf("expected no items for a JSON document, got %v", got)
	}
}

func TestFetchFeed_Atom(t *testing.T) {
	server := newMockFeedServer(t, staticHandler("application/atom+xml", sampleAtom))

	result, err := newTestFetcher().FetchFeed(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchFeed() error = %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(result.Entries))
	}
	e := result.Entries[0]
	if e.Link != "http://example.com/atom/entry1" {
		t.Errorf("Link = %q", e.Link)
	}
	if e.Published == nil || !e.Published.Equal(time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Published should come from <published>, got %v", e.Published)
	}
}

func TestFetchFeed_AtomIgnoresUpdated(t *testing.T) {
	server := newMockFeedServer(t, staticHandler("application/atom+xml", updatedOnlyAtom))

	result, err := newTestFetcher().FetchFeed(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchFeed() error = %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Entries))
	}
	if p := result.Entries[0].Published; p != nil {
		t.Errorf("entry with only <updated> should have no publish time, got %v", p)
	}
	if p := result.Entries[1].Published; p == nil || !p.Equal(time.Date(2023, 1, 1, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("Published = %v, want 2023-01-01 09:30 UTC", p)
	}
	if result.Entries[0].Link != "http://example.com/atom/edited" {
		t.Errorf("Link = %q", result.Entries[0].Link)
	}
}

func TestFetchFeed_Empty(t *testing.T) {
	server := newMockFeedServer(t, staticHandler("application/rss+xml", emptyRSS))

	result, err := newTestFetcher().FetchFeed(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("empty feed should not be an error, got %v", err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(result.Entries))
	}
}

func TestFetchFeed_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			want: ErrFetch,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: ErrFetch,
		},
		{
			name:    "not a feed",
			handler: staticHandler("text/plain", nonXMLContent),
			want:    ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newMockFeedServer(t, tt.handler)
			_, err := newTestFetcher().FetchFeed(context.Background(), server.URL)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFetchFeed_InvalidURL(t *testing.T) {
	f := newTestFetcher()
	for _, raw := range []string{"ftp://example.com/feed", "not a url", "http://10.0.0.1/feed.xml"} {
		if _, err := f.FetchFeed(context.Background(), raw); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("FetchFeed(%q) expected ErrInvalidURL, got %v", raw, err)
		}
	}
}

func TestFetchFeed_Timeout(t *testing.T) {
	server := newMockFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	f := NewFetcher(&http.Client{Timeout: 100 * time.Millisecond}, zerolog.Nop(), "")
	if _, err := f.FetchFeed(context.Background(), server.URL); !errors.Is(err, ErrFetch) {
		t.Errorf("expected ErrFetch on timeout, got %v", err)
	}
}

func TestDiscoverFeeds(t *testing.T) {
	server := newMockFeedServer(t, staticHandler("text/html", samplePage))

	links, err := newTestFetcher().DiscoverFeeds(context.Background(), server.URL+"/section/")
	if err != nil {
		t.Fatalf("DiscoverFeeds() error = %v", err)
	}
	want := []string{server.URL + "/feeds/top.xml", "http://other.example.com/atom.xml"}
	if len(links) != len(want) {
		t.Fatalf("got %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %q, want %q", i, links[i], want[i])
		}
	}
}

func TestDiscoverFeeds_NoFeeds(t *testing.T) {
	server := newMockFeedServer(t, staticHandler("text/html", "<html><head><title>x</title></head></html>"))

	links, err := newTestFetcher().DiscoverFeeds(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("DiscoverFeeds() error = %v", err)
	}
	if len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestDiscoverFeeds_FetchError(t *testing.T) {
	server := newMockFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := newTestFetcher().DiscoverFeeds(context.Background(), server.URL); !errors.Is(err, ErrFetch) {
		t.Errorf("expected ErrFetch, got %v", err)
	}
}

func TestExtractFeedLinks_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"<<<>>>",
		"<html><head><link type='application/rss+xml' href='/a.xml'",
		"\x00\x01\x02 binary junk",
		sampleRSS,
	}
	for _, in := range inputs {
		// Must not panic; whatever comes back must be well-formed strings.
		for _, l := range ExtractFeedLinks(strings.NewReader(in), nil) {
			if l == "" {
				t.Errorf("empty link extracted from %q", in)
			}
		}
	}
}

func TestExtractFeedLinks_NoBase(t *testing.T) {
	links := ExtractFeedLinks(strings.NewReader(samplePage), nil)
	if len(links) != 2 || links[0] != "/feeds/top.xml" {
		t.Errorf("unexpected links %v", links)
	}

	base, _ := url.Parse("https://news.example.com/world/index.html")
	links = ExtractFeedLinks(strings.NewReader(samplePage), base)
	if links[0] != "https://news.example.com/feeds/top.xml" {
		t.Errorf("relative href not resolved: %q", links[0])
	}
}

func TestNormalizeLink(t *testing.T) {
	cases := map[string]string{
		"http://x.com/a?b=1#section2": "http://x.com/a?b=1",
		"http://x.com/a":              "http://x.com/a",
		"http://x.com/a#":             "http://x.com/a",
		"http://x.com/a#b#c":          "http://x.com/a",
		"":                            "",
	}
	for in, want := range cases {
		if got := NormalizeLink(in); got != want {
			t.Errorf("NormalizeLink(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGroupWithDefaults(t *testing.T) {
	g := Group{URL: "http://example.com"}.WithDefaults()
	if g.SiteName != DefaultSiteName || g.Category != DefaultCategory || g.Algorithm != DefaultAlgorithm || g.Length != DefaultLength {
		t.Errorf("defaults not applied: %+v", g)
	}

	g = Group{SiteName: "BBC", Category: "World", Algorithm: "lead", Length: 2}.WithDefaults()
	if g.SiteName != "BBC" || g.Category != "World" || g.Algorithm != "lead" || g.Length != 2 {
		t.Errorf("explicit values overwritten: %+v", g)
	}
}
