package feed

import (
	"time"
)

const (
	DefaultSiteName  = "None"
	DefaultCategory  = "Uncategorized"
	DefaultAlgorithm = "frequency"
	DefaultLength    = 5
)

// Group is the configuration for one crawl run.
type Group struct {
	// URL is a site page to run discovery on. Ignored when FeedURLs is set.
	URL          string
	FeedURLs     []string
	SiteName     string
	Category     string
	Algorithm    string
	Length       int
	SkipPrefixes []string
}

// WithDefaults fills the display name, category and summarizer settings.
func (g Group) WithDefaults() Group {
	if g.SiteName == "" {
		g.SiteName = DefaultSiteName
	}
	if g.Category == "" {
		g.Category = DefaultCategory
	}
	if g.Algorithm == "" {
		g.Algorithm = DefaultAlgorithm
	}
	if g.Length <= 0 {
		g.Length = DefaultLength
	}
	return g
}

type Thumbnail struct {
	URL    string
	Width  int
	Height int
}

// Dimension is the longer side of the thumbnail.
func (t Thumbnail) Dimension() int {
	if t.Width > t.Height {
		return t.Width
	}
	return t.Height
}

// Entry is one item of a parsed feed. Link has its fragment stripped.
type Entry struct {
	Title      string
	Link       string
	Published  *time.Time
	Thumbnails []Thumbnail
}

type FetchResult struct {
	URL       string
	FeedTitle string
	Entries   []Entry
}
