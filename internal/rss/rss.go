// Package rss renders committed summaries as an RSS 2.0 digest.
package rss

import (
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tldrbot/internal/database"
)

// RSS is the root element of an RSS feed.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	AtomNS  string   `xml:"xmlns:atom,attr"`
	Channel Channel  `xml:"channel"`
}

// Channel represents the channel element in an RSS feed.
type Channel struct {
	XMLName       xml.Name `xml:"channel"`
	Title         string   `xml:"title"`
	Link          string   `xml:"link"`
	Description   string   `xml:"description"`
	Language      string   `xml:"language,omitempty"`
	LastBuildDate string   `xml:"lastBuildDate,omitempty"` // RFC1123Z
	SelfLink      AtomLink `xml:"atom:link"`
	Items         []Item   `xml:"item"`
}

type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// Item represents an item element in an RSS feed.
type Item struct {
	XMLName     xml.Name   `xml:"item"`
	Title       string     `xml:"title"`
	Link        string     `xml:"link"`
	Description string     `xml:"description,omitempty"`
	Categories  []Category `xml:"category"`
	PubDate     string     `xml:"pubDate,omitempty"` // RFC1123Z
	GUID        GUID       `xml:"guid"`
}

// Category is an RSS category. Domain names the taxonomy the value belongs to.
type Category struct {
	Value  string `xml:",chardata"`
	Domain string `xml:"domain,attr,omitempty"`
}

// sourceDomain tags the category carrying the name of the site an article
// came from. RSS <source> would need the site's feed URL, which is not stored.
const sourceDomain = "source"

type GUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink bool   `xml:"isPermaLink,attr"`
}

// Site describes the channel of the digest.
type Site struct {
	Title       string
	URL         string
	Description string
}

// Build assembles the digest. Article links are the stored canonical URLs
// made absolute against site.URL; the description lists the bullets.
func Build(site Site, articles []database.ArticleSummary, now time.Time) RSS {
	siteURL := strings.TrimRight(site.URL, "/")
	feed := RSS{
		Version: "2.0",
		AtomNS:  "http://www.w3.org/2005/Atom",
		Channel: Channel{
			Title:         site.Title,
			Link:          siteURL + "/",
			Description:   site.Description,
			Language:      "en-us",
			LastBuildDate: now.Format(time.RFC1123Z),
			SelfLink: AtomLink{
				Href: siteURL + "/rss.xml",
				Rel:  "self",
				Type: "application/rss+xml",
			},
		},
	}

	for _, a := range articles {
		link := a.URL
		if strings.HasPrefix(link, "/") {
			link = siteURL + link
		}
		item := Item{
			Title:       a.Title,
			Link:        link,
			Description: bulletList(a.Bullets),
			GUID:        GUID{Value: link, IsPermaLink: true},
		}
		if a.Category != "" {
			item.Categories = append(item.Categories, Category{Value: a.Category})
		}
		if a.Source != "" {
			item.Categories = append(item.Categories, Category{Value: a.Source, Domain: sourceDomain})
		}
		if a.PubDate != nil {
			item.PubDate = a.PubDate.Format(time.RFC1123Z)
		}
		feed.Channel.Items = append(feed.Channel.Items, item)
	}
	return feed
}

func bulletList(bullets []string) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, bullet := range bullets {
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(bullet))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

// Write encodes feed as indented XML with the XML header.
func Write(w io.Writer, feed RSS) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(feed); err != nil {
		return fmt.Errorf("encoding RSS feed: %w", err)
	}
	return enc.Close()
}

// WriteFile replaces path with the encoded feed.
func WriteFile(path string, feed RSS) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rss-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	err = Write(tmp, feed)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
