package feed

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"golang.org/x/net/html/charset"
)

var mediaNamespaces = map[string]bool{
	"http://search.yahoo.com/mrss/": true,
	"http://search.yahoo.com/mrss":  true,
	"media":                         true,
}

// documentThumbnails returns the media:thumbnail candidates of every item or
// entry in document order, nested media:group and media:content included.
// It returns nil when doc cannot be read as XML.
func documentThumbnails(doc []byte) [][]Thumbnail {
	d := xml.NewDecoder(bytes.NewReader(doc))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel

	var (
		items     [][]Thumbnail
		depth     int
		itemDepth int
	)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return items
		}
		if err != nil {
			return nil
		}

		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			if itemDepth == 0 {
				if el.Name.Local == "item" || el.Name.Local == "entry" {
					itemDepth = depth
					items = append(items, nil)
				}
				continue
			}
			if el.Name.Local == "thumbnail" && mediaNamespaces[el.Name.Space] {
				attrs := make(map[string]string, len(el.Attr))
				for _, a := range el.Attr {
					attrs[a.Name.Local] = a.Value
				}
				last := len(items) - 1
				items[last] = appendThumbnail(items[last], attrs)
			}
		case xml.EndElement:
			if depth == itemDepth {
				itemDepth = 0
			}
			depth--
		}
	}
}

// thumbnailsFromItem collects media:thumbnail elements from gofeed's
// extension map, including the ones nested in media:group and media:content.
// The map is keyed by element name, so sibling order across kinds is lost.
func thumbnailsFromItem(item *gofeed.Item) []Thumbnail {
	media, ok := item.Extensions["media"]
	if !ok {
		return nil
	}

	var thumbs []Thumbnail
	thumbs = appendExtensions(thumbs, media["thumbnail"])
	for _, group := range media["group"] {
		thumbs = appendExtensions(thumbs, group.Children["thumbnail"])
		for _, content := range group.Children["content"] {
			thumbs = appendExtensions(thumbs, content.Children["thumbnail"])
		}
	}
	for _, content := range media["content"] {
		thumbs = appendExtensions(thumbs, content.Children["thumbnail"])
	}
	return thumbs
}

func appendExtensions(dst []Thumbnail, elems []ext.Extension) []Thumbnail {
	for _, el := range elems {
		dst = appendThumbnail(dst, el.Attrs)
	}
	return dst
}

func appendThumbnail(dst []Thumbnail, attrs map[string]string) []Thumbnail {
	u := strings.TrimSpace(attrs["url"])
	if u == "" {
		return dst
	}
	return append(dst, Thumbnail{
		URL:    u,
		Width:  atoiOrZero(attrs["width"]),
		Height: atoiOrZero(attrs["height"]),
	})
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
