package feed

import (
	"fmt"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
)

// atomTranslator keeps gofeed's Atom mapping except for the publish time,
// which comes from <published> alone. An entry carrying only <updated> has
// no publish time.
type atomTranslator struct {
	gofeed.DefaultAtomTranslator
}

func (t *atomTranslator) Translate(feed interface{}) (*gofeed.Feed, error) {
	doc, ok := feed.(*atom.Feed)
	if !ok {
		return nil, fmt.Errorf("unexpected atom document type %T", feed)
	}
	result, err := t.DefaultAtomTranslator.Translate(doc)
	if err != nil {
		return nil, err
	}
	if len(result.Items) != len(doc.Entries) {
		return result, nil
	}
	for i, entry := range doc.Entries {
		item := result.Items[i]
		if entry == nil || item == nil {
			continue
		}
		item.Published = entry.Published
		item.PublishedParsed = entry.PublishedParsed
	}
	return result, nil
}

func newParser() *gofeed.Parser {
	p := gofeed.NewParser()
	p.AtomTranslator = &atomTranslator{}
	return p
}
