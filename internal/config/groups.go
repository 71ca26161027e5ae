package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tldrbot/internal/feed"
)

var ErrNoGroups = errors.New("no feed groups configured")

type GroupsFile struct {
	Groups []GroupConfig `yaml:"groups"`
}

// GroupConfig is one crawl target. Either URL (a site or feed to discover
// from) or Feeds (explicit feed URLs) must be set.
type GroupConfig struct {
	SiteName     string   `yaml:"site_name"`
	URL          string   `yaml:"url"`
	Feeds        []string `yaml:"feeds"`
	Category     string   `yaml:"category"`
	Algorithm    string   `yaml:"algorithm"`
	Length       int      `yaml:"length"`
	SkipPrefixes []string `yaml:"skip_prefixes"`
}

func LoadGroups(path string) ([]feed.Group, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading groups file: %w", err)
	}
	return ParseGroups(raw)
}

func ParseGroups(raw []byte) ([]feed.Group, error) {
	var file GroupsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing groups file: %w", err)
	}
	if len(file.Groups) == 0 {
		return nil, ErrNoGroups
	}

	groups := make([]feed.Group, 0, len(file.Groups))
	for i, gc := range file.Groups {
		g, err := gc.Group()
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// Group converts the YAML shape into a feed.Group with defaults applied.
func (gc GroupConfig) Group() (feed.Group, error) {
	url := strings.TrimSpace(gc.URL)
	feeds := make([]string, 0, len(gc.Feeds))
	for _, f := range gc.Feeds {
		if f = strings.TrimSpace(f); f != "" {
			feeds = append(feeds, f)
		}
	}
	if url == "" && len(feeds) == 0 {
		return feed.Group{}, errors.New("either url or feeds is required")
	}

	g := feed.Group{
		URL:          url,
		FeedURLs:     feeds,
		SiteName:     strings.TrimSpace(gc.SiteName),
		Category:     strings.TrimSpace(gc.Category),
		Algorithm:    strings.TrimSpace(gc.Algorithm),
		Length:       gc.Length,
		SkipPrefixes: append([]string(nil), gc.SkipPrefixes...),
	}
	return g.WithDefaults(), nil
}
