package newsbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tldrbot/internal/feed"
	"tldrbot/internal/metrics"
	"tldrbot/internal/registry"
	"tldrbot/internal/summarizer"
)

// ErrAllFeedsFailed is returned by Crawl when no feed of the group could be fetched.
var ErrAllFeedsFailed = errors.New("all feeds failed")

// FeedSource fetches and discovers feeds.
type FeedSource interface {
	DiscoverFeeds(ctx context.Context, siteURL string) ([]string, error)
	FetchFeed(ctx context.Context, feedURL string) (feed.FetchResult, error)
}

// Deps are the collaborators shared by every NewsBot.
type Deps struct {
	Feeds      FeedSource
	Summarizer summarizer.Summarizer
	Registry   Resolver
	Committer  *Committer
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// NewsBot crawls a single feed group.
type NewsBot struct {
	group    feed.Group
	feeds    []string
	category registry.Handle
	filter   *feed.TitleFilter
	deps     Deps
	logger   zerolog.Logger
}

// New prepares a crawl of group. Explicit feed URLs are used as given;
// otherwise group.URL is run through discovery, falling back to the URL
// itself when the page advertises no feeds. The group's category is
// resolved, and created if needed, before New returns.
func New(ctx context.Context, group feed.Group, deps Deps) (*NewsBot, error) {
	group = group.WithDefaults()
	logger := deps.Logger.With().Str("component", "newsbot").Str("group", group.SiteName).Logger()

	feeds := group.FeedURLs
	if len(feeds) == 0 {
		if group.URL == "" {
			return nil, fmt.Errorf("group %q has neither a URL nor feeds", group.SiteName)
		}
		discovered, err := deps.Feeds.DiscoverFeeds(ctx, group.URL)
		if err != nil {
			return nil, fmt.Errorf("discovering feeds for %s: %w", group.URL, err)
		}
		if len(discovered) == 0 {
			logger.Debug().Str("url", group.URL).Msg("No feeds advertised, using URL as feed")
			discovered = []string{group.URL}
		}
		feeds = discovered
	}

	category, err := deps.Registry.Category(ctx, group.Category)
	if err != nil {
		return nil, fmt.Errorf("resolving category %q: %w", group.Category, err)
	}

	return &NewsBot{
		group:    group,
		feeds:    feeds,
		category: category,
		filter:   feed.NewTitleFilter(group.SkipPrefixes...),
		deps:     deps,
		logger:   logger,
	}, nil
}

func (b *NewsBot) Feeds() []string { return b.feeds }

func (b *NewsBot) Category() registry.Handle { return b.category }

// Crawl processes every entry of every feed in order. With commit set each
// summarized article is committed as soon as it is built. Per-entry failures
// are recorded in the report and never stop the crawl.
func (b *NewsBot) Crawl(ctx context.Context, commit bool) (rep Report, err error) {
	start := time.Now()
	defer func() { b.deps.Metrics.ObserveCrawl(b.group.SiteName, start, err) }()

	rep = Report{Group: b.group.SiteName, Feeds: b.feeds}
	if commit && b.deps.Committer == nil {
		return rep, errors.New("commit requested without a committer")
	}

	var fetchFailures int
	var lastErr error
	for _, feedURL := range b.feeds {
		result, err := b.deps.Feeds.FetchFeed(ctx, feedURL)
		if err != nil {
			rep.FeedErrors++
			b.deps.Metrics.ObserveFeedError(b.group.SiteName)
			if errors.Is(err, feed.ErrParse) {
				b.logger.Warn().Err(err).Str("feed", feedURL).Msg("Feed could not be parsed, skipping")
				continue
			}
			fetchFailures++
			lastErr = err
			b.logger.Error().Err(err).Str("feed", feedURL).Msg("Feed fetch failed")
			continue
		}
		if len(result.Entries) == 0 {
			b.logger.Info().Str("feed", feedURL).Msg("Feed has no entries")
			continue
		}

		for _, entry := range result.Entries {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			a, err := b.process(ctx, entry, commit)
			if err != nil {
				return rep, err
			}
			b.deps.Metrics.ObserveArticle(b.group.SiteName, string(a.Outcome))
			rep.add(a)
		}
	}

	if fetchFailures > 0 && fetchFailures == len(b.feeds) {
		return rep, fmt.Errorf("%w: %w", ErrAllFeedsFailed, lastErr)
	}

	b.logger.Info().
		Int("processed", rep.Processed).
		Int("committed", rep.Committed).
		Int("duplicates", rep.Duplicates).
		Int("skipped", rep.SkippedVideo).
		Int("summary_failed", rep.SummaryFailed).
		Int("feed_errors", rep.FeedErrors).
		Dur("took", time.Since(start)).
		Msg("Crawl finished")
	return rep, nil
}

// process builds the Article for one entry. The only error it returns is the
// context's, when the crawl was cancelled mid-entry.
func (b *NewsBot) process(ctx context.Context, entry feed.Entry, commit bool) (*Article, error) {
	a := &Article{
		Title:      entry.Title,
		SourceURL:  feed.NormalizeLink(entry.Link),
		SourceName: b.group.SiteName,
		Category:   b.category.Name,
		CategoryID: b.category.ID,
		PubDate:    entry.Published,
		ImageURL:   feed.ThumbnailURL(entry.Thumbnails),
	}

	if b.filter.Evaluate(a.Title) == feed.FilterDiscard {
		a.Outcome = OutcomeSkipped
		b.logger.Info().Str("title", a.Title).Str("url", a.SourceURL).Msg("Skipping filtered entry")
		return a, nil
	}

	res, err := b.deps.Summarizer.Summarize(ctx, summarizer.Request{
		URL:       a.SourceURL,
		Algorithm: b.group.Algorithm,
		Length:    b.group.Length,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if reason, level := classifySummary(res, err); reason != "" {
		a.SummaryFailed = true
		a.Outcome = OutcomeSummaryFailed
		b.deps.Metrics.ObserveSummaryFailure(b.group.SiteName, reason)
		b.logger.WithLevel(level).Err(err).
			Str("reason", reason).
			Str("title", a.Title).
			Str("url", a.SourceURL).
			Msg("Summarization failed, skipping")
		return a, nil
	}
	a.Bullets = res.Bullets
	a.HighlightedText = res.HighlightedText
	a.Outcome = OutcomeSummarized

	if !commit {
		return a, nil
	}
	if _, err := b.deps.Committer.Commit(ctx, a); err != nil {
		b.logger.Error().Err(err).Str("title", a.Title).Str("url", a.SourceURL).Msg("Commit failed")
	}
	return a, nil
}

// classifySummary names the reason a summarizer result is unusable and the
// level to log it at. The reason is empty for a usable result.
func classifySummary(res summarizer.Result, err error) (string, zerolog.Level) {
	switch {
	case err == nil && !res.Failed && len(res.Bullets) > 0:
		return "", zerolog.NoLevel
	case err == nil, errors.Is(err, summarizer.ErrEmpty):
		return "empty", zerolog.InfoLevel
	case errors.Is(err, summarizer.ErrUnsupported):
		return "unsupported", zerolog.InfoLevel
	case errors.Is(err, summarizer.ErrFetch):
		return "fetch", zerolog.WarnLevel
	case errors.Is(err, summarizer.ErrExtract):
		return "extract", zerolog.WarnLevel
	default:
		return "other", zerolog.ErrorLevel
	}
}
