package newsbot

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tldrbot/internal/database"
	"tldrbot/internal/imagestore"
	"tldrbot/internal/metrics"
	"tldrbot/internal/registry"
)

// ErrNotCommitted is returned for articles whose summary failed.
var ErrNotCommitted = errors.New("article not committed")

// ArticleStore is the persistence boundary used by the Committer.
type ArticleStore interface {
	FindArticleBySourceURL(ctx context.Context, sourceURL string) (database.Article, error)
	InsertArticle(ctx context.Context, a database.Article, articleBase string) (database.Article, error)
}

// Resolver resolves category and source names to stored rows.
type Resolver interface {
	Category(ctx context.Context, name string) (registry.Handle, error)
	Source(ctx context.Context, name string) (registry.Handle, error)
}

// ImageRetriever downloads a thumbnail and returns its servable path.
type ImageRetriever interface {
	Retrieve(ctx context.Context, imageURL string) (string, error)
}

// Committer dedups articles by source URL and persists new ones.
type Committer struct {
	store       ArticleStore
	registry    Resolver
	images      ImageRetriever
	articleBase string
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewCommitter builds a Committer. images and m may be nil.
func NewCommitter(store ArticleStore, reg Resolver, images ImageRetriever, articleBase string, m *metrics.Metrics, logger zerolog.Logger) *Committer {
	return &Committer{
		store:       store,
		registry:    reg,
		images:      images,
		articleBase: articleBase,
		metrics:     m,
		logger:      logger.With().Str("component", "commit").Logger(),
	}
}

// Commit persists a and returns its canonical URL. An article already stored
// under the same source URL is left untouched and its existing URL returned.
// a.Outcome, a.URL and a.ImagePath are updated in place.
func (c *Committer) Commit(ctx context.Context, a *Article) (string, error) {
	if a.SummaryFailed {
		a.Outcome = OutcomeSummaryFailed
		return "", ErrNotCommitted
	}

	source, err := c.registry.Source(ctx, a.SourceName)
	if err != nil {
		a.Outcome = OutcomeCommitFailed
		return "", fmt.Errorf("resolving source: %w", err)
	}

	existing, err := c.store.FindArticleBySourceURL(ctx, a.SourceURL)
	switch {
	case err == nil:
		return c.duplicate(a, existing), nil
	case !errors.Is(err, database.ErrNotFound):
		a.Outcome = OutcomeCommitFailed
		return "", fmt.Errorf("dedup lookup: %w", err)
	}

	a.ImagePath = c.retrieveImage(ctx, a)

	stored, err := c.store.InsertArticle(ctx, database.Article{
		Title:           a.Title,
		Bullets:         a.Bullets,
		HighlightedText: a.HighlightedText,
		SourceID:        source.ID,
		SourceURL:       a.SourceURL,
		CategoryID:      a.CategoryID,
		PubDate:         a.PubDate,
		ImagePath:       a.ImagePath,
	}, c.articleBase)
	if errors.Is(err, database.ErrDuplicate) {
		// Another crawl stored the same URL between lookup and insert.
		existing, findErr := c.store.FindArticleBySourceURL(ctx, a.SourceURL)
		if findErr != nil {
			a.Outcome = OutcomeCommitFailed
			return "", fmt.Errorf("reading back duplicate: %w", findErr)
		}
		return c.duplicate(a, existing), nil
	}
	if err != nil {
		a.Outcome = OutcomeCommitFailed
		return "", fmt.Errorf("inserting article: %w", err)
	}

	a.URL = stored.URL
	a.Outcome = OutcomeCommitted
	c.logger.Info().Str("title", a.Title).Str("url", a.SourceURL).Str("path", a.URL).Msg("Committed article")
	return a.URL, nil
}

func (c *Committer) duplicate(a *Article, existing database.Article) string {
	a.URL = existing.URL
	a.ImagePath = existing.ImagePath
	a.Outcome = OutcomeDuplicate
	c.logger.Info().Str("title", a.Title).Str("url", a.SourceURL).Msg("Article already ingested")
	return existing.URL
}

// retrieveImage never fails the commit; any problem yields an empty path.
func (c *Committer) retrieveImage(ctx context.Context, a *Article) string {
	if c.images == nil || a.ImageURL == "" {
		return ""
	}
	servable, err := c.images.Retrieve(ctx, a.ImageURL)
	switch {
	case err == nil:
		c.metrics.ObserveImage("stored")
		return servable
	case errors.Is(err, imagestore.ErrIneligible):
		c.metrics.ObserveImage("ineligible")
		c.logger.Debug().Str("image", a.ImageURL).Msg("Image format not eligible")
	default:
		c.metrics.ObserveImage("failed")
		c.logger.Warn().Err(err).Str("image", a.ImageURL).Msg("Image retrieval failed")
	}
	return ""
}
