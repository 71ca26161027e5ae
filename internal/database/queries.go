// internal/database/queries.go
package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"
)

// Error definitions
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicate record")
	ErrInvalidInput = errors.New("invalid input")
)

// Kind selects one of the uniquely named lookup tables.
type Kind string

const (
	KindCategory Kind = "categories"
	KindSource   Kind = "sources"
)

func (k Kind) valid() bool {
	return k == KindCategory || k == KindSource
}

// Named is a category or source row.
type Named struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Article is a persisted article row.
type Article struct {
	ID              int64
	Title           string
	Bullets         []string
	HighlightedText []string
	SourceID        int64
	SourceURL       string
	CategoryID      int64
	PubDate         *time.Time
	ImagePath       string
	Digest          string
	URL             string
	CreatedAt       time.Time
}

var articleColumns = []string{
	"id", "title", "bullets", "highlighted_text", "source_id", "source_url",
	"category_id", "pub_date", "image_path", "digest", "url", "created_at",
}

// FindByName looks up a category or source by its unique name.
func (db *DB) FindByName(ctx context.Context, kind Kind, name string) (Named, error) {
	if !kind.valid() {
		return Named{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	query, args, err := sq.Select("id", "name", "created_at").
		From(string(kind)).
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return Named{}, err
	}

	var n Named
	err = db.QueryRowContext(ctx, query, args...).Scan(&n.ID, &n.Name, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return Named{}, ErrNotFound
	}
	if err != nil {
		return Named{}, fmt.Errorf("finding %s %q: %w", kind, name, err)
	}
	return n, nil
}

// InsertNamed creates a category or source. A name that already exists
// yields ErrDuplicate.
func (db *DB) InsertNamed(ctx context.Context, kind Kind, name string) (Named, error) {
	if !kind.valid() {
		return Named{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	if strings.TrimSpace(name) == "" {
		return Named{}, fmt.Errorf("%w: empty name", ErrInvalidInput)
	}
	query, args, err := sq.Insert(string(kind)).
		Columns("name").
		Values(name).
		ToSql()
	if err != nil {
		return Named{}, err
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return Named{}, fmt.Errorf("%w: %s %q", ErrDuplicate, kind, name)
		}
		return Named{}, fmt.Errorf("inserting %s %q: %w", kind, name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Named{}, err
	}
	return Named{ID: id, Name: name, CreatedAt: time.Now().UTC()}, nil
}

// FindArticleBySourceURL returns the article stored under sourceURL.
func (db *DB) FindArticleBySourceURL(ctx context.Context, sourceURL string) (Article, error) {
	query, args, err := sq.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"source_url": sourceURL}).
		ToSql()
	if err != nil {
		return Article{}, err
	}
	return scanArticle(db.QueryRowContext(ctx, query, args...))
}

// GetArticle returns the article with the given id.
func (db *DB) GetArticle(ctx context.Context, id int64) (Article, error) {
	query, args, err := sq.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Article{}, err
	}
	return scanArticle(db.QueryRowContext(ctx, query, args...))
}

// InsertArticle stores a new article, computing its bullet digest and
// canonical URL below articleBase. ErrDuplicate is returned when the source
// URL is already stored.
func (db *DB) InsertArticle(ctx context.Context, a Article, articleBase string) (Article, error) {
	if len(a.Bullets) == 0 {
		return Article{}, fmt.Errorf("%w: article has no bullets", ErrInvalidInput)
	}
	if a.SourceURL == "" {
		return Article{}, fmt.Errorf("%w: article has no source URL", ErrInvalidInput)
	}

	bullets, err := json.Marshal(a.Bullets)
	if err != nil {
		return Article{}, err
	}
	highlighted := a.HighlightedText
	if highlighted == nil {
		highlighted = []string{}
	}
	highlightedJSON, err := json.Marshal(highlighted)
	if err != nil {
		return Article{}, err
	}
	var pubDate sql.NullTime
	if a.PubDate != nil {
		pubDate = sql.NullTime{Time: a.PubDate.UTC(), Valid: true}
	}
	a.Digest = Digest(a.Bullets)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Article{}, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sq.Insert("articles").
		Columns("title", "bullets", "highlighted_text", "source_id", "source_url",
			"category_id", "pub_date", "image_path", "digest").
		Values(a.Title, string(bullets), string(highlightedJSON), a.SourceID, a.SourceURL,
			a.CategoryID, pubDate, a.ImagePath, a.Digest).
		ToSql()
	if err != nil {
		return Article{}, err
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return Article{}, fmt.Errorf("%w: article %s", ErrDuplicate, a.SourceURL)
		}
		return Article{}, fmt.Errorf("inserting article: %w", err)
	}
	if a.ID, err = result.LastInsertId(); err != nil {
		return Article{}, err
	}

	a.URL = CanonicalURL(articleBase, a.ID, a.Digest)
	query, args, err = sq.Update("articles").
		Set("url", a.URL).
		Where(sq.Eq{"id": a.ID}).
		ToSql()
	if err != nil {
		return Article{}, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return Article{}, fmt.Errorf("assigning article URL: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Article{}, fmt.Errorf("error committing article: %w", err)
	}
	a.HighlightedText = highlighted
	a.CreatedAt = time.Now().UTC()
	return a, nil
}

// ArticleSummary is an article joined with its source and category names.
type ArticleSummary struct {
	ID       int64
	Title    string
	Bullets  []string
	URL      string
	Source   string
	Category string
	PubDate  *time.Time
}

// RecentArticles returns up to limit articles, newest first by publish date,
// falling back to the time they were stored.
func (db *DB) RecentArticles(ctx context.Context, limit int) ([]ArticleSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	query, args, err := sq.Select("a.id", "a.title", "a.bullets", "a.url", "s.name", "c.name", "a.pub_date").
		From("articles a").
		Join("sources s ON s.id = a.source_id").
		Join("categories c ON c.id = a.category_id").
		OrderBy("COALESCE(a.pub_date, a.created_at) DESC", "a.id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ArticleSummary
	for rows.Next() {
		var (
			s       ArticleSummary
			bullets string
			pubDate sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.Title, &bullets, &s.URL, &s.Source, &s.Category, &pubDate); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(bullets), &s.Bullets); err != nil {
			return nil, fmt.Errorf("decoding bullets of article %d: %w", s.ID, err)
		}
		if pubDate.Valid {
			t := pubDate.Time
			s.PubDate = &t
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// CountArticles returns the number of stored articles.
func (db *DB) CountArticles(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&count)
	return count, err
}

// Count returns the number of rows of the given kind.
func (db *DB) Count(ctx context.Context, kind Kind) (int, error) {
	if !kind.valid() {
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	query, args, err := sq.Select("COUNT(*)").From(string(kind)).ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	err = db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// Digest is the hex blake2b-256 sum of the concatenated bullets.
func Digest(bullets []string) string {
	sum := blake2b.Sum256([]byte(strings.Join(bullets, "")))
	return hex.EncodeToString(sum[:])
}

// CanonicalURL builds the display locator of a stored article.
func CanonicalURL(base string, id int64, digest string) string {
	short := digest
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("%s/%d/%s", strings.TrimRight(base, "/"), id, short)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (Article, error) {
	var (
		a                    Article
		bullets, highlighted string
		pubDate              sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Title, &bullets, &highlighted, &a.SourceID, &a.SourceURL,
		&a.CategoryID, &pubDate, &a.ImagePath, &a.Digest, &a.URL, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return Article{}, ErrNotFound
	}
	if err != nil {
		return Article{}, err
	}
	if err := json.Unmarshal([]byte(bullets), &a.Bullets); err != nil {
		return Article{}, fmt.Errorf("decoding bullets of article %d: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(highlighted), &a.HighlightedText); err != nil {
		return Article{}, fmt.Errorf("decoding highlighted text of article %d: %w", a.ID, err)
	}
	if pubDate.Valid {
		t := pubDate.Time
		a.PubDate = &t
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
