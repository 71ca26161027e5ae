// internal/database/schema.go
// Database schema and migration logic for the news store
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const Schema = `
-- Categories table
CREATE TABLE IF NOT EXISTS categories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- News sources table
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Articles table
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    bullets TEXT NOT NULL DEFAULT '[]',
    highlighted_text TEXT NOT NULL DEFAULT '[]',
    source_id INTEGER NOT NULL,
    source_url TEXT UNIQUE NOT NULL,
    category_id INTEGER NOT NULL,
    pub_date TIMESTAMP,
    image_path TEXT NOT NULL DEFAULT '',
    digest TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (source_id) REFERENCES sources(id),
    FOREIGN KEY (category_id) REFERENCES categories(id)
);`

const Indexes = `
CREATE INDEX IF NOT EXISTS idx_articles_pub_date ON articles(pub_date DESC);
CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category_id, pub_date DESC);
CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source_id);`

// DB wraps the SQLite handle holding categories, sources and articles.
type DB struct {
	*sql.DB
}

// Config tunes the connection pool.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig suits a single crawler process.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// dsnOptions are appended to every database path.
const dsnOptions = "_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON&_synchronous=NORMAL"

// NewDB opens the SQLite database at dbPath and brings its schema up to date.
func NewDB(dbPath string, cfg Config) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?"+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}
	return &DB{db}, nil
}

// column is a column added to an existing table after its first release.
type column struct {
	table, name, definition string
}

// addedColumns lists columns missing from stores created by older releases.
// New columns go here as well as in Schema.
var addedColumns []column

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA cache_size=10000; PRAGMA temp_store=MEMORY;"); err != nil {
		return fmt.Errorf("error setting pragmas: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing schema: %w", err)
	}

	for _, col := range addedColumns {
		if err := ensureColumn(ctx, db, col); err != nil {
			return err
		}
	}

	if _, err := db.ExecContext(ctx, Indexes); err != nil {
		return fmt.Errorf("error creating indexes: %w", err)
	}
	return nil
}

func ensureColumn(ctx context.Context, db *sql.DB, col column) error {
	exists, err := columnExists(db, col.table, col.name)
	if err != nil {
		return fmt.Errorf("error checking column %s.%s: %w", col.table, col.name, err)
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", col.table, col.name, col.definition)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("error adding column %s.%s: %w", col.table, col.name, err)
	}
	return nil
}

// columnExists reports whether table has the named column. A missing table
// has no columns.
func columnExists(db *sql.DB, table, name string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid, notNull, pk int
			colName, colType string
			defaultValue     sql.NullString
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if colName == name {
			return true, nil
		}
	}
	return false, rows.Err()
}
