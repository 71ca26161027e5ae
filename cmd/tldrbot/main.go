package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tldrbot/internal/config"
	"tldrbot/internal/database"
	"tldrbot/internal/feed"
	"tldrbot/internal/imagestore"
	"tldrbot/internal/logging"
	"tldrbot/internal/metrics"
	"tldrbot/internal/newsbot"
	"tldrbot/internal/registry"
	"tldrbot/internal/rss"
	"tldrbot/internal/security/netutil"
	"tldrbot/internal/summarizer"
)

var (
	// Version will be set during build
	Version = "dev"

	// Command line flags
	dbPath      = flag.String("db", "", "Path to database file (default: data/tldr.db or TLDR_DB_PATH)")
	groupsFile  = flag.String("groups", "", "Path to the feed groups YAML file (default: groups.yaml or TLDR_GROUPS_FILE)")
	imagesRoot  = flag.String("images", "", "Directory for downloaded thumbnails (default: web/static/images/news or TLDR_IMAGES_ROOT)")
	interval    = flag.Duration("interval", -1, "Crawl every interval; 0 crawls once (default: TLDR_CRAWL_INTERVAL)")
	commit      = flag.Bool("commit", true, "Store summarized articles; -commit=false only reports them")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address (default: TLDR_METRICS_ADDR)")
	exportPath  = flag.String("export", "", "Write an RSS digest of recent summaries here after each crawl (default: TLDR_EXPORT_PATH)")
	version     = flag.Bool("version", false, "Print version information")

	siteURL   = flag.String("url", "", "Crawl a single site or feed URL instead of the groups file")
	siteName  = flag.String("site", "", "Display name of the -url source")
	category  = flag.String("category", "", "Category of the -url source")
	algorithm = flag.String("algorithm", "", "Summarizer algorithm for -url (frequency or lead)")
	length    = flag.Int("length", 0, "Number of bullets per article for -url")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("tldrbot version %s\n", Version)
		return
	}

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *groupsFile != "" {
		cfg.GroupsFile = *groupsFile
	}
	if *imagesRoot != "" {
		cfg.ImagesRoot = *imagesRoot
	}
	if *interval >= 0 {
		cfg.CrawlInterval = *interval
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *exportPath != "" {
		cfg.ExportPath = *exportPath
	}

	logger := logging.New(cfg.LogLevel, cfg.LogPretty)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("tldrbot failed")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	groups, err := loadGroups(cfg)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Str("database", cfg.DBPath).
		Str("images", cfg.ImagesRoot).
		Int("groups", len(groups)).
		Dur("interval", cfg.CrawlInterval).
		Bool("commit", *commit).
		Msg("Starting tldrbot")

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := database.NewDB(cfg.DBPath, database.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr, prometheus.DefaultGatherer)
	}

	client := netutil.NewClient(cfg.RequestTimeout)
	images, err := imagestore.NewRetriever(cfg.ImagesRoot, cfg.StaticBase, client, logger, cfg.UserAgent)
	if err != nil {
		return fmt.Errorf("failed to initialize image store: %w", err)
	}

	reg := registry.New(db, logger)
	deps := newsbot.Deps{
		Feeds:      feed.NewFetcher(client, logger, cfg.UserAgent),
		Summarizer: summarizer.NewExtractive(client, logger, cfg.UserAgent),
		Registry:   reg,
		Committer:  newsbot.NewCommitter(db, reg, images, cfg.ArticleBase, m, logger),
		Metrics:    m,
		Logger:     logger,
	}

	svc := newsbot.NewService(groups, deps, newsbot.ServiceOptions{
		Commit:      *commit,
		Interval:    cfg.CrawlInterval,
		Concurrency: cfg.Concurrency,
	})
	svc.OnReport = func(r newsbot.Report) { logReport(logger, r) }
	if cfg.ExportPath != "" {
		svc.AfterRun = func(ctx context.Context, _ []newsbot.Report) {
			if err := exportDigest(ctx, db, cfg); err != nil {
				logger.Error().Err(err).Str("path", cfg.ExportPath).Msg("RSS export failed")
				return
			}
			logger.Info().Str("path", cfg.ExportPath).Msg("Wrote RSS digest")
		}
	}

	if cfg.CrawlInterval <= 0 {
		_, err := svc.RunOnce(ctx)
		return err
	}
	defer svc.Stop()
	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func loadGroups(cfg config.Config) ([]feed.Group, error) {
	if *siteURL == "" {
		return config.LoadGroups(cfg.GroupsFile)
	}
	g, err := config.GroupConfig{
		SiteName:  *siteName,
		URL:       *siteURL,
		Category:  *category,
		Algorithm: *algorithm,
		Length:    *length,
	}.Group()
	if err != nil {
		return nil, err
	}
	return []feed.Group{g}, nil
}

func exportDigest(ctx context.Context, db *database.DB, cfg config.Config) error {
	articles, err := db.RecentArticles(ctx, cfg.ExportLimit)
	if err != nil {
		return fmt.Errorf("loading recent articles: %w", err)
	}
	digest := rss.Build(rss.Site{
		Title:       cfg.SiteTitle,
		URL:         cfg.SiteURL,
		Description: "Summaries of the latest news",
	}, articles, time.Now())
	return rss.WriteFile(cfg.ExportPath, digest)
}

func logReport(logger zerolog.Logger, r newsbot.Report) {
	for _, a := range r.Articles {
		ev := logger.Debug().Str("group", r.Group).Str("title", a.Title).Str("outcome", string(a.Outcome))
		if a.URL != "" {
			ev = ev.Str("path", a.URL)
		}
		ev.Msg("Article")
	}
	logger.Info().
		Str("group", r.Group).
		Int("processed", r.Processed).
		Int("committed", r.Committed).
		Int("duplicates", r.Duplicates).
		Int("skipped", r.SkippedVideo).
		Int("summary_failed", r.SummaryFailed).
		Int("commit_failed", r.CommitFailed).
		Int("feed_errors", r.FeedErrors).
		Msg("Group report")
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\nCrawls configured news feeds, summarizes new articles and stores them.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}
