package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "TLDR"

type Config struct {
	DBPath         string        `envconfig:"DB_PATH" default:"data/tldr.db"`
	ImagesRoot     string        `envconfig:"IMAGES_ROOT" default:"web/static/images/news"`
	StaticBase     string        `envconfig:"STATIC_BASE" default:"/static/images/news"`
	ArticleBase    string        `envconfig:"ARTICLE_BASE" default:"/news"`
	GroupsFile     string        `envconfig:"GROUPS_FILE" default:"groups.yaml"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	CrawlInterval  time.Duration `envconfig:"CRAWL_INTERVAL" default:"0s"`
	Concurrency    int           `envconfig:"CONCURRENCY" default:"4"`
	MetricsAddr    string        `envconfig:"METRICS_ADDR"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool          `envconfig:"LOG_PRETTY" default:"false"`
	UserAgent      string        `envconfig:"USER_AGENT" default:"tldrbot/1.0"`
	ExportPath     string        `envconfig:"EXPORT_PATH"`
	ExportLimit    int           `envconfig:"EXPORT_LIMIT" default:"50"`
	SiteTitle      string        `envconfig:"SITE_TITLE" default:"tl;dr news"`
	SiteURL        string        `envconfig:"SITE_URL" default:"http://localhost:8080"`
}

// GetConfig reads TLDR_* variables on top of the defaults.
func GetConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading environment config: %w", err)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ExportLimit < 1 {
		cfg.ExportLimit = 50
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return cfg, nil
}
