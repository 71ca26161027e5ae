package newsbot

import (
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tldrbot/internal/database"
	"tldrbot/internal/feed"
	"tldrbot/internal/imagestore"
	"tldrbot/internal/metrics"
	"tldrbot/internal/registry"
	"tldrbot/internal/security/netutil"
	"tldrbot/internal/summarizer"
)

const storyPage = `<!DOCTYPE html>
<html><head><title>Flood waters recede in river town</title></head>
<body>
<nav><a href="/">Home</a> <a href="/world">World</a></nav>
<article>
<h1>Flood waters recede in river town</h1>
<p>The river flooded the town after three days of heavy rain across the valley. Residents of the town moved to higher ground near the old river bridge while emergency crews worked through the night.</p>
<p>Officials said the flood barriers held in most places along the river. The town mayor praised the volunteers who filled thousands of sandbags and kept the main road open for ambulances.</p>
<p>Forecasters expect drier weather for the rest of the week, giving the town time to recover. Insurance assessors are due to arrive on Thursday to inspect damaged homes and shops near the river.</p>
<p>Schools in the town will reopen on Monday once the buildings have been checked by engineers. Parents were asked to watch the council website for further updates about transport.</p>
</article>
<footer>Copyright Example News</footer>
</body></html>`

const homePage = `<html><head>
<link rel="alternate" type="application/rss+xml" title="News" href="/feed.xml">
</head><body><p>Welcome</p></body></html>`

const feedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
	<title>River News</title>
	<link>{{BASE}}/</link>
	<item>
		<title>Video: Drone footage of the flood</title>
		<link>{{BASE}}/stories/video</link>
		<media:thumbnail width="640" height="360" url="{{BASE}}/img/video.jpg"/>
	</item>
	<item>
		<title>Bridge closed after inspection</title>
		<link>{{BASE}}/stories/broken</link>
	</item>
	<item>
		<title>Flood waters recede in river town</title>
		<link>{{BASE}}/stories/flood#comments</link>
		<pubDate>Fri, 03 May 2024 09:00:00 +0000</pubDate>
		<media:thumbnail width="120" height="80" url="{{BASE}}/img/small.jpg"/>
		<media:thumbnail width="976" height="549" url="{{BASE}}/img/large.jpg"/>
	</item>
</channel>
</rss>`

const svgFeedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
	<title>Logo News</title>
	<item>
		<title>Town unveils new logo</title>
		<link>{{BASE}}/stories/logo</link>
		<media:thumbnail width="300" height="300" url="{{BASE}}/img/logo.svg"/>
	</item>
</channel>
</rss>`

type testSite struct {
	*httptest.Server
	imageHits int32
	storyHits int32
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	site := &testSite{}
	mux := http.NewServeMux()
	render := func(tmpl string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/rss+xml")
			fmt.Fprint(w, strings.ReplaceAll(tmpl, "{{BASE}}", site.URL))
		}
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, homePage)
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>No feeds here</p></body></html>")
	})
	mux.HandleFunc("/feed.xml", render(feedTemplate))
	mux.HandleFunc("/svg.xml", render(svgFeedTemplate))
	mux.HandleFunc("/empty.xml", render(`<rss version="2.0"><channel><title>Empty</title></channel></rss>`))
	mux.HandleFunc("/garbage.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	})
	mux.HandleFunc("/down.xml", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})
	mux.HandleFunc("/stories/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&site.storyHits, 1)
		if r.URL.Path == "/stories/broken" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, storyPage)
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&site.imageHits, 1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("\xff\xd8\xff\xe0 not really a jpeg"))
	})
	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

type pipeline struct {
	db         *database.DB
	deps       Deps
	imagesRoot string
	metrics    *metrics.Metrics
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := zerolog.Nop()
	client := netutil.NewClient(5 * time.Second)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "news.db"), database.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	imagesRoot := filepath.Join(t.TempDir(), "images")
	images, err := imagestore.NewRetriever(imagesRoot, "/static/images/news", client, logger, "tldrbot-test")
	require.NoError(t, err)

	m := metrics.New(nil)
	reg := registry.New(db, logger)
	return &pipeline{
		db: db,
		deps: Deps{
			Feeds:      feed.NewFetcher(client, logger, "tldrbot-test"),
			Summarizer: summarizer.NewExtractive(client, logger, "tldrbot-test"),
			Registry:   reg,
			Committer:  NewCommitter(db, reg, images, "/news", m, logger),
			Metrics:    m,
			Logger:     logger,
		},
		imagesRoot: imagesRoot,
		metrics:    m,
	}
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}
