// Package newsbot runs the crawl pipeline for feed groups: fetch entries,
// summarize them, and commit the results to the store.
package newsbot

import (
	"time"
)

// Outcome is what happened to one feed entry during a crawl.
type Outcome string

const (
	// OutcomeSummarized means the article is ready but commit was not requested.
	OutcomeSummarized    Outcome = "summarized"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeSummaryFailed Outcome = "summary_failed"
	OutcomeCommitted     Outcome = "committed"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeCommitFailed  Outcome = "commit_failed"
)

// Article is the in-memory candidate built from one feed entry.
type Article struct {
	Title           string
	SourceURL       string
	SourceName      string
	Category        string
	CategoryID      int64
	PubDate         *time.Time
	ImageURL        string
	Bullets         []string
	HighlightedText []string
	SummaryFailed   bool

	// Set by commit.
	ImagePath string
	URL       string

	Outcome Outcome
}

// Report summarizes one crawl of a group. Articles holds every entry seen,
// in feed order, including skipped and duplicate ones.
type Report struct {
	Group         string
	Feeds         []string
	Articles      []*Article
	Processed     int
	SkippedVideo  int
	SummaryFailed int
	Committed     int
	Duplicates    int
	CommitFailed  int
	FeedErrors    int
}

func (r *Report) add(a *Article) {
	r.Articles = append(r.Articles, a)
	r.Processed++
	switch a.Outcome {
	case OutcomeSkipped:
		r.SkippedVideo++
	case OutcomeSummaryFailed:
		r.SummaryFailed++
	case OutcomeCommitted:
		r.Committed++
	case OutcomeDuplicate:
		r.Duplicates++
	case OutcomeCommitFailed:
		r.CommitFailed++
	}
}
