// Package summarizer turns an article URL into extractive bullet points.
package summarizer

import (
	"context"
	"errors"
)

// Failure kinds. Implementations wrap one of these so callers can tell an
// unreachable article from one that simply has nothing to summarize.
var (
	ErrFetch       = errors.New("article fetch failed")
	ErrUnsupported = errors.New("unsupported content")
	ErrExtract     = errors.New("article extraction failed")
	ErrEmpty       = errors.New("no summary could be produced")
)

const (
	AlgorithmFrequency = "frequency"
	AlgorithmLead      = "lead"
)

type Request struct {
	URL       string
	Algorithm string
	Length    int
}

// Result of a summarization. Failed is set when the summarizer ran but could
// not produce usable bullets; on success Bullets is never empty.
type Result struct {
	Bullets         []string
	HighlightedText []string
	Failed          bool
}

type Summarizer interface {
	Summarize(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to the Summarizer interface.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Summarize(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
