package newsbot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tldrbot/internal/feed"
)

// Service crawls all configured groups, once or on a fixed interval.
type Service struct {
	groups      []feed.Group
	deps        Deps
	commit      bool
	interval    time.Duration
	concurrency int
	logger      zerolog.Logger
	done        chan struct{}
	stopOnce    sync.Once

	// OnReport, when set, receives each group's report after its crawl. It
	// may be called from several goroutines at once.
	OnReport func(Report)
	// AfterRun, when set, is called once every group of a run has finished.
	AfterRun func(ctx context.Context, reports []Report)
}

type ServiceOptions struct {
	Commit      bool
	Interval    time.Duration
	Concurrency int
}

func NewService(groups []feed.Group, deps Deps, opts ServiceOptions) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Service{
		groups:      groups,
		deps:        deps,
		commit:      opts.Commit,
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
		logger:      deps.Logger.With().Str("component", "service").Logger(),
		done:        make(chan struct{}),
	}
}

// Run crawls every group immediately. With a positive interval it keeps
// crawling on each tick until ctx is cancelled or Stop is called.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info().Int("groups", len(s.groups)).Dur("interval", s.interval).Msg("Starting crawl loop")

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Initial crawl had failures")
	}
	if s.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.logger.Info().Msg("Starting scheduled crawl")
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled crawl had failures")
			}
		case <-s.done:
			s.logger.Info().Msg("Crawl service shutting down")
			return nil
		case <-ctx.Done():
			s.logger.Info().Msg("Crawl service shutting down")
			return ctx.Err()
		}
	}
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// RunOnce crawls every group concurrently, at most concurrency at a time.
// A failing group does not affect the others; the returned error joins the
// failures. Reports are in group order; a group that failed before crawling
// has a report with only its name set.
func (s *Service) RunOnce(ctx context.Context) ([]Report, error) {
	reports := make([]Report, len(s.groups))
	errs := make([]error, len(s.groups))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, group := range s.groups {
		g.Go(func() error {
			reports[i], errs[i] = s.crawlGroup(ctx, group)
			return nil
		})
	}
	g.Wait()

	if s.AfterRun != nil {
		s.AfterRun(ctx, reports)
	}
	return reports, errors.Join(errs...)
}

func (s *Service) crawlGroup(ctx context.Context, group feed.Group) (Report, error) {
	group = group.WithDefaults()
	bot, err := New(ctx, group, s.deps)
	if err != nil {
		s.deps.Metrics.ObserveCrawl(group.SiteName, time.Now(), err)
		return Report{Group: group.SiteName}, fmt.Errorf("group %s: %w", group.SiteName, err)
	}

	rep, err := bot.Crawl(ctx, s.commit)
	if s.OnReport != nil {
		s.OnReport(rep)
	}
	if err != nil {
		return rep, fmt.Errorf("group %s: %w", group.SiteName, err)
	}
	return rep, nil
}
