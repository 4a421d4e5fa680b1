package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"autoria-scraper/internal/models"
)

var (
	// ErrRunInProgress is returned when Scrape is called while a previous
	// run has not drained yet. Overlapping runs are not supported.
	ErrRunInProgress = errors.New("scrape run already in progress")

	// ErrStorageUnavailable aborts a run before any page is fetched.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Fetcher downloads one URL, retrying transient failures internally.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Parser turns raw HTML into domain values.
type Parser interface {
	ParseListingPage(html []byte, baseURL string) (*models.PageResult, error)
	ParseDetailPage(html []byte, url string) (*models.Listing, error)
}

// Store persists listings keyed by URL.
type Store interface {
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, l *models.Listing) (created bool, err error)
}

// Renderer produces fully rendered detail-page HTML (phone numbers revealed).
// Optional; when absent the plain HTTP body is parsed instead.
type Renderer interface {
	RenderDetailPage(url string) (string, error)
}

type Options struct {
	StartURL    string
	Concurrency int
}

// Scraper coordinates one run: walks the paginated listing sequentially,
// fans detail items out to a bounded pool, and aggregates a RunSummary.
type Scraper struct {
	fetcher  Fetcher
	parser   Parser
	store    Store
	renderer Renderer
	startURL string
	sem      *semaphore.Weighted
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	lastRun *models.RunSnapshot
}

func New(fetcher Fetcher, parser Parser, store Store, opts Options, logger *slog.Logger) *Scraper {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Scraper{
		fetcher:  fetcher,
		parser:   parser,
		store:    store,
		startURL: opts.StartURL,
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		logger:   logger.With("component", "scraper"),
	}
}

// WithRenderer enables browser rendering for detail pages.
func (s *Scraper) WithRenderer(r Renderer) *Scraper {
	s.renderer = r
	return s
}

// Running reports whether a run is currently in flight.
func (s *Scraper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns the summary of the most recent finished run, nil if none.
func (s *Scraper) LastRun() *models.RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Scrape performs one complete run and returns its summary. A storage ping
// failure before the first page aborts the run; any later failure only
// increments a counter. The call blocks until every dispatched detail task
// has finished.
func (s *Scraper) Scrape(ctx context.Context) (models.RunSnapshot, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return models.RunSnapshot{}, ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()

	summary := models.NewRunSummary()
	s.logger.Info("scrape run started", "run_id", summary.RunID, "start_url", s.startURL)

	if err := s.store.Ping(ctx); err != nil {
		snapshot := s.finish(summary, models.RunStatusAborted)
		return snapshot, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	seen := newDedupSet()
	var wg sync.WaitGroup

	pageURL := s.startURL
	for pageURL != "" {
		if ctx.Err() != nil {
			s.logger.Warn("run context cancelled, stopping pagination", "error", ctx.Err())
			break
		}

		body, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			// After retry exhaustion a failed listing page is
			// indistinguishable from pagination running out.
			s.logger.Warn("listing page fetch failed, treating as end of pagination",
				"url", pageURL, "error", err)
			break
		}

		page, err := s.parser.ParseListingPage(body, pageURL)
		if err != nil {
			s.logger.Warn("listing page unparsable, treating as end of pagination",
				"url", pageURL, "error", err)
			break
		}

		summary.PagesVisited.Add(1)
		s.logger.Info("listing page processed",
			"url", pageURL,
			"items", len(page.ItemURLs),
			"has_more", page.HasMore())

		if !page.HasMore() {
			break
		}

		for _, itemURL := range page.ItemURLs {
			summary.ItemsSeen.Add(1)

			if seen.Seen(itemURL) {
				summary.ItemsSkippedDuplicate.Add(1)
				continue
			}
			seen.Mark(itemURL)

			wg.Add(1)
			go func(url string) {
				defer wg.Done()

				if err := s.sem.Acquire(ctx, 1); err != nil {
					summary.ItemsFailed.Add(1)
					return
				}
				defer s.sem.Release(1)

				s.processItem(ctx, url, summary)
			}(itemURL)
		}

		pageURL = page.NextURL
	}

	wg.Wait()

	snapshot := s.finish(summary, models.RunStatusCompleted)
	s.logger.Info("scrape run completed",
		"run_id", snapshot.RunID,
		"pages_visited", snapshot.PagesVisited,
		"items_seen", snapshot.ItemsSeen,
		"items_stored", snapshot.ItemsStored,
		"items_failed", snapshot.ItemsFailed,
		"items_skipped_duplicate", snapshot.ItemsSkippedDuplicate,
		"duration", snapshot.FinishedAt.Sub(snapshot.StartedAt))

	return snapshot, nil
}

// processItem runs the fetch -> parse -> upsert pipeline for one advert.
// Every failure path increments exactly one counter.
func (s *Scraper) processItem(ctx context.Context, url string, summary *models.RunSummary) {
	var body []byte

	if s.renderer != nil {
		content, err := s.renderer.RenderDetailPage(url)
		if err != nil {
			summary.ItemsFailed.Add(1)
			s.logger.Warn("detail page render failed", "url", url, "error", err)
			return
		}
		body = []byte(content)
	} else {
		var err error
		body, err = s.fetcher.Fetch(ctx, url)
		if err != nil {
			summary.ItemsFailed.Add(1)
			s.logger.Warn("detail page fetch failed", "url", url, "error", err)
			return
		}
	}

	listing, err := s.parser.ParseDetailPage(body, url)
	if err != nil {
		summary.ItemsFailed.Add(1)
		s.logger.Warn("detail page parse failed", "url", url, "error", err)
		return
	}

	if problems := listing.Validate(); len(problems) > 0 {
		summary.ItemsFailed.Add(1)
		s.logger.Warn("listing invalid, discarding", "url", url, "problems", problems)
		return
	}

	created, err := s.store.Upsert(ctx, listing)
	if err != nil {
		summary.ItemsFailed.Add(1)
		s.logger.Error("listing upsert failed", "url", url, "error", err)
		return
	}

	summary.ItemsStored.Add(1)
	s.logger.Debug("listing stored", "url", url, "created", created)
}

func (s *Scraper) finish(summary *models.RunSummary, status models.RunStatus) models.RunSnapshot {
	summary.Status = status
	summary.FinishedAt = time.Now().UTC()
	snapshot := summary.Snapshot()

	s.mu.Lock()
	s.lastRun = &snapshot
	s.running = false
	s.mu.Unlock()

	return snapshot
}
