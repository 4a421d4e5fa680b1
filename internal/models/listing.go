package models

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Listing is one scraped car advert. URL is the natural key: re-scraping the
// same advert overwrites every field and refreshes FoundAt, it never creates
// a second row.
type Listing struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	PriceUSD    *int      `json:"price_usd"`
	Odometer    *int      `json:"odometer"`
	Username    *string   `json:"username"`
	PhoneNumber *int64    `json:"phone_number"`
	ImageURL    *string   `json:"image_url"`
	ImagesCount int       `json:"images_count"`
	CarNumber   *string   `json:"car_number"`
	CarVIN      *string   `json:"car_vin"`
	FoundAt     time.Time `json:"found_at"`
}

func NewListing(url string) *Listing {
	return &Listing{
		URL:     url,
		FoundAt: time.Now().UTC(),
	}
}

func (l *Listing) Validate() []string {
	var errors []string

	if l.URL == "" {
		errors = append(errors, "URL is required")
	}

	if l.Title == "" {
		errors = append(errors, "Title is required")
	}

	if l.PriceUSD != nil && *l.PriceUSD < 0 {
		errors = append(errors, "PriceUSD must not be negative")
	}

	if l.Odometer != nil && *l.Odometer < 0 {
		errors = append(errors, "Odometer must not be negative")
	}

	if l.ImagesCount < 0 {
		errors = append(errors, "ImagesCount must not be negative")
	}

	return errors
}

// PageResult holds the item URLs extracted from one listing page, in
// document order.
type PageResult struct {
	ItemURLs []string
	NextURL  string
}

// HasMore reports whether the page yielded any items. A page without items
// terminates the pagination walk.
func (p *PageResult) HasMore() bool {
	return len(p.ItemURLs) > 0
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)

// RunSummary accumulates counters for one scrape run. Counter fields are
// incremented atomically because detail items complete in arbitrary order.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	PagesVisited          atomic.Int64 `json:"-"`
	ItemsSeen             atomic.Int64 `json:"-"`
	ItemsStored           atomic.Int64 `json:"-"`
	ItemsFailed           atomic.Int64 `json:"-"`
	ItemsSkippedDuplicate atomic.Int64 `json:"-"`
}

func NewRunSummary() *RunSummary {
	return &RunSummary{
		RunID:     uuid.New().String(),
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Snapshot is the JSON-friendly view of a summary, used by the admin API and
// the end-of-run log line.
type RunSnapshot struct {
	RunID                 string    `json:"run_id"`
	Status                RunStatus `json:"status"`
	StartedAt             time.Time `json:"started_at"`
	FinishedAt            time.Time `json:"finished_at,omitzero"`
	PagesVisited          int64     `json:"pages_visited"`
	ItemsSeen             int64     `json:"items_seen"`
	ItemsStored           int64     `json:"items_stored"`
	ItemsFailed           int64     `json:"items_failed"`
	ItemsSkippedDuplicate int64     `json:"items_skipped_duplicate"`
}

func (s *RunSummary) Snapshot() RunSnapshot {
	return RunSnapshot{
		RunID:                 s.RunID,
		Status:                s.Status,
		StartedAt:             s.StartedAt,
		FinishedAt:            s.FinishedAt,
		PagesVisited:          s.PagesVisited.Load(),
		ItemsSeen:             s.ItemsSeen.Load(),
		ItemsStored:           s.ItemsStored.Load(),
		ItemsFailed:           s.ItemsFailed.Load(),
		ItemsSkippedDuplicate: s.ItemsSkippedDuplicate.Load(),
	}
}
