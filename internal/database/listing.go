package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"autoria-scraper/internal/models"
)

// EventTypeNewListingFound is published when an upsert inserts a row that
// was not in the table before.
const EventTypeNewListingFound = "NEW_LISTING_FOUND"

// ListingRepository persists scraped listings. Writes rely on the atomic
// ON CONFLICT upsert, so concurrent writers need no coordination here.
type ListingRepository struct {
	db     *DB
	outbox *OutboxRepository
	stream string
}

func NewListingRepository(db *DB) *ListingRepository {
	return &ListingRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
	}
}

// WithStream overrides the Redis stream outbox events are addressed to.
func (r *ListingRepository) WithStream(stream string) *ListingRepository {
	r.stream = stream
	return r
}

// Ping reports whether the underlying store is reachable.
func (r *ListingRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// InitSchema creates the tables the scraper writes to.
func (r *ListingRepository) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cars (
			id SERIAL PRIMARY KEY,
			url TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			price_usd INTEGER,
			odometer INTEGER,
			username TEXT,
			phone_number BIGINT,
			image_url TEXT,
			images_count INTEGER NOT NULL DEFAULT 0,
			car_number TEXT,
			car_vin TEXT,
			datetime_found TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS outbox_event (
			id UUID PRIMARY KEY,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB NOT NULL,
			target_stream TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMP WITH TIME ZONE,
			next_retry_at TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_event_status ON outbox_event (status, next_retry_at)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return nil
}

// Upsert inserts the listing or overwrites the existing row with the same
// URL, refreshing datetime_found. It reports whether the row was newly
// created; new rows also get a NEW_LISTING_FOUND outbox event in the same
// transaction.
func (r *ListingRepository) Upsert(ctx context.Context, l *models.Listing) (created bool, err error) {
	query := `
		INSERT INTO cars (
			url, title, price_usd, odometer, username,
			phone_number, image_url, images_count,
			car_number, car_vin, datetime_found
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			price_usd = EXCLUDED.price_usd,
			odometer = EXCLUDED.odometer,
			username = EXCLUDED.username,
			phone_number = EXCLUDED.phone_number,
			image_url = EXCLUDED.image_url,
			images_count = EXCLUDED.images_count,
			car_number = EXCLUDED.car_number,
			car_vin = EXCLUDED.car_vin,
			datetime_found = EXCLUDED.datetime_found
		RETURNING (xmax = 0)`

	err = r.db.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, query,
			l.URL, l.Title, l.PriceUSD, l.Odometer, l.Username,
			l.PhoneNumber, l.ImageURL, l.ImagesCount,
			l.CarNumber, l.CarVIN, l.FoundAt,
		)
		if err := row.Scan(&created); err != nil {
			return fmt.Errorf("failed to upsert listing: %w", err)
		}

		if !created {
			return nil
		}

		payload, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("failed to marshal listing payload: %w", err)
		}

		return r.outbox.InsertWithTx(ctx, tx, &OutboxEvent{
			AggregateType: "listing",
			AggregateID:   l.URL,
			EventType:     EventTypeNewListingFound,
			Payload:       payload,
			TargetStream:  r.stream,
		})
	})
	if err != nil {
		return false, err
	}

	return created, nil
}

// GetByURL returns the stored listing for url, or nil when absent.
func (r *ListingRepository) GetByURL(ctx context.Context, url string) (*models.Listing, error) {
	query := `
		SELECT url, title, price_usd, odometer, username,
			   phone_number, image_url, images_count,
			   car_number, car_vin, datetime_found
		FROM cars
		WHERE url = $1`

	l := &models.Listing{}
	err := r.db.QueryRow(ctx, query, url).Scan(
		&l.URL, &l.Title, &l.PriceUSD, &l.Odometer, &l.Username,
		&l.PhoneNumber, &l.ImageURL, &l.ImagesCount,
		&l.CarNumber, &l.CarVIN, &l.FoundAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return l, nil
}

// Count returns the number of stored listings.
func (r *ListingRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cars`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return count, nil
}
