package database

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoria-scraper/internal/models"
)

// setupTestDB connects to the database named by TEST_POSTGRES_* env vars,
// skipping the test when none is configured.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("Test database not configured")
	}

	port := 5432
	if p, err := strconv.Atoi(os.Getenv("TEST_POSTGRES_PORT")); err == nil {
		port = p
	}

	db, err := New(context.Background(), Config{
		Host:     host,
		Port:     port,
		User:     os.Getenv("TEST_POSTGRES_USER"),
		Password: os.Getenv("TEST_POSTGRES_PASSWORD"),
		Database: os.Getenv("TEST_POSTGRES_DB"),
	})
	require.NoError(t, err)

	return db
}

func testListing(url string) *models.Listing {
	price := 25500
	odometer := 95000
	username := "Олександр"
	l := models.NewListing(url)
	l.Title = "Audi Q7 2019"
	l.PriceUSD = &price
	l.Odometer = &odometer
	l.Username = &username
	l.ImagesCount = 4
	return l
}

func TestListingRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewListingRepository(db)
	require.NoError(t, repo.InitSchema(ctx))

	url := "https://auto.ria.com/uk/auto_test_upsert_1.html"
	_, _ = db.Exec(ctx, `DELETE FROM cars WHERE url = $1`, url)

	t.Run("first write creates the row", func(t *testing.T) {
		created, err := repo.Upsert(ctx, testListing(url))
		require.NoError(t, err)
		assert.True(t, created)

		stored, err := repo.GetByURL(ctx, url)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "Audi Q7 2019", stored.Title)
		assert.Equal(t, 25500, *stored.PriceUSD)
	})

	t.Run("rescrape overwrites fields and refreshes datetime_found", func(t *testing.T) {
		before, err := repo.GetByURL(ctx, url)
		require.NoError(t, err)
		require.NotNil(t, before)

		updated := testListing(url)
		newPrice := 23900
		updated.PriceUSD = &newPrice
		updated.FoundAt = time.Now()

		created, err := repo.Upsert(ctx, updated)
		require.NoError(t, err)
		assert.False(t, created)

		after, err := repo.GetByURL(ctx, url)
		require.NoError(t, err)
		require.NotNil(t, after)
		assert.Equal(t, 23900, *after.PriceUSD)
		assert.False(t, after.FoundAt.Before(before.FoundAt))
	})

	t.Run("new row writes an outbox event", func(t *testing.T) {
		eventURL := "https://auto.ria.com/uk/auto_test_upsert_2.html"
		_, _ = db.Exec(ctx, `DELETE FROM cars WHERE url = $1`, eventURL)
		_, _ = db.Exec(ctx, `DELETE FROM outbox_event WHERE aggregate_id = $1`, eventURL)

		created, err := repo.Upsert(ctx, testListing(eventURL))
		require.NoError(t, err)
		require.True(t, created)

		var count int
		err = db.QueryRow(ctx,
			`SELECT COUNT(*) FROM outbox_event WHERE aggregate_id = $1 AND event_type = $2`,
			eventURL, EventTypeNewListingFound,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestListingRepository_GetByURL_Missing(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewListingRepository(db)
	require.NoError(t, repo.InitSchema(ctx))

	stored, err := repo.GetByURL(ctx, "https://auto.ria.com/uk/no_such_listing.html")
	require.NoError(t, err)
	assert.Nil(t, stored)
}
