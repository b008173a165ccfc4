package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/catalog-service/internal/entity"
)

// testPool connects to CATALOG_TEST_DATABASE_URL and skips the test when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("CATALOG_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CATALOG_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func seedBrand(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	id := "brand-" + uuid.NewString()
	require.NoError(t, NewBrandRepo(pool).UpsertBrand(context.Background(), &entity.Brand{
		ID: id, Name: "Test", SiteURL: "https://brand.test", Platform: "shopify",
	}))
	return id
}

func TestRunRepo_Lifecycle(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	runs := NewRunRepo(pool)
	brandID := seedBrand(t, pool)

	run := &entity.CatalogRun{ID: uuid.NewString(), BrandID: brandID, Status: entity.RunProcessing, Platform: "shopify"}
	require.NoError(t, runs.CreateRun(ctx, run, []string{"https://brand.test/products/a", "https://brand.test/products/a", "https://brand.test/products/b"}))
	assert.Equal(t, 2, run.TotalItems)

	err := runs.CreateRun(ctx, &entity.CatalogRun{ID: uuid.NewString(), BrandID: brandID, Status: entity.RunProcessing}, []string{"https://brand.test/products/c"})
	assert.ErrorIs(t, err, entity.ErrActiveRunExists)

	items, err := runs.ListPendingItems(ctx, run.ID, 3, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)

	started, err := runs.StartItem(ctx, items[0].ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, started.Attempts)
	_, err = runs.StartItem(ctx, items[0].ID, 3)
	assert.ErrorIs(t, err, entity.ErrItemNotEligible)
	_, err = runs.StartItem(ctx, uuid.NewString(), 3)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	require.NoError(t, runs.FinishItem(ctx, items[0].ID, entity.ItemCompleted, ""))
	updated, err := runs.RecordProgress(ctx, run.ID, entity.RunProgress{LastURL: items[0].URL, LastStage: entity.StagePersist, ResetErrors: true, Completed: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.CompletedItems)

	blocked, err := runs.TransitionRun(ctx, run.ID, []entity.RunStatus{entity.RunProcessing}, entity.RunBlocked, "circuit breaker")
	require.NoError(t, err)
	assert.Equal(t, "circuit breaker", blocked.BlockReason)
	_, err = runs.TransitionRun(ctx, run.ID, []entity.RunStatus{entity.RunPaused}, entity.RunProcessing, "")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	reset, err := runs.ResetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RunProcessing, reset.Status)
	assert.Empty(t, reset.BlockReason)

	require.NoError(t, runs.MarkItemsQueued(ctx, []string{items[1].ID}, time.Now()))
	require.NoError(t, runs.UnmarkItemsQueued(ctx, []string{items[1].ID}))
	pending, err := runs.ListPendingItems(ctx, run.ID, 3, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, runs.MarkItemsQueued(ctx, []string{items[1].ID}, time.Now().Add(-time.Hour)))
	pending, err = runs.ListPendingItems(ctx, run.ID, 3, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	n, err := runs.ResetQueuedItems(ctx, run.ID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, err := runs.CountItemsByStatus(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[entity.ItemStatus]int{entity.ItemCompleted: 1, entity.ItemPending: 1}, counts)
}

func TestProductRepo_UpsertAppendsHistoryOnChange(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	products := NewProductRepo(pool)
	brandID := seedBrand(t, pool)

	price := 20.0
	p := &entity.Product{
		BrandID:    brandID,
		ExternalID: "sku-1",
		Name:       "Tee",
		Variants:   []entity.Variant{{VariantKey: "default", Price: &price, Currency: "USD", StockStatus: entity.StockInStock}},
	}
	first, err := products.UpsertProduct(ctx, p)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, 1, first.PriceChanges)
	assert.Equal(t, 1, first.StockChanges)

	again, err := products.UpsertProduct(ctx, p)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.ProductID, again.ProductID)
	assert.Zero(t, again.PriceChanges)
	assert.Zero(t, again.StockChanges)

	newPrice := 15.0
	p.Variants[0].Price = &newPrice
	changed, err := products.UpsertProduct(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, changed.PriceChanges)
	assert.Zero(t, changed.StockChanges)
}
