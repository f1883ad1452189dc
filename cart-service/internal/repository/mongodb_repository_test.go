package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestDB(t *testing.T) *MongoRepository {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	// Start MongoDB container
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(mongoContainer); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, MongoConfig{URI: uri, Database: "testdb"})
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	return repo
}

func TestGetCart_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	cart, err := repo.GetCart(context.Background(), "session:none")

	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, cart)
}

func TestAddItem_NewCart(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	owner := "user:123"

	item, err := repo.AddItem(ctx, owner, 1, 3, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, owner, cart.Owner)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, item.ID, cart.Items[0].ID)
	assert.Equal(t, int64(1), cart.Items[0].ProductID)
	assert.Equal(t, 3, cart.Items[0].Quantity)
}

func TestAddItem_ExistingProduct_MergesQuantity(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	owner := "user:123"

	first, err := repo.AddItem(ctx, owner, 1, 2, 10)
	require.NoError(t, err)

	second, err := repo.AddItem(ctx, owner, 1, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 7, second.Quantity)

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 7, cart.Items[0].Quantity)
}

func TestAddItem_MergeCappedAtMax(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	owner := "user:123"

	_, err := repo.AddItem(ctx, owner, 1, 4, 5)
	require.NoError(t, err)
	item, err := repo.AddItem(ctx, owner, 1, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)
}

func TestUpdateItemQuantity(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	owner := "user:123"

	item, err := repo.AddItem(ctx, owner, 1, 2, 20)
	require.NoError(t, err)

	updated, err := repo.UpdateItemQuantity(ctx, owner, item.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, updated.Quantity)

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 10, cart.Items[0].Quantity)

	_, err = repo.UpdateItemQuantity(ctx, owner, "missing", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveItem_Twice(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	owner := "user:123"

	a, err := repo.AddItem(ctx, owner, 1, 2, 10)
	require.NoError(t, err)
	b, err := repo.AddItem(ctx, owner, 2, 3, 10)
	require.NoError(t, err)

	require.NoError(t, repo.RemoveItem(ctx, owner, a.ID))
	assert.ErrorIs(t, repo.RemoveItem(ctx, owner, a.ID), ErrItemNotFound)

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, b.ID, cart.Items[0].ID)
}

func TestDeleteCart(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	owner := "session:abc"

	_, err := repo.AddItem(ctx, owner, 1, 1, 10)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteCart(ctx, owner))
	assert.ErrorIs(t, repo.DeleteCart(ctx, owner), ErrCartNotFound)

	_, err = repo.GetCart(ctx, owner)
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestAddItem_ConcurrentAddsMergeIntoOneLine(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	owner := "user:77"

	const adds = 10
	var wg sync.WaitGroup
	errs := make(chan error, adds)
	for range adds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AddItem(ctx, owner, 1, 1, 100)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, adds, cart.Items[0].Quantity)
}

func TestAddItem_ConcurrentAddsRespectCap(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	owner := "user:78"

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AddItem(ctx, owner, 2, 2, 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestPruneItems_KeepsItemsAddedAfterCutoff(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	owner := "user:5"

	_, err := repo.AddItem(ctx, owner, 1, 1, 10)
	require.NoError(t, err)

	require.NoError(t, repo.PruneItems(ctx, owner, time.Now().Add(-time.Minute)))

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err, "cart was removed by an older order")
	assert.Len(t, cart.Items, 1)
}

func TestPruneItems_RemovesOrderedItems(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	owner := "user:6"

	ordered, err := repo.AddItem(ctx, owner, 1, 1, 10)
	require.NoError(t, err)
	cutoff := ordered.AddedAt.Add(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	later, err := repo.AddItem(ctx, owner, 2, 1, 10)
	require.NoError(t, err)

	require.NoError(t, repo.PruneItems(ctx, owner, cutoff))

	cart, err := repo.GetCart(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, later.ID, cart.Items[0].ID)
}

func TestPruneItems_DeletesEmptiedCart(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	owner := "session:p"

	_, err := repo.AddItem(ctx, owner, 1, 1, 10)
	require.NoError(t, err)

	require.NoError(t, repo.PruneItems(ctx, owner, time.Now().Add(time.Second)))
	require.NoError(t, repo.PruneItems(ctx, owner, time.Now().Add(time.Second)))

	_, err = repo.GetCart(ctx, owner)
	assert.ErrorIs(t, err, ErrCartNotFound)
}
