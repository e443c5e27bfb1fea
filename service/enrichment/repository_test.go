package enrichment

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrate "github.com/mikeydub/go-union/db"
	"github.com/mikeydub/go-union/docker"
	"github.com/mikeydub/go-union/service/persist"
	"github.com/mikeydub/go-union/service/persist/postgres"
	"github.com/mikeydub/go-union/service/redis"
)

const composeFile = "../../docker-compose.yml"

func requireDocker(t *testing.T) {
	t.Helper()
	if os.Getenv("DOCKER_INTEGRATION") == "" {
		t.Skip("set DOCKER_INTEGRATION to run against containers")
	}
}

func TestMemoryRepository(t *testing.T) {
	testRepositoryContract(t, NewMemoryRepository())
}

func TestRedisRepository(t *testing.T) {
	requireDocker(t)

	rd := docker.InitRedis(composeFile)
	t.Cleanup(func() { docker.Purge(rd) })

	testRepositoryContract(t, NewRedisRepository(redis.NewCache(redis.EnrichmentCache)))
}

func TestPostgresRepository(t *testing.T) {
	requireDocker(t)

	pg := docker.InitPostgres(composeFile)
	t.Cleanup(func() { docker.Purge(pg) })

	require.NoError(t, migrate.RunEnrichmentDBMigration())

	pool, err := postgres.NewPgxClient(context.Background())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	testRepositoryContract(t, NewPostgresRepository(pool))
}

func testRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()
	key := ItemKey(testItem)
	other := CollectionKey(testCollection)

	t.Run("missing records are not found", func(t *testing.T) {
		_, err := repo.Get(ctx, key)
		assert.ErrorIs(t, err, ErrRecordNotFound)

		found, err := repo.FindAll(ctx, []Key{key, other})
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("saves are version checked", func(t *testing.T) {
		rec := NewRecord(key)
		rec.UpsertOrder(persist.OrderSideSell, usdc, sellShort("0x1", 10), "")
		rec.LastUpdatedAt = time.Now().UTC()

		saved, err := repo.Save(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, int64(1), saved.Version)

		_, err = repo.Save(ctx, rec)
		assert.ErrorIs(t, err, ErrVersionConflict)

		saved.UpsertOrder(persist.OrderSideSell, usdc, sellShort("0x2", 5), "")
		saved, err = repo.Save(ctx, saved)
		require.NoError(t, err)
		assert.Equal(t, int64(2), saved.Version)

		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		require.NotNil(t, got.BestSellOrder)
		assert.Equal(t, "0x2", got.BestSellOrder.ID.Hash)
	})

	t.Run("batches return only stored records", func(t *testing.T) {
		found, err := repo.FindAll(ctx, []Key{key, other})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, key, found[key].Key)
	})

	t.Run("deleted records are not found", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, key))

		_, err := repo.Get(ctx, key)
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})
}
