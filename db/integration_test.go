package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"scaler-service/db/migrations"
	"scaler-service/models"
)

func setupPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tcpostgres.WithSQLDriver("postgres"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func setupRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(context.Background()) })

	endpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

func TestPostgres_Store(t *testing.T) {
	dsn := setupPostgres(t)
	ctx := context.Background()

	store, err := Open(ctx, dsn, discardLogger())
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, "postgres", store.Dialect())

	id, err := store.CreatePending(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.NoError(t, store.AttachCode(ctx, id, "2Bj"))

	t.Run("find", func(t *testing.T) {
		link, err := store.FindByCode(ctx, "2Bj")
		require.NoError(t, err)
		assert.Equal(t, id, link.ID)
		assert.Equal(t, "https://example.com/a", link.OriginalURL)
		assert.False(t, link.CreatedAt.IsZero())
	})

	t.Run("unique violation is a conflict", func(t *testing.T) {
		other, err := store.CreatePending(ctx, "https://example.com/b")
		require.NoError(t, err)

		err = store.AttachCode(ctx, other, "2Bj")
		var conflict *models.ConflictError
		assert.ErrorAs(t, err, &conflict)
		require.NoError(t, store.DeletePending(ctx, other))
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		const n = 100
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.IncrementClicks(ctx, "2Bj")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		link, err := store.FindByCode(ctx, "2Bj")
		require.NoError(t, err)
		assert.Equal(t, int64(n), link.Clicks)
	})

	t.Run("record clicks and aggregate", func(t *testing.T) {
		missing, err := store.RecordClicks(ctx, []models.ClickEvent{
			{ShortCode: "2Bj", Country: "US"},
			{ShortCode: "2Bj", Country: "US"},
			{ShortCode: "zzz", Country: "DE"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"zzz"}, missing)

		counts, err := store.AggregateByCountry(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.CountryCount{{Name: "US", Clicks: 2}, {Name: "DE", Clicks: 1}}, counts)
	})

	t.Run("list recent", func(t *testing.T) {
		links, err := store.ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "2Bj", links[0].ShortCode)
	})
}

func TestPostgres_MigrationsAreIdempotent(t *testing.T) {
	dsn := setupPostgres(t)

	for i := 0; i < 2; i++ {
		m, err := migrations.New(dsn, discardLogger())
		require.NoError(t, err)
		require.NoError(t, m.Up())

		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)
		assert.False(t, dirty)
		require.NoError(t, m.Close())
	}
}

func TestRedisDB(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	r, err := NewRedisDB(ctx, addr, discardLogger())
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Ping(ctx))

	_, found, err := r.Get(ctx, "none")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.Set(ctx, "abc", "https://example.com", time.Minute))
	val, found, err := r.Get(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://example.com", val)

	require.NoError(t, r.Set(ctx, "short", "x", 50*time.Millisecond))
	time.Sleep(200 * time.Millisecond)
	_, found, err = r.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisDB_Unreachable(t *testing.T) {
	ctx := context.Background()

	// Nothing listens on port 1; construction still succeeds
	r, err := NewRedisDB(ctx, "127.0.0.1:1", discardLogger())
	require.NoError(t, err)
	defer r.Close()

	_, _, err = r.Get(ctx, "abc")
	var cacheErr *models.CacheError
	assert.ErrorAs(t, err, &cacheErr)
}

func TestNewRedisDB_InvalidURL(t *testing.T) {
	_, err := NewRedisDB(context.Background(), "redis://:badport:x", discardLogger())
	assert.Error(t, err)
}
