package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func newSequenceRepo(t *testing.T) (*SequenceRepository, *miniredis.Miniredis) {
	t.Helper()
	client, mr := newRedisClient(t)
	repo := NewSequenceRepository(client, time.UTC, nil)
	// Thu, fixed.
	repo.now = func() time.Time { return time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC) }
	return repo, mr
}

func TestSequenceRepositoryBootstrapPreservesLiveState(t *testing.T) {
	repo, mr := newSequenceRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Bootstrap(ctx))

	_, n, err := repo.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// A restart must not reset the counter.
	require.NoError(t, repo.Bootstrap(ctx))
	got, err := mr.Get(keyConfessionCounter)
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestSequenceRepositorySameDayIsGapFree(t *testing.T) {
	repo, _ := newSequenceRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Bootstrap(ctx))

	for want := int64(1); want <= 5; want++ {
		day, n, err := repo.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Thu", day)
		assert.Equal(t, want, n)
	}
}

func TestSequenceRepositoryConcurrentNextIsGapFree(t *testing.T) {
	repo, _ := newSequenceRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Bootstrap(ctx))

	// Simultaneous accepts contend on the watched keys; every call must
	// still come back with its own number, no gaps and no duplicates.
	const accepts = 8
	numbers := make([]int64, accepts)
	errs := make([]error, accepts)

	var wg sync.WaitGroup
	for i := 0; i < accepts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, numbers[i], errs[i] = repo.Next(ctx)
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, accepts)
	for i := 0; i < accepts; i++ {
		require.NoError(t, errs[i])
		seen[numbers[i]] = true
	}
	for want := int64(1); want <= accepts; want++ {
		assert.True(t, seen[want], "number %d never assigned", want)
	}
}

func TestSequenceRepositoryResetsOnDayBoundary(t *testing.T) {
	repo, _ := newSequenceRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Bootstrap(ctx))

	_, n, err := repo.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	_, n, err = repo.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	repo.now = func() time.Time { return time.Date(2024, 5, 3, 0, 30, 0, 0, time.UTC) }

	day, n, err := repo.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fri", day)
	assert.Equal(t, int64(1), n)

	// No mid-day reset afterwards.
	_, n, err = repo.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSequenceRepositoryNextWithoutBootstrap(t *testing.T) {
	repo, _ := newSequenceRepo(t)

	day, n, err := repo.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Thu", day)
	assert.Equal(t, int64(1), n)
}
