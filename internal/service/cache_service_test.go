package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type fakeCacheRepo struct {
	mu      sync.Mutex
	store   map[string]interface{}
	getErr  error
	deleted []string
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{store: make(map[string]interface{})}
}

func (f *fakeCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return f.getErr
	}
	value, ok := f.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if target, ok := dest.(*[]string); ok {
		*target = value.([]string)
	}
	return nil
}

func (f *fakeCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = value
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	f.deleted = append(f.deleted, pattern)
	f.store = make(map[string]interface{})
	return nil
}

func TestCacheServiceHitAndMiss(t *testing.T) {
	repo := newFakeCacheRepo()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, nil, true)

	var out []string
	hit, err := svc.Get(context.Background(), "catalog:categories", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(context.Background(), "catalog:categories", []string{"go"}, 0))
	hit, err = svc.Get(context.Background(), "catalog:categories", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"go"}, out)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.0001)
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := newFakeCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)

	require.NoError(t, svc.Set(context.Background(), "k", []string{"v"}, 0))
	assert.Empty(t, repo.store)

	var out []string
	hit, err := svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceGetErrorSurfaces(t *testing.T) {
	repo := newFakeCacheRepo()
	repo.getErr = errors.New("redis down")
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	var out []string
	hit, err := svc.Get(context.Background(), "k", &out)
	require.Error(t, err)
	assert.False(t, hit)
}

func TestCacheServiceInvalidateCatalog(t *testing.T) {
	repo := newFakeCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	require.NoError(t, svc.InvalidateCatalog(context.Background()))
	assert.Equal(t, []string{"catalog:*"}, repo.deleted)
}

func TestCatalogKey(t *testing.T) {
	assert.Equal(t, "catalog:categories", CatalogKey("categories"))

	a := CatalogKey("courses", "go", "1", "20")
	b := CatalogKey("courses", "go", "1", "20")
	c := CatalogKey("courses", "go", "2", "20")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "catalog:courses:")
}

func TestCacheServiceRememberLoadsOnceThenHits(t *testing.T) {
	repo := newFakeCacheRepo()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()
	loads := 0
	load := func(context.Context) (interface{}, error) {
		loads++
		return []string{"go", "rust"}, nil
	}

	var first []string
	hit, err := svc.Remember(ctx, "catalog:categories", &first, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"go", "rust"}, first)

	var second []string
	hit, err = svc.Remember(ctx, "catalog:categories", &second, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads)
}

func TestCacheServiceRememberSurvivesStorageOutage(t *testing.T) {
	repo := newFakeCacheRepo()
	repo.getErr = errors.New("redis down")
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	var out []string
	hit, err := svc.Remember(context.Background(), "k", &out, func(context.Context) (interface{}, error) {
		return []string{"fresh"}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"fresh"}, out)
}

func TestCacheServiceRememberDoesNotStoreErrors(t *testing.T) {
	repo := newFakeCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)

	var out []string
	_, err := svc.Remember(context.Background(), "k", &out, func(context.Context) (interface{}, error) {
		return nil, appErrors.ErrNotFound
	})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, repo.store)
}

func TestCacheServiceRememberCollapsesConcurrentMisses(t *testing.T) {
	svc := NewCacheService(nil, nil, time.Minute, nil, false)
	var calls int32
	gate := make(chan struct{})
	load := func(context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-gate
		return []string{"shared"}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Remember(context.Background(), "catalog:course:go", &results[i], load)
			assert.NoError(t, err)
		}(i)
	}
	// Give every caller time to join the in-flight load before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, got := range results {
		assert.Equal(t, []string{"shared"}, got)
	}
	results[0][0] = "mutated"
	assert.Equal(t, "shared", results[1][0])
}
