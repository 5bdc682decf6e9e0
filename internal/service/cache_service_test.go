package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/pulse-metrics-api/pkg/errors"
)

type fakeCacheRepo struct {
	store map[string][]byte
	err   error
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{store: make(map[string][]byte)}
}

func (f *fakeCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if f.err != nil {
		return f.err
	}
	payload, ok := f.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (f *fakeCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if f.err != nil {
		return f.err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.store[key] = payload
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(_ context.Context, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.store = make(map[string][]byte)
	return nil
}

func TestCacheServiceRoundTrip(t *testing.T) {
	svc := NewCacheService(newFakeCacheRepo(), NewInstrumentationService(), time.Minute, nil, true)
	ctx := context.Background()

	var out string
	hit, err := svc.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "k", "v", 0))
	hit, err = svc.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "v", out)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newFakeCacheRepo()
	svc := NewCacheService(repo, NewInstrumentationService(), time.Minute, nil, false)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "k", "v", 0))
	assert.Empty(t, repo.store)

	var out string
	hit, err := svc.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceNilIsInert(t *testing.T) {
	var svc *CacheService

	var out string
	hit, err := svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, svc.Set(context.Background(), "k", "v", 0))
	require.NoError(t, svc.Invalidate(context.Background(), "*"))
}

func TestCacheServiceSurfacesRepoFailure(t *testing.T) {
	repo := newFakeCacheRepo()
	repo.err = errors.New("redis down")
	svc := NewCacheService(repo, NewInstrumentationService(), time.Minute, nil, true)

	var out string
	hit, err := svc.Get(context.Background(), "k", &out)
	require.Error(t, err)
	assert.False(t, hit)
}

func TestCacheServiceHitRatioRecorded(t *testing.T) {
	instr := NewInstrumentationService()
	svc := NewCacheService(newFakeCacheRepo(), instr, time.Minute, nil, true)
	ctx := context.Background()

	var out string
	_, _ = svc.Get(ctx, "k", &out)
	require.NoError(t, svc.Set(ctx, "k", "v", 0))
	_, _ = svc.Get(ctx, "k", &out)

	snapshot := instr.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)
	assert.InDelta(t, 0.5, snapshot.CacheHitRatio, 1e-9)
}
