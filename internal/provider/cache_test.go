package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/models"
	"cloudops-agent/internal/provider/providertest"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedProvider_GetUsage_MissThenHit(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()

	inner := new(providertest.MockProvider)
	inner.On("GetUsage", mock.Anything).
		Return(&models.Usage{VCPUs: 4, RAMMB: 8192, VolumesGB: 10, VMCount: 2, VolumeCount: 1}, nil).
		Once()

	p := NewCachedProvider(inner, client, time.Minute, logger.NewTestLogger(t))

	first, err := p.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, first.VCPUs)
	assert.True(t, mr.Exists(UsageCacheKey))
	assert.Equal(t, time.Minute, mr.TTL(UsageCacheKey))

	second, err := p.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	inner.AssertNumberOfCalls(t, "GetUsage", 1)
}

func TestCachedProvider_MutationInvalidates(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()

	inner := NewMemoryProvider(nil, Quota{}, "")
	p := NewCachedProvider(inner, client, time.Minute, logger.NewNoOpLogger())

	usage, err := p.GetUsage(ctx)
	require.NoError(t, err)
	assert.Zero(t, usage.VMCount)
	assert.True(t, mr.Exists(UsageCacheKey))

	_, err = p.CreateVM(ctx, "web01", "S.4")
	require.NoError(t, err)
	assert.False(t, mr.Exists(UsageCacheKey))

	usage, err = p.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.VMCount)

	_, err = p.CreateVolume(ctx, "data", 5)
	require.NoError(t, err)
	assert.False(t, mr.Exists(UsageCacheKey))
}

func TestCachedProvider_FailedMutationKeepsSnapshot(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()

	p := NewCachedProvider(NewMemoryProvider(nil, Quota{}, ""), client, time.Minute, logger.NewNoOpLogger())

	_, err := p.GetUsage(ctx)
	require.NoError(t, err)

	err = p.DeleteVM(ctx, "ghost")
	assert.Error(t, err)
	assert.True(t, mr.Exists(UsageCacheKey))
}

func TestCachedProvider_RedisFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	client, redisMock := redismock.NewClientMock()

	want := &models.Usage{VCPUs: 1, RAMMB: 2048, VMCount: 1}

	redisMock.ExpectGet(UsageCacheKey).SetErr(errors.New("connection refused"))
	redisMock.ExpectGet(UsageGenerationKey).SetErr(errors.New("connection refused"))

	inner := new(providertest.MockProvider)
	inner.On("GetUsage", mock.Anything).Return(want, nil)

	p := NewCachedProvider(inner, client, 30*time.Second, logger.NewTestLogger(t))

	got, err := p.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCachedProvider_InnerErrorPassesThrough(t *testing.T) {
	ctx := context.Background()
	client, redisMock := redismock.NewClientMock()
	redisMock.ExpectGet(UsageCacheKey).RedisNil()
	redisMock.ExpectGet(UsageGenerationKey).RedisNil()

	inner := new(providertest.MockProvider)
	inner.On("GetUsage", mock.Anything).Return(nil, errors.New("keystone unavailable"))

	p := NewCachedProvider(inner, client, time.Minute, logger.NewNoOpLogger())

	_, err := p.GetUsage(ctx)
	assert.EqualError(t, err, "keystone unavailable")
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCachedProvider_SnapshotReadBeforeMutationIsNotStored(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()

	stale := &models.Usage{VMCount: 1, VCPUs: 1, RAMMB: 4096}
	inner := new(providertest.MockProvider)
	inner.On("GetUsage", mock.Anything).
		Run(func(mock.Arguments) {
			// Another replica deletes a VM while this read is in flight.
			_, err := mr.Incr(UsageGenerationKey, 1)
			require.NoError(t, err)
		}).
		Return(stale, nil).Once()

	p := NewCachedProvider(inner, client, time.Minute, logger.NewTestLogger(t))

	got, err := p.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, stale, got)
	assert.False(t, mr.Exists(UsageCacheKey))
}

func TestCachedProvider_InvalidatesAfterCallerGaveUp(t *testing.T) {
	mr, client := setupMiniredis(t)

	require.NoError(t, mr.Set(UsageCacheKey, `{"vm_count":0}`))

	inner := new(providertest.MockProvider)
	inner.On("CreateVM", mock.Anything, "web01", "S.4").Return("srv-1", nil).Once()
	inner.On("DeleteVM", mock.Anything, "web02").Return(context.DeadlineExceeded).Once()

	p := NewCachedProvider(inner, client, time.Minute, logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.CreateVM(ctx, "web01", "S.4")
	require.NoError(t, err)
	assert.False(t, mr.Exists(UsageCacheKey))
	gen, err := mr.Get(UsageGenerationKey)
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	// A timed out mutation may still have happened.
	require.NoError(t, mr.Set(UsageCacheKey, `{"vm_count":1}`))
	err = p.DeleteVM(context.Background(), "web02")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, mr.Exists(UsageCacheKey))
}
