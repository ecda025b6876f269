package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/models"
)

const (
	// UsageCacheKey holds the last usage snapshot.
	UsageCacheKey = "cloudops:usage"
	// UsageGenerationKey is bumped by every mutation. A snapshot read before
	// the bump is never written after it.
	UsageGenerationKey = "cloudops:usage:generation"
)

// storeIfCurrent writes the snapshot only while the generation still matches
// the one seen before the provider was queried.
var storeIfCurrent = redis.NewScript(`
if (redis.call("GET", KEYS[2]) or "0") == ARGV[1] then
	return redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
end
return false
`)

// CachedProvider serves GetUsage from Redis and drops the snapshot after any
// mutation that may have changed the project. Cache failures never fail the
// call.
type CachedProvider struct {
	Provider
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

// DefaultUsageCacheTTL applies when no positive TTL is configured.
const DefaultUsageCacheTTL = 30 * time.Second

func NewCachedProvider(inner Provider, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultUsageCacheTTL
	}
	return &CachedProvider{
		Provider: inner,
		redis:    rdb,
		ttl:      ttl,
		logger:   logger.Component(log, "usage-cache"),
	}
}

func (c *CachedProvider) GetUsage(ctx context.Context) (*models.Usage, error) {
	val, err := c.redis.Get(ctx, UsageCacheKey).Result()
	if err == nil {
		var usage models.Usage
		if err := json.Unmarshal([]byte(val), &usage); err == nil {
			return &usage, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("usage cache read failed", map[string]interface{}{"error": err.Error()})
	}

	generation, err := c.redis.Get(ctx, UsageGenerationKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		generation = "0"
	case err != nil:
		c.logger.Warn("usage cache generation read failed", map[string]interface{}{"error": err.Error()})
		generation = ""
	}

	usage, err := c.Provider.GetUsage(ctx)
	if err != nil {
		return nil, err
	}
	if generation == "" {
		return usage, nil
	}

	data, _ := json.Marshal(usage)
	keys := []string{UsageCacheKey, UsageGenerationKey}
	err = storeIfCurrent.Run(ctx, c.redis, keys, generation, string(data), c.ttl.Milliseconds()).Err()
	switch {
	case errors.Is(err, redis.Nil):
		c.logger.Debug("usage snapshot skipped, a mutation happened meanwhile", nil)
	case err != nil:
		c.logger.Warn("usage cache write failed", map[string]interface{}{"error": err.Error()})
	}
	return usage, nil
}

func (c *CachedProvider) CreateVM(ctx context.Context, name, flavor string) (string, error) {
	id, err := c.Provider.CreateVM(ctx, name, flavor)
	c.invalidate(ctx, err)
	return id, err
}

func (c *CachedProvider) ResizeVM(ctx context.Context, name, flavor string) error {
	err := c.Provider.ResizeVM(ctx, name, flavor)
	c.invalidate(ctx, err)
	return err
}

func (c *CachedProvider) DeleteVM(ctx context.Context, name string) error {
	err := c.Provider.DeleteVM(ctx, name)
	c.invalidate(ctx, err)
	return err
}

func (c *CachedProvider) CreateNetwork(ctx context.Context, name string) (*models.NetworkResult, error) {
	return c.Provider.CreateNetwork(ctx, name)
}

func (c *CachedProvider) CreateVolume(ctx context.Context, name string, sizeGB int) (string, error) {
	id, err := c.Provider.CreateVolume(ctx, name, sizeGB)
	c.invalidate(ctx, err)
	return id, err
}

func (c *CachedProvider) DeleteVolume(ctx context.Context, name string) error {
	err := c.Provider.DeleteVolume(ctx, name)
	c.invalidate(ctx, err)
	return err
}

// invalidate runs after every mutation except one the cloud definitely
// rejected. A deadline or cancellation leaves the outcome unknown, and the
// caller's context may already be done, so the cache is cleared under a
// context that ignores cancellation.
func (c *CachedProvider) invalidate(ctx context.Context, opErr error) {
	if opErr != nil && !errors.Is(opErr, context.DeadlineExceeded) && !errors.Is(opErr, context.Canceled) {
		return
	}

	ctx = context.WithoutCancel(ctx)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, UsageGenerationKey)
		pipe.Del(ctx, UsageCacheKey)
		return nil
	})
	if err != nil {
		c.logger.Warn("usage cache invalidation failed", map[string]interface{}{"error": err.Error()})
	}
}
