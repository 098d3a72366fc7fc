package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/aegis-moderation/internal/types"
)

const keyPrefix = "moderation:verdict:"

// Redis shares verdicts between replicas.
type Redis struct {
	data *cache.Cache
	ttl  time.Duration
}

var _ Cache = (*Redis)(nil)

func NewRedis(rdb redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{
		data: cache.New(&cache.Options{Redis: rdb}),
		ttl:  ttl,
	}
}

func (r *Redis) Get(ctx context.Context, key string) (*types.ModerationVerdict, error) {
	var b []byte
	err := r.data.Get(ctx, keyPrefix+key, &b)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(b)
}

func (r *Redis) Set(ctx context.Context, key string, v *types.ModerationVerdict) error {
	b, err := encode(v)
	if err != nil {
		return err
	}
	return r.data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   keyPrefix + key,
		Value: b,
		TTL:   r.ttl,
	})
}
