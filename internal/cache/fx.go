package cache

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const resultCachePrefix = "copybill:"

var Module = fx.Module("cache",
	fx.Provide(ProvideResultCache),
)

type ResultCacheParam struct {
	fx.In

	Log    *zap.Logger
	Client *redis.Client `optional:"true"`
}

// ProvideResultCache shares computed figures across replicas through Redis when a client is configured.
func ProvideResultCache(p ResultCacheParam) ResultCache {
	if p.Client == nil {
		return NoopResultCache{}
	}
	p.Log.Named("cache").Info("result cache backed by redis", zap.String("prefix", resultCachePrefix))
	return NewRedisResultCache(p.Client, resultCachePrefix)
}
