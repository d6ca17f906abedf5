package common

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"

	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/common/logger"
)

var RDB redis.Cmdable

var redisEnabled atomic.Bool

func IsRedisEnabled() bool {
	return redisEnabled.Load()
}

// InitRedisClient connects to Redis when DRAMA_REDIS_CONN_STRING is set;
// otherwise the in-process cache is used instead.
func InitRedisClient() error {
	if config.RedisConnString == "" {
		redisEnabled.Store(false)
		logger.Logger.Info("DRAMA_REDIS_CONN_STRING not set, Redis is not enabled")
		return nil
	}

	opt, err := redis.ParseURL(config.RedisConnString)
	if err != nil {
		logger.Logger.Fatal("failed to parse Redis connection string", zap.Error(err))
	}
	RDB = redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err = RDB.Ping(ctx).Result(); err != nil {
		logger.Logger.Fatal("Redis ping test failed", zap.Error(err))
	}
	redisEnabled.Store(true)
	logger.Logger.Info("Redis is enabled")
	return nil
}

func RedisSet(key string, value string, expiration time.Duration) error {
	ctx := context.Background()
	return RDB.Set(ctx, key, value, expiration).Err()
}

func RedisGet(key string) (string, error) {
	ctx := context.Background()
	return RDB.Get(ctx, key).Result()
}

func RedisDel(key string) error {
	ctx := context.Background()
	return RDB.Del(ctx, key).Err()
}
