package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Laisky/zap"
	gocache "github.com/patrickmn/go-cache"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/logger"
)

const tenantCacheTTL = 5 * time.Minute

// memoryCache backs tenant lookups when Redis is not configured.
var memoryCache = gocache.New(tenantCacheTTL, 10*time.Minute)

func tenantKeyCacheKey(apiKey string) string {
	return fmt.Sprintf("tenant_by_key:%s", apiKey)
}

// CacheGetTenantByAPIKey resolves an API key to a tenant through the cache,
// falling back to the database on a miss. Stale entries are bounded by the
// TTL; mutations call CacheInvalidateTenant.
func CacheGetTenantByAPIKey(key string) (*Tenant, error) {
	cacheKey := tenantKeyCacheKey(key)

	if common.IsRedisEnabled() {
		if raw, err := common.RedisGet(cacheKey); err == nil {
			var tenant Tenant
			if err = json.Unmarshal([]byte(raw), &tenant); err == nil {
				return &tenant, nil
			}
			logger.Logger.Warn("failed to unmarshal cached tenant", zap.Error(err))
		}
	} else if cached, ok := memoryCache.Get(cacheKey); ok {
		if tenant, ok := cached.(*Tenant); ok {
			return tenant, nil
		}
	}

	tenant, err := GetTenantByAPIKey(key)
	if err != nil {
		return nil, err
	}

	if common.IsRedisEnabled() {
		if raw, err := json.Marshal(tenant); err == nil {
			if err = common.RedisSet(cacheKey, string(raw), tenantCacheTTL); err != nil {
				logger.Logger.Warn("failed to cache tenant in redis", zap.Error(err))
			}
		}
	} else {
		memoryCache.Set(cacheKey, tenant, tenantCacheTTL)
	}
	return tenant, nil
}

// CacheInvalidateTenant drops the cached entry for the tenant's API key.
// Called whenever the tenant row is mutated.
func CacheInvalidateTenant(apiKey string) {
	if apiKey == "" {
		return
	}
	cacheKey := tenantKeyCacheKey(apiKey)
	if common.IsRedisEnabled() {
		if err := common.RedisDel(cacheKey); err != nil {
			logger.Logger.Warn("failed to invalidate tenant cache", zap.Error(err))
		}
		return
	}
	memoryCache.Delete(cacheKey)
}
