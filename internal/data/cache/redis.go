package cache

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/redisdb"
)

// Redis backs the item cache with a shared Redis instance so multiple
// API replicas see the same invalidations.
type Redis struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewRedis(client *redisdb.Client, ttl time.Duration, log *logger.Logger) *Redis {
	return &Redis{
		rdb: client.RDB,
		ttl: ttl,
		log: log.With("cache", "RedisItemCache"),
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			r.log.Warn("cache get failed (treated as miss)", "key", key, "error", err)
		}
		return nil, false
	}
	return raw, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) {
	if err := r.rdb.Set(ctx, key, value, r.ttl).Err(); err != nil {
		r.log.Warn("cache set failed (skipped)", "key", key, "error", err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		r.log.Warn("cache invalidate failed", "keys", keys, "error", err)
	}
}
