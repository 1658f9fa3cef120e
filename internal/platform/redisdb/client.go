package redisdb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

type Client struct {
	RDB *goredis.Client
	log *logger.Logger
}

// NewFromEnv connects using REDIS_ADDR. Returns (nil, nil) when the
// variable is unset so callers can fall back to in-process caching.
func NewFromEnv(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("redisdb: logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}
	password := strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisdb: ping: %w", err)
	}

	return &Client{
		RDB: rdb,
		log: log.With("client", "RedisDB"),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.RDB == nil {
		return nil
	}
	err := c.RDB.Close()
	c.RDB = nil
	return err
}
