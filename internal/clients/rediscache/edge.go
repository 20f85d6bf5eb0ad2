package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wordbloom/analytics-backend/internal/logger"
	"github.com/wordbloom/analytics-backend/internal/types"
)

// EdgeCache is the low-latency cache tier for materialized leaderboard
// payloads. A nil payload with a nil error is a miss.
type EdgeCache interface {
	GetPayload(ctx context.Context, key string) (*types.CachePayload, error)
	SetPayload(ctx context.Context, key string, payload *types.CachePayload, ttl time.Duration) error
	Close() error
}

type edgeCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewEdgeCache(log *logger.Logger, addr string) (EdgeCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &edgeCache{
		log: log.With("client", "EdgeCache"),
		rdb: rdb,
	}, nil
}

func (c *edgeCache) GetPayload(ctx context.Context, key string) (*types.CachePayload, error) {
	if c == nil || c.rdb == nil {
		return nil, fmt.Errorf("edge cache not initialized")
	}
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var payload types.CachePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("bad edge cache payload: %w", err)
	}
	return &payload, nil
}

func (c *edgeCache) SetPayload(ctx context.Context, key string, payload *types.CachePayload, ttl time.Duration) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("edge cache not initialized")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

func (c *edgeCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
