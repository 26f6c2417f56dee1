package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mallify-hub/internal/model"
)

const (
	activeSalesKey    = "mallify:flash_sales:active"
	defaultActiveTTL  = 15 * time.Second
	defaultKeyTimeout = 2 * time.Second
)

type Options struct {
	Addr      string
	Password  string
	DB        int
	ActiveTTL time.Duration
}

// ActiveSaleCache keeps a short-lived copy of the active-sales listing.
// A nil *ActiveSaleCache is valid and always misses.
type ActiveSaleCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     50,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewActiveSaleCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ActiveSaleCache {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultActiveTTL
	}
	return &ActiveSaleCache{client: client, ttl: ttl, logger: logger}
}

func (c *ActiveSaleCache) GetActive(ctx context.Context) ([]*model.FlashSale, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	raw, err := c.client.Get(ctx, activeSalesKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var sales []*model.FlashSale
	if err := json.Unmarshal(raw, &sales); err != nil {
		// A corrupt entry is dropped and treated as a miss.
		c.logger.Warn("discard unreadable active sale cache entry", zap.Error(err))
		_ = c.client.Del(ctx, activeSalesKey).Err()
		return nil, false, nil
	}
	return sales, true, nil
}

func (c *ActiveSaleCache) SetActive(ctx context.Context, sales []*model.FlashSale) error {
	if c == nil {
		return nil
	}

	raw, err := json.Marshal(sales)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, activeSalesKey, raw, c.ttl).Err()
}

func (c *ActiveSaleCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, activeSalesKey).Err()
}

// InvalidateAsync is shaped for event bus subscribers, which carry no context.
func (c *ActiveSaleCache) InvalidateAsync(_ any) {
	if c == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultKeyTimeout)
	defer cancel()

	if err := c.Invalidate(ctx); err != nil {
		c.logger.Warn("invalidate active sale cache failed", zap.Error(err))
	}
}

func (c *ActiveSaleCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
