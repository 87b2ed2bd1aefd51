package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mverdun/farewatch/config"
	"github.com/mverdun/farewatch/internal/domain"
)

// RedisCache keeps the latest stored deals so the dashboard listing does
// not hit SQLite on every request. A miss returns (nil, nil).
type RedisCache struct {
	client   *redis.Client
	dealsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, dealsTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:   redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		dealsTTL: dealsTTL,
	}
}

func (c *RedisCache) GetLatestDeals(ctx context.Context) ([]domain.StoredDeal, error) {
	data, err := c.client.Get(ctx, latestDealsKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var deals []domain.StoredDeal
	if err := json.Unmarshal(data, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

func (c *RedisCache) SetLatestDeals(ctx context.Context, deals []domain.StoredDeal) error {
	payload, err := json.Marshal(deals)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, latestDealsKey(), payload, c.dealsTTL).Err()
}

func latestDealsKey() string {
	return "cache:deals:latest"
}
