package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subscription-sync/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	productPricesKey  = "product_prices"
	transactionPrefix = "processed_transaction:"
)

// RedisService backs the product price cache and transaction dedup with Redis.
type RedisService struct {
	client         *redis.Client
	transactionTTL time.Duration
}

// NewRedisService wraps an already connected client.
func NewRedisService(client *redis.Client, transactionTTL time.Duration) *RedisService {
	if transactionTTL <= 0 {
		transactionTTL = 24 * time.Hour
	}
	return &RedisService{client: client, transactionTTL: transactionTTL}
}

// CachePrices stores the subscription prices for expire.
func (r *RedisService) CachePrices(ctx context.Context, prices models.SubscriptionPrices, expire time.Duration) error {
	data := map[string]interface{}{
		"weekly":    prices.Weekly,
		"monthly":   prices.Monthly,
		"cached_at": time.Now().Unix(),
	}

	if err := r.client.HSet(ctx, productPricesKey, data).Err(); err != nil {
		return fmt.Errorf("failed to cache prices: %w", err)
	}
	return r.client.Expire(ctx, productPricesKey, expire).Err()
}

// CachedPrices returns the cached prices. ok is false on a cache miss.
func (r *RedisService) CachedPrices(ctx context.Context) (prices models.SubscriptionPrices, ok bool, err error) {
	values, err := r.client.HMGet(ctx, productPricesKey, "weekly", "monthly").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return prices, false, nil
		}
		return prices, false, err
	}

	weekly, _ := values[0].(string)
	monthly, _ := values[1].(string)
	if weekly == "" && monthly == "" {
		return prices, false, nil
	}

	return models.SubscriptionPrices{Weekly: weekly, Monthly: monthly}, true, nil
}

// Seen implements TransactionDeduper with SETNX.
func (r *RedisService) Seen(ctx context.Context, transactionID string) (bool, error) {
	if transactionID == "" {
		return false, nil
	}

	created, err := r.client.SetNX(ctx, transactionPrefix+transactionID, time.Now().Unix(), r.transactionTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record transaction: %w", err)
	}
	return !created, nil
}

// Forget deletes a recorded transaction.
func (r *RedisService) Forget(ctx context.Context, transactionID string) error {
	return r.client.Del(ctx, transactionPrefix+transactionID).Err()
}
