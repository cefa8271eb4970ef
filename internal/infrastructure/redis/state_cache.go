package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"auction-engine/internal/domain"

	"github.com/go-redis/redis/v8"
)

// RedisStateCache is the fast-path status cache consulted before the
// authoritative repository read in PlaceBid. A miss is reported as
// found=false, never as a status.
type RedisStateCache struct {
	client *redis.Client
}

func NewRedisStateCache(client *redis.Client) *RedisStateCache {
	return &RedisStateCache{client: client}
}

func (r *RedisStateCache) SetAuctionStatus(ctx context.Context, auctionID string, status domain.AuctionStatus) error {
	key := fmt.Sprintf("auction:%s:status", auctionID)
	return r.client.Set(ctx, key, int(status), 0).Err()
}

func (r *RedisStateCache) GetAuctionStatus(ctx context.Context, auctionID string) (domain.AuctionStatus, bool, error) {
	key := fmt.Sprintf("auction:%s:status", auctionID)

	result, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}

	status, err := strconv.Atoi(result)
	if err != nil {
		return 0, false, err
	}
	return domain.AuctionStatus(status), true, nil
}
