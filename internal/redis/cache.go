package redis

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore handles fare quote caching in Redis.
type CacheStore struct {
	client   *redis.Client
	quoteTTL time.Duration
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client, quoteTTL time.Duration) *CacheStore {
	if quoteTTL <= 0 {
		quoteTTL = DefaultQuoteTTL
	}
	return &CacheStore{client: client, quoteTTL: quoteTTL}
}

// DefaultQuoteTTL bounds how long an on-chain quote is trusted.
const DefaultQuoteTTL = 5 * time.Minute

const quoteCachePrefix = "cache:quote:"

// CachedQuote represents a cached on-chain fare quote.
type CachedQuote struct {
	DistanceKm string `json:"distance_km"`
	FareWei    string `json:"fare_wei"`
}

// GetQuote retrieves the quote for a distance from cache.
// A miss returns nil with no error.
func (s *CacheStore) GetQuote(ctx context.Context, distanceKm string) (*big.Int, error) {
	data, err := s.client.Get(ctx, quoteCachePrefix+distanceKm).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var quote CachedQuote
	if err := json.Unmarshal(data, &quote); err != nil {
		return nil, err
	}
	wei, ok := new(big.Int).SetString(quote.FareWei, 10)
	if !ok {
		return nil, nil
	}
	return wei, nil
}

// SetQuote stores the quote for a distance.
func (s *CacheStore) SetQuote(ctx context.Context, distanceKm string, fareWei *big.Int) error {
	data, err := json.Marshal(CachedQuote{DistanceKm: distanceKm, FareWei: fareWei.String()})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, quoteCachePrefix+distanceKm, data, s.quoteTTL).Err()
}

// InvalidateQuote removes the quote for a distance.
func (s *CacheStore) InvalidateQuote(ctx context.Context, distanceKm string) error {
	return s.client.Del(ctx, quoteCachePrefix+distanceKm).Err()
}
