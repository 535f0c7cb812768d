package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func walletLockKey(address string) string {
	return fmt.Sprintf("lock:wallet:%s", strings.ToLower(address))
}

// AcquireWalletLock attempts to acquire the ride request lock for a wallet address.
// Returns true if the lock was acquired, false if already held.
func (s *LockStore) AcquireWalletLock(ctx context.Context, address string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, walletLockKey(address), "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleaseWalletLock releases the ride request lock for a wallet address.
func (s *LockStore) ReleaseWalletLock(ctx context.Context, address string) error {
	return s.client.Del(ctx, walletLockKey(address)).Err()
}
