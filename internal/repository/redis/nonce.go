package redisrepo

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	redisx "github.com/kirinyoku/tixledger/internal/redis"
)

// NonceStore keeps one outstanding login challenge per account.
type NonceStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewNonceStore(rdb *redis.Client, ttl time.Duration) *NonceStore {
	return &NonceStore{rdb: rdb, ttl: ttl}
}

// Put replaces any previous challenge for account.
func (s *NonceStore) Put(ctx context.Context, account, nonce string) error {
	return s.rdb.Set(ctx, redisx.KeyLoginNonce(account), nonce, s.ttl).Err()
}

// Take returns and deletes the challenge for account. A challenge can be
// answered once.
func (s *NonceStore) Take(ctx context.Context, account string) (string, bool, error) {
	v, err := s.rdb.GetDel(ctx, redisx.KeyLoginNonce(account)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return v, true, nil
}
