package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisPendingStore keeps one list per session: RPUSH on arrival, LPOP on listen.
// Every push refreshes the key TTL.
type RedisPendingStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisPendingStore(client *redis.Client, prefix string, ttl time.Duration) *RedisPendingStore {
	return &RedisPendingStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisPendingStore) key(sessionID string) string {
	return s.prefix + "pending:" + sessionID
}

func (s *RedisPendingStore) Push(ctx context.Context, sessionID, message string) error {
	key := s.key(sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, message)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("push pending reply: %w", err)
	}
	return nil
}

func (s *RedisPendingStore) Pop(ctx context.Context, sessionID string) (string, bool, error) {
	msg, err := s.client.LPop(ctx, s.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pop pending reply: %w", err)
	}
	return msg, true, nil
}
