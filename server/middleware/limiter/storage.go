package limiter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage keeps token buckets. Update applies fn to the bucket stored
// under key (found reports whether one existed) and persists the result.
type Storage interface {
	Update(ctx context.Context, key string, fn func(b *Bucket, found bool)) (Bucket, error)
	Reset(ctx context.Context) error
}

type InMemoryStorage struct {
	mu      sync.Mutex
	buckets map[string]Bucket
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{buckets: make(map[string]Bucket)}
}

func (s *InMemoryStorage) Update(_ context.Context, key string, fn func(b *Bucket, found bool)) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, found := s.buckets[key]
	fn(&b, found)
	s.buckets[key] = b
	return b, nil
}

func (s *InMemoryStorage) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]Bucket)
	return nil
}

// RedisStorage shares buckets between server processes. Updates use
// WATCH so concurrent requests for the same key cannot both spend the
// last token.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStorage(client *redis.Client, prefix string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, prefix: prefix + "ratelimit:", ttl: ttl}
}

const maxUpdateAttempts = 3

func (s *RedisStorage) Update(ctx context.Context, key string, fn func(b *Bucket, found bool)) (Bucket, error) {
	redisKey := s.prefix + key
	var result Bucket

	txf := func(tx *redis.Tx) error {
		var b Bucket
		found := true

		data, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			found = false
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &b); err != nil {
				found = false
			}
		}

		fn(&b, found)
		encoded, err := json.Marshal(b)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, encoded, s.ttl)
			return nil
		})
		if err == nil {
			result = b
		}
		return err
	}

	var err error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err = s.client.Watch(ctx, txf, redisKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return result, err
		}
	}
	return result, err
}

// Reset removes every bucket under the prefix
func (s *RedisStorage) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
