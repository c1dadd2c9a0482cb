// Package redisstore keeps the namespace in Redis. Writes are announced on
// a pub/sub channel so other processes sharing the instance can re-read.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tutorhub/pkg/breaker"
	"tutorhub/pkg/logger"
	"tutorhub/store"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	watchBuffer = 64
	scanCount   = 200
)

type Options struct {
	Prefix  string
	Channel string
	Logger  *logger.Logger
}

type Handle struct {
	client  *redis.Client
	prefix  string
	channel string
	origin  string
	cb      *gobreaker.CircuitBreaker
	log     *logger.Logger

	mu     sync.Mutex
	closed bool
	subs   []*redis.PubSub
}

// New wraps an established client. The client stays owned by the caller.
func New(client *redis.Client, opts Options) *Handle {
	if opts.Logger == nil {
		opts.Logger = logger.GetDefault()
	}
	if opts.Channel == "" {
		opts.Channel = opts.Prefix + "changes"
	}

	return &Handle{
		client:  client,
		prefix:  opts.Prefix,
		channel: opts.Channel,
		origin:  uuid.NewString(),
		cb: breaker.New(breaker.Config{
			Name:     "redis-store",
			Interval: 60 * time.Second,
			Timeout:  15 * time.Second,
		}),
		log: opts.Logger.Component("redisstore"),
	}
}

func (h *Handle) Name() string   { return "redis" }
func (h *Handle) Origin() string { return h.origin }

func (h *Handle) Client() *redis.Client {
	return h.client
}

func (h *Handle) key(k string) string {
	return h.prefix + k
}

func (h *Handle) check() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return store.ErrClosed
	}
	return nil
}

type lookup struct {
	value string
	found bool
}

func (h *Handle) Get(ctx context.Context, key string) (string, bool, error) {
	if err := h.check(); err != nil {
		return "", false, err
	}

	res, err := breaker.Execute(ctx, h.cb, func() (lookup, error) {
		v, err := h.client.Get(ctx, h.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			return lookup{}, nil
		}
		if err != nil {
			return lookup{}, err
		}
		return lookup{value: v, found: true}, nil
	})
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return res.value, res.found, nil
}

func (h *Handle) Set(ctx context.Context, key, value string) error {
	if err := h.check(); err != nil {
		return err
	}

	old, err := breaker.Execute(ctx, h.cb, func() (lookup, error) {
		prev, err := h.client.SetArgs(ctx, h.key(key), value, redis.SetArgs{Get: true}).Result()
		if errors.Is(err, redis.Nil) {
			return lookup{}, nil
		}
		if err != nil {
			return lookup{}, err
		}
		return lookup{value: prev, found: true}, nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	if !old.found || old.value != value {
		h.publish(ctx, store.Change{Key: key, Old: old.value, New: value})
	}
	return nil
}

func (h *Handle) Delete(ctx context.Context, key string) error {
	if err := h.check(); err != nil {
		return err
	}

	old, err := breaker.Execute(ctx, h.cb, func() (lookup, error) {
		prev, err := h.client.GetDel(ctx, h.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			return lookup{}, nil
		}
		if err != nil {
			return lookup{}, err
		}
		return lookup{value: prev, found: true}, nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}

	if old.found {
		h.publish(ctx, store.Change{Key: key, Old: old.value})
	}
	return nil
}

// CompareAndSwap uses WATCH/MULTI; a concurrent write to the key aborts
// the transaction and reports false
func (h *Handle) CompareAndSwap(ctx context.Context, key string, old *string, value string) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}

	k := h.key(key)
	swapped, err := breaker.Execute(ctx, h.cb, func() (bool, error) {
		matched := false
		err := h.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, k).Result()
			exists := true
			if errors.Is(err, redis.Nil) {
				exists = false
			} else if err != nil {
				return err
			}

			if (old == nil && exists) || (old != nil && (!exists || current != *old)) {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, k, value, 0)
				return nil
			})
			if err == nil {
				matched = true
			}
			return err
		}, k)

		if errors.Is(err, redis.TxFailedErr) {
			return false, nil
		}
		return matched, err
	})
	if err != nil {
		return false, fmt.Errorf("redis compare-and-swap %s: %w", key, err)
	}

	if swapped {
		change := store.Change{Key: key, New: value}
		if old != nil {
			change.Old = *old
		}
		if change.Old != change.New {
			h.publish(ctx, change)
		}
	}
	return swapped, nil
}

func (h *Handle) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	return breaker.Execute(ctx, h.cb, func() ([]string, error) {
		var keys []string
		iter := h.client.Scan(ctx, 0, h.key(prefix)+"*", scanCount).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, strings.TrimPrefix(iter.Val(), h.prefix))
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		return keys, nil
	})
}

// publish is best effort: the write already happened, and listeners that
// miss a change are covered by polling
func (h *Handle) publish(ctx context.Context, change store.Change) {
	change.Origin = h.origin
	payload, err := json.Marshal(change)
	if err != nil {
		h.log.WithError(err).Error("failed to encode change")
		return
	}

	if err := h.client.Publish(ctx, h.channel, payload).Err(); err != nil {
		h.log.WithError(err).WithField("key", change.Key).Warn("failed to publish change")
	}
}

// Watch subscribes to the change channel, dropping this handle's own
// messages
func (h *Handle) Watch(ctx context.Context) (<-chan store.Change, error) {
	if err := h.check(); err != nil {
		return nil, err
	}

	pubsub := h.client.Subscribe(ctx, h.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", h.channel, err)
	}

	h.mu.Lock()
	h.subs = append(h.subs, pubsub)
	h.mu.Unlock()

	out := make(chan store.Change, watchBuffer)
	messages := pubsub.Channel()

	go func() {
		defer close(out)
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var change store.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					h.log.WithError(err).Warn("dropping malformed change message")
					continue
				}
				if change.Origin == h.origin {
					continue
				}

				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close ends every subscription opened by this handle
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	for _, sub := range h.subs {
		sub.Close()
	}
	h.subs = nil
	return nil
}

var (
	_ store.Backend = (*Handle)(nil)
	_ store.Watcher = (*Handle)(nil)
)
