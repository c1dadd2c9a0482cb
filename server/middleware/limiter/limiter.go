package limiter

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Bucket is a token bucket snapshot. Storages hand out copies; the
// middleware takes a token and writes the copy back.
type Bucket struct {
	Tokens     int64     `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

func newBucket(capacity int64, now time.Time) Bucket {
	return Bucket{Tokens: capacity, LastRefill: now}
}

// refill adds rate tokens for every whole period elapsed since the last
// refill, capped at capacity
func (b *Bucket) refill(capacity, rate int64, period time.Duration, now time.Time) {
	elapsed := now.Sub(b.LastRefill)
	if elapsed < period {
		return
	}

	periods := int64(elapsed / period)
	b.Tokens += periods * rate
	if b.Tokens > capacity {
		b.Tokens = capacity
	}
	b.LastRefill = b.LastRefill.Add(time.Duration(periods) * period)
}

func (b *Bucket) take() bool {
	if b.Tokens <= 0 {
		return false
	}
	b.Tokens--
	return true
}

func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		key := cfg.KeyGenerator(c)
		now := time.Now()

		var took bool
		bucket, err := cfg.Storage.Update(c.UserContext(), key, func(b *Bucket, found bool) {
			if !found {
				*b = newBucket(cfg.Capacity, now)
			}
			b.refill(cfg.Capacity, cfg.RefillRate, cfg.RefillPeriod, now)
			took = b.take()
		})
		if err != nil {
			// Limiter storage trouble must not take the API down
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(cfg.Capacity, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(bucket.Tokens, 10))

		if !took {
			retry := cfg.RefillPeriod - now.Sub(bucket.LastRefill)
			if retry < time.Second {
				retry = time.Second
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retry.Round(time.Second).Seconds())))
			return cfg.LimitReachedHandler(c)
		}

		return c.Next()
	}
}
