package limiter

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket_Refill(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBucket(5, start)
	for i := 0; i < 5; i++ {
		require.True(t, b.take())
	}
	assert.False(t, b.take())

	b.refill(5, 2, time.Second, start.Add(1500*time.Millisecond))
	assert.Equal(t, int64(2), b.Tokens)
	assert.Equal(t, start.Add(time.Second), b.LastRefill, "partial periods carry over")

	b.refill(5, 2, time.Second, start.Add(time.Hour))
	assert.Equal(t, int64(5), b.Tokens, "capped at capacity")
}

func TestLimiter_RejectsWhenEmpty(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusTooManyRequests).SendString(err.Error())
		},
	})
	app.Use(New(Config{Capacity: 2, RefillRate: 1, RefillPeriod: time.Hour}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
}

func TestLimiter_SkipsWithNext(t *testing.T) {
	app := fiber.New()
	app.Use(New(Config{
		Capacity:     1,
		RefillPeriod: time.Hour,
		Next:         func(c *fiber.Ctx) bool { return c.Path() == "/health" },
	}))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestInMemoryStorage_Reset(t *testing.T) {
	s := NewInMemoryStorage()
	ctx := context.Background()

	_, err := s.Update(ctx, "k", func(b *Bucket, found bool) {
		assert.False(t, found)
		b.Tokens = 3
	})
	require.NoError(t, err)

	b, _ := s.Update(ctx, "k", func(b *Bucket, found bool) { assert.True(t, found) })
	assert.Equal(t, int64(3), b.Tokens)

	require.NoError(t, s.Reset(ctx))
	_, _ = s.Update(ctx, "k", func(b *Bucket, found bool) { assert.False(t, found) })
}
