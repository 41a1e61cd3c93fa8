package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"library-api/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

type limiterFunc func(ctx context.Context, key string) (bool, error)

func (f limiterFunc) Allow(ctx context.Context, key string) (bool, error) { return f(ctx, key) }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.RateLimitConfig{
		Enabled: true,
		RPS:     1,
		Burst:   2,
	}

	t.Run("blocks requests exceeding the burst", func(t *testing.T) {
		rl := NewRateLimiterMiddleware(cfg, NewMemoryLimiter(cfg.RPS, cfg.Burst), logger)
		handler := rl.Middleware(okHandler())

		codes := make([]int, 0, 3)
		for range 3 {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "127.0.0.1:12345"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
			if rec.Code == http.StatusTooManyRequests {
				assert.JSONEq(t, `{"errors":["Rate limit exceeded"]}`, rec.Body.String())
			}
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("clients are limited independently", func(t *testing.T) {
		limiter := NewMemoryLimiter(1, 1)
		handler := NewRateLimiterMiddleware(cfg, limiter, logger).Middleware(okHandler())

		for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = addr
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("disabled middleware passes through", func(t *testing.T) {
		disabled := cfg
		disabled.Enabled = false
		denyAll := limiterFunc(func(context.Context, string) (bool, error) { return false, nil })
		handler := NewRateLimiterMiddleware(disabled, denyAll, logger).Middleware(okHandler())

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("limiter errors fail open", func(t *testing.T) {
		broken := limiterFunc(func(context.Context, string) (bool, error) { return false, errors.New("redis down") })
		handler := NewRateLimiterMiddleware(cfg, broken, logger).Middleware(okHandler())

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("extractIP handles various headers", func(t *testing.T) {
		rl := NewRateLimiterMiddleware(cfg, nil, logger)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "192.168.1.1, 10.0.0.1")
		assert.Equal(t, "192.168.1.1", rl.extractIP(req))

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		assert.Equal(t, "10.0.0.1", rl.extractIP(req))

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "127.0.0.1:12345"
		assert.Equal(t, "127.0.0.1", rl.extractIP(req))
	})
}

func TestMemoryLimiterSweep(t *testing.T) {
	limiter := NewMemoryLimiter(1000, 1)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, allowed)

	limiter.sweep(time.Now().Add(time.Second))

	_, exists := limiter.limiters.Load("a")
	assert.False(t, exists)
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	cfg := config.RateLimitConfig{RPS: 0.01, Burst: 2, Window: time.Minute}
	now := time.Date(2024, 5, 20, 10, 0, 30, 0, time.UTC)

	t.Run("counts within one window", func(t *testing.T) {
		fc := newFakeCounter()
		limiter := newRedisLimiter(fc, cfg)
		limiter.now = func() time.Time { return now }

		var results []bool
		for range 3 {
			allowed, err := limiter.Allow(ctx, "1.2.3.4")
			require.NoError(t, err)
			results = append(results, allowed)
		}

		assert.Equal(t, []bool{true, true, false}, results)
		key := "library:ratelimit:1.2.3.4:1716199200"
		assert.Equal(t, int64(3), fc.counts[key])
		assert.Equal(t, time.Minute, fc.expires[key])
		assert.Len(t, fc.expires, 1)
	})

	t.Run("new window resets the count", func(t *testing.T) {
		fc := newFakeCounter()
		limiter := newRedisLimiter(fc, cfg)
		limiter.now = func() time.Time { return now }
		for range 2 {
			_, _ = limiter.Allow(ctx, "k")
		}

		limiter.now = func() time.Time { return now.Add(time.Minute) }
		allowed, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("limit scales with rps over the window", func(t *testing.T) {
		limiter := newRedisLimiter(newFakeCounter(), config.RateLimitConfig{RPS: 10, Burst: 20, Window: time.Minute})
		assert.Equal(t, int64(600), limiter.limit)
	})

	t.Run("propagates redis errors", func(t *testing.T) {
		fc := newFakeCounter()
		fc.err = errors.New("connection refused")
		limiter := newRedisLimiter(fc, cfg)

		_, err := limiter.Allow(ctx, "k")
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestNewLimiter(t *testing.T) {
	l, err := NewLimiter(config.RateLimitConfig{Backend: "memory", RPS: 1, Burst: 1}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryLimiter{}, l)

	_, err = NewLimiter(config.RateLimitConfig{Backend: "redis"}, nil)
	assert.ErrorContains(t, err, "requires redis")

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()
	l, err = NewLimiter(config.RateLimitConfig{Backend: "Redis", RPS: 1, Burst: 1}, client)
	require.NoError(t, err)
	assert.IsType(t, &RedisLimiter{}, l)

	_, err = NewLimiter(config.RateLimitConfig{Backend: "etcd"}, nil)
	assert.ErrorContains(t, err, "unknown rate limit backend")
}
