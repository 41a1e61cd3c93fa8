package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"library-api/internal/config"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	rateLimitKeyPrefix = "library:ratelimit:"
)

// Limiter decides whether one more request from key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter keeps one token bucket per client inside the process.
type MemoryLimiter struct {
	limiters sync.Map
	rps      rate.Limit
	burst    int
}

func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{rps: rate.Limit(rps), burst: burst}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return m.limiter(key).Allow(), nil
}

func (m *MemoryLimiter) limiter(key string) *rate.Limiter {
	if existing, ok := m.limiters.Load(key); ok {
		return existing.(*rate.Limiter)
	}
	actual, _ := m.limiters.LoadOrStore(key, rate.NewLimiter(m.rps, m.burst))
	return actual.(*rate.Limiter)
}

// Cleanup drops buckets that are full again until ctx is done.
func (m *MemoryLimiter) Cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

func (m *MemoryLimiter) sweep(now time.Time) {
	m.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).TokensAt(now) >= float64(m.burst) {
			m.limiters.Delete(key)
		}
		return true
	})
}

type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter is a fixed-window counter shared by every API replica.
type RedisLimiter struct {
	client counter
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows max(burst, rps*window) requests per window.
func NewRedisLimiter(client *redis.Client, cfg config.RateLimitConfig) *RedisLimiter {
	return newRedisLimiter(client, cfg)
}

func newRedisLimiter(client counter, cfg config.RateLimitConfig) *RedisLimiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	limit := int64(math.Max(float64(cfg.Burst), math.Floor(cfg.RPS*window.Seconds())))
	if limit < 1 {
		limit = 1
	}
	return &RedisLimiter{client: client, limit: limit, window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.now().Truncate(l.window).Unix()
	redisKey := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, key, bucket)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expiry: %w", err)
		}
	}
	return count <= l.limit, nil
}

// NewLimiter picks the backend named in cfg. The redis client may be nil for the memory backend.
func NewLimiter(cfg config.RateLimitConfig, client *redis.Client) (Limiter, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemoryLimiter(cfg.RPS, cfg.Burst), nil
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("rate limit backend %q requires redis to be enabled", cfg.Backend)
		}
		return NewRedisLimiter(client, cfg), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}

type RateLimiterMiddleware struct {
	limiter Limiter
	cfg     config.RateLimitConfig
	logger  *slog.Logger
}

func NewRateLimiterMiddleware(cfg config.RateLimitConfig, limiter Limiter, logger *slog.Logger) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

func (rl *RateLimiterMiddleware) extractIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	xRealIP := r.Header.Get("X-Real-IP")
	if xRealIP != "" {
		return xRealIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware fails open when the limiter backend errors.
func (rl *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	if !rl.cfg.Enabled || rl.limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := rl.extractIP(r)
		allowed, err := rl.limiter.Allow(r.Context(), ip)
		if err != nil {
			rl.logger.ErrorContext(r.Context(), "Rate limiter unavailable", slog.String("ip", ip), slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			rl.logger.WarnContext(r.Context(), "Rate limit exceeded", slog.String("ip", ip))
			writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
