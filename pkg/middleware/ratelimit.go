package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client rate limiting
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
	// IdleTTL is how long an unused client limiter is kept
	IdleTTL time.Duration
}

// RateLimiter keeps one token bucket per client key
type RateLimiter struct {
	config RateLimitConfig
	logger *zap.Logger

	mu          sync.Mutex
	limiters    map[string]*clientLimiter
	lastCleanup time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter
func NewRateLimiter(cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = int(math.Max(1, float64(cfg.RequestsPerMinute)/6))
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		config:      cfg,
		logger:      logger.Named("ratelimit"),
		limiters:    make(map[string]*clientLimiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a request for key may proceed
func (r *RateLimiter) Allow(key string) bool {
	if !r.config.Enabled {
		return true
	}

	now := time.Now()

	r.mu.Lock()
	if now.Sub(r.lastCleanup) > r.config.IdleTTL {
		r.cleanup(now)
	}
	cl, ok := r.limiters[key]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(r.config.RequestsPerMinute)/60.0), r.config.BurstSize),
		}
		r.limiters[key] = cl
	}
	cl.lastSeen = now
	r.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// cleanup removes idle limiters; r.mu must be held
func (r *RateLimiter) cleanup(now time.Time) {
	for key, cl := range r.limiters {
		if now.Sub(cl.lastSeen) > r.config.IdleTTL {
			delete(r.limiters, key)
		}
	}
	r.lastCleanup = now
}

// RateLimitMiddleware rejects requests above the per-client rate with 429
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(60.0 / float64(rl.config.RequestsPerMinute))))

	return func(c *gin.Context) {
		if rl.Allow(c.ClientIP()) {
			c.Next()
			return
		}

		rl.logger.Warn("Rate limit exceeded", zap.String("client_ip", c.ClientIP()))
		c.Header("Retry-After", retryAfter)
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limit_exceeded"})
		c.Abort()
	}
}
