package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"questlog/internal/apperr"
	"questlog/internal/metrics"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors 按客户端 IP 保存令牌桶，长时间未出现的条目在 Allow 时顺带清理
type visitors struct {
	mu        sync.Mutex
	entries   map[string]*visitor
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newVisitors(limit rate.Limit, burst int, ttl time.Duration) *visitors {
	return &visitors{
		entries: make(map[string]*visitor),
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (v *visitors) allow(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if now.Sub(v.lastSweep) > v.ttl {
		for k, e := range v.entries {
			if now.Sub(e.lastSeen) > v.ttl {
				delete(v.entries, k)
			}
		}
		v.lastSweep = now
	}

	e, ok := v.entries[key]
	if !ok {
		e = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RateLimit allows each client perSecond requests with the given burst and answers 429 beyond that.
func RateLimit(perSecond float64, burst int, log *zap.Logger) gin.HandlerFunc {
	store := newVisitors(rate.Limit(perSecond), burst, 3*time.Minute)
	return rateLimit(store, log)
}

func rateLimit(store *visitors, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if store.allow(ip) {
			c.Next()
			return
		}

		log.Warn("Rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
		metrics.RateLimited.WithLabelValues(c.FullPath()).Inc()
		c.Header("Retry-After", "1")
		AbortWithError(c, &apperr.AppError{
			Code:    "RATE_LIMITED",
			Message: "too many requests, slow down",
			Status:  http.StatusTooManyRequests,
		})
	}
}
