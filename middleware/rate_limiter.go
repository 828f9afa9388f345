package middleware

import (
	"net/http"
	"sync"
	"time"

	"tailortalk/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// rateLimiterStore holds a map of client IPs to their rate limiters.
type rateLimiterStore struct {
	limiters  map[string]*rate.Limiter
	perMinute int
	mu        sync.Mutex
}

func newRateLimiterStore(perMinute int) *rateLimiterStore {
	if perMinute <= 0 {
		perMinute = 100
	}
	return &rateLimiterStore{
		limiters:  make(map[string]*rate.Limiter),
		perMinute: perMinute,
	}
}

// getLimiter returns the rate limiter for a given IP, creating one if it doesn't exist.
func (s *rateLimiterStore) getLimiter(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[ip]
	if !exists {
		// Refill perMinute tokens a minute; a full minute's worth may burst.
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMinute)), s.perMinute)
		s.limiters[ip] = limiter
	}
	return limiter
}

// RateLimitMiddleware limits chat requests per client IP.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	store := newRateLimiterStore(perMinute)
	return func(c *gin.Context) {
		ip := getClientIP(c)
		if !store.getLimiter(ip).Allow() {
			utils.GetLogger().Warn("Rate limit exceeded", zap.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, utils.ErrorResponse{
				Message: "You're sending messages too quickly. Please wait a moment.",
			})
			return
		}
		c.Next()
	}
}
