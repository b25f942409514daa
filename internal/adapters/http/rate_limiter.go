package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ConnectLimiter bounds relay upgrades per client token within a sliding window.
type ConnectLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewConnectLimiter(limit int, interval time.Duration) *ConnectLimiter {
	return &ConnectLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *ConnectLimiter) Allow(token string) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[token]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[token] = fresh
		return false
	}
	rl.history[token] = append(fresh, now)
	rl.prune(windowStart)
	return true
}

// prune forgets tokens whose newest attempt left the window.
func (rl *ConnectLimiter) prune(windowStart time.Time) {
	for token, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, token)
		}
	}
}

// Middleware rejects over-limit clients before the upgrade.
func (rl *ConnectLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetString("client_token")
		if !rl.Allow(token) {
			log.Warn().Str("module", "adapters.http").Str("client", token).Msg("relay connect rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too_many_connections"})
			return
		}
		c.Next()
	}
}
