package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────
// Analysis Rate Limiter
//
// Token bucket per client IP. An analysis costs one token plus one more for
// every full uploadCostUnit of request body, so a client cannot burn the
// engine with a handful of huge ledgers while staying under the request
// count. Buckets idle for bucketIdleTTL are swept in the background.
// ──────────────────────────────────────────────────────────────────────

const (
	bucketIdleTTL  = 10 * time.Minute
	uploadCostUnit = 4 << 20
)

type clientBucket struct {
	mu       sync.Mutex
	tokens   float64
	lastSeen time.Time
}

// RateLimiter meters analyses per client IP
type RateLimiter struct {
	perSecond float64
	capacity  float64
	perMinute int

	mu      sync.Mutex
	clients map[string]*clientBucket
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewRateLimiter allows ratePerMin tokens per minute per IP with a bucket of
// burst tokens. Non-positive values fall back to 30/min and a burst of 1.
func NewRateLimiter(ratePerMin, burst int) *RateLimiter {
	if ratePerMin <= 0 {
		ratePerMin = 30
	}
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		perSecond: float64(ratePerMin) / 60,
		capacity:  float64(burst),
		perMinute: ratePerMin,
		clients:   make(map[string]*clientBucket),
		now:       time.Now,
		done:      make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Stop ends the background sweep; safe to call more than once
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

// requestCost is 1 plus one token per full uploadCostUnit of body. An
// unknown length (chunked upload) costs 1; MaxBytesReader still caps it.
func requestCost(contentLength int64) float64 {
	if contentLength <= 0 {
		return 1
	}
	return 1 + float64(contentLength/uploadCostUnit)
}

// take charges cost against the client's bucket. It returns the tokens left
// and, when refused, how long until the charge would fit. A cost above the
// bucket capacity is capped at the capacity so big uploads are slowed, not
// banned.
func (rl *RateLimiter) take(client string, cost float64) (bool, float64, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.clients[client]
	if !ok {
		b = &clientBucket{tokens: rl.capacity, lastSeen: now}
		rl.clients[client] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = math.Min(rl.capacity, b.tokens+now.Sub(b.lastSeen).Seconds()*rl.perSecond)
	b.lastSeen = now

	cost = math.Min(cost, rl.capacity)
	if b.tokens >= cost {
		b.tokens -= cost
		return true, b.tokens, 0
	}
	wait := time.Duration((cost - b.tokens) / rl.perSecond * float64(time.Second))
	return false, b.tokens, wait
}

// Middleware rejects over-budget analyses with 429 and Retry-After (whole
// seconds, rounded up).
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, left, wait := rl.take(c.ClientIP(), requestCost(c.Request.ContentLength))
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(left)))

		if !allowed {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded",
				"retryAfter": secs,
				"limit":      fmt.Sprintf("%d analyses/minute per IP", rl.perMinute),
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(bucketIdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.evictIdle(rl.now().Add(-bucketIdleTTL))
		}
	}
}

func (rl *RateLimiter) evictIdle(cutoff time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	evicted := 0
	for client, b := range rl.clients {
		b.mu.Lock()
		idle := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(rl.clients, client)
			evicted++
		}
	}
	return evicted
}
