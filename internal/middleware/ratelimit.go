package middleware

import (
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/miguel-loureiro/BookCatalog/internal/errs"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket. Idle clients are dropped after
// a while so the map does not grow without bound.
type RateLimiter struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	idle        time.Duration
	clients     map[string]*clientLimiter
	nextCleanup time.Time
	now         func() time.Time
	logger      *zap.Logger
}

// NewRateLimiter allows perSecond requests per client with the given burst.
// A non-positive rate or burst disables limiting.
func NewRateLimiter(perSecond float64, burst int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	rl := &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
		logger:  logger,
	}
	if perSecond > 0 {
		rl.idle = time.Duration(float64(burst)/perSecond*float64(time.Second)) + time.Minute
	}
	return rl
}

func (rl *RateLimiter) enabled() bool {
	return rl != nil && rl.limit > 0 && rl.burst > 0
}

func (rl *RateLimiter) allow(key string) bool {
	if !rl.enabled() {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, ok := rl.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = client
	}
	client.lastSeen = now
	allowed := client.limiter.AllowN(now, 1)

	if rl.nextCleanup.IsZero() || now.After(rl.nextCleanup) {
		rl.cleanupLocked(now)
		rl.nextCleanup = now.Add(rl.idle)
	}
	return allowed
}

func (rl *RateLimiter) cleanupLocked(now time.Time) {
	threshold := now.Add(-rl.idle)
	for key, client := range rl.clients {
		if client.lastSeen.Before(threshold) {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimiter) retryAfter() int {
	secs := int(math.Ceil(1 / float64(rl.limit)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Middleware answers 429 with Retry-After once a client's bucket is empty.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientIP(r)
		if !rl.allow(key) {
			rl.logger.Info("rate limited", zap.String("client", key), zap.String("path", r.URL.Path))
			errs.Write(w, r, rl.logger, errs.TooManyRequests("Too many requests", rl.retryAfter()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of r.RemoteAddr. It reflects forwarding
// headers only when the router mounts chi's RealIP, which it does only for
// a trusted proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
