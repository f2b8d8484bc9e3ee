package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/linkup/internal/logger"
	"github.com/MrSnakeDoc/linkup/internal/utils"
)

// RateLimitConfig sizes the per client token buckets guarding the session
// endpoints.
type RateLimitConfig struct {
	Burst      int           // requests a fresh client may send at once
	PerMinute  int           // tokens refilled per minute
	MaxClients int           // buckets kept before idle ones are evicted, 0 = unbounded
	IdleTTL    time.Duration // a bucket unused this long is forgotten, default 15m
	TrustProxy bool          // key clients by forwarded address
	Logger     logger.Logger
	Now        func() time.Time // for tests, defaults to time.Now
}

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type clientLimiter struct {
	cfg     RateLimitConfig
	every   rate.Limit
	mu      sync.Mutex
	clients map[string]*clientBucket
	swept   time.Time
}

func newClientLimiter(cfg RateLimitConfig) *clientLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.PerMinute < 1 {
		cfg.PerMinute = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &clientLimiter{
		cfg:     cfg,
		every:   rate.Limit(float64(cfg.PerMinute) / 60),
		clients: make(map[string]*clientBucket),
		swept:   cfg.Now(),
	}
}

// reserve takes one token for client. When none is left it returns how long
// the client has to wait.
func (l *clientLimiter) reserve(client string, now time.Time) (remaining int, wait time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) >= l.cfg.IdleTTL || (l.cfg.MaxClients > 0 && len(l.clients) >= l.cfg.MaxClients) {
		l.evictIdle(now)
	}
	b := l.clients[client]
	if b == nil {
		b = &clientBucket{lim: rate.NewLimiter(l.every, l.cfg.Burst)}
		l.clients[client] = b
	}
	b.lastSeen = now

	if b.lim.AllowN(now, 1) {
		return int(math.Floor(b.lim.TokensAt(now))), 0
	}
	r := b.lim.ReserveN(now, 1)
	wait = r.DelayFrom(now)
	r.CancelAt(now)
	return 0, wait
}

func (l *clientLimiter) evictIdle(now time.Time) {
	for k, b := range l.clients {
		if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
			delete(l.clients, k)
		}
	}
	l.swept = now
}

// RateLimit throttles each client address to cfg.Burst requests with a
// refill of cfg.PerMinute per minute. Throttled calls get 429 with
// Retry-After in seconds.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	l := newClientLimiter(cfg)
	limit := strconv.Itoa(l.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := utils.ClientIP(r, l.cfg.TrustProxy)
			remaining, wait := l.reserve(client, l.cfg.Now())

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if wait > 0 {
				retry := int(math.Ceil(wait.Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				l.cfg.Logger.Warn("client throttled",
					logger.String("client_ip", client),
					logger.String("path", r.URL.Path),
					logger.Int("retry_after_s", retry))
				http.Error(w, "too many session requests from "+client+", retry in "+strconv.Itoa(retry)+"s",
					http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
