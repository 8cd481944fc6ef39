package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/htvo/oauth2d/pkg/slogx"
	"golang.org/x/time/rate"
)

// Transport-level request limiting. This is a coarse per-IP guard in front of
// every endpoint; the per-action token buckets inside the service layer are
// the real policy and survive across instances.

// LimitConfig defines requests allowed per window for one endpoint class.
type LimitConfig struct {
	Requests int
	Window   time.Duration
}

// Endpoint classes used by the router.
var (
	// StrictLimit guards credential-accepting endpoints.
	StrictLimit = LimitConfig{Requests: 10, Window: time.Minute}
	// ModerateLimit guards authenticated state-changing endpoints.
	ModerateLimit = LimitConfig{Requests: 30, Window: time.Minute}
	// LenientLimit guards read-mostly endpoints.
	LenientLimit = LimitConfig{Requests: 120, Window: time.Minute}
)

type ipLimiter struct {
	limiters sync.Map // ip -> *rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastSweep   time.Time
	sweepPeriod time.Duration
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	if v, ok := l.limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}
	v, _ := l.limiters.LoadOrStore(ip, rate.NewLimiter(l.rate, l.burst))
	l.maybeSweep()
	return v.(*rate.Limiter)
}

// maybeSweep drops limiters whose buckets have refilled completely; those IPs
// have been idle for at least a full window.
func (l *ipLimiter) maybeSweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastSweep) < l.sweepPeriod {
		return
	}
	l.lastSweep = time.Now()

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitByIP limits each client IP to cfg.Requests per cfg.Window with the
// full window available as burst.
func RateLimitByIP(cfg LimitConfig) Middleware {
	l := &ipLimiter{
		rate:        rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:       cfg.Requests,
		lastSweep:   time.Now(),
		sweepPeriod: 5 * time.Minute,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := l.get(ClientIP(r))
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			reservation := limiter.Reserve()
			delay := reservation.Delay()
			reservation.Cancel()

			retryAfter := max(int(delay.Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			slogx.FromContext(r.Context()).Warn("transport rate limit exceeded",
				"path", r.URL.Path, "retry_after", retryAfter)

			WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error":             "rate_limit_exceeded",
				"error_description": "too many requests, try again later",
			})
		})
	}
}

// ClientIP extracts the caller's IP, honouring X-Forwarded-For and X-Real-IP
// set by the fronting proxy.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
