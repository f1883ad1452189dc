package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cartwheel/storefront/api-gateway/internal/auth"
	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type TokenValidator interface {
	Validate(tokenStr string) (*auth.Claims, error)
}

// Identity resolves who the caller is and stamps the trusted owner and role
// headers the services read. Client supplied copies of those headers are
// dropped first.
//
// A valid bearer token makes the owner "user:<sub>". Without one the owner is
// "session:<id>", where the id comes from X-Session-ID or is minted and echoed
// back in the response.
func Identity(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(httpx.HeaderCartOwner)
			r.Header.Del(httpx.HeaderUserRole)

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
				if !ok || tokenStr == "" {
					httpx.RespondError(w, http.StatusUnauthorized, "unauthorized",
						"invalid Authorization header format (expected 'Bearer <token>')")
					return
				}
				claims, err := v.Validate(tokenStr)
				if err != nil {
					httpx.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
					return
				}
				r.Header.Set(httpx.HeaderCartOwner, "user:"+claims.Subject)
				if claims.Role != "" {
					r.Header.Set(httpx.HeaderUserRole, claims.Role)
				}
				next.ServeHTTP(w, r)
				return
			}

			sessionID := r.Header.Get(httpx.HeaderSessionID)
			if _, err := uuid.Parse(sessionID); err != nil {
				sessionID = uuid.NewString()
				r.Header.Set(httpx.HeaderSessionID, sessionID)
			}
			w.Header().Set(httpx.HeaderSessionID, sessionID)
			r.Header.Set(httpx.HeaderCartOwner, "session:"+sessionID)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin must run after Identity.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.Header.Get(httpx.HeaderCartOwner), "session:"):
			httpx.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		case r.Header.Get(httpx.HeaderUserRole) != httpx.RoleAdmin:
			httpx.RespondError(w, http.StatusForbidden, "forbidden", "admin access required")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client IP and forgets IPs idle
// for longer than ttl.
type RateLimiter struct {
	ips   map[string]*limiterEntry
	mu    sync.Mutex
	rate  rate.Limit
	burst int
	ttl   time.Duration
}

func NewRateLimiter(r rate.Limit, b int, ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		ips:   make(map[string]*limiterEntry),
		rate:  r,
		burst: b,
		ttl:   ttl,
	}
}

// RunCleanup evicts stale entries until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.evict(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, e := range rl.ips {
		if now.Sub(e.lastSeen) > rl.ttl {
			delete(rl.ips, ip)
		}
	}
}

func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry, ok := rl.ips[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.ips[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.GetLimiter(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			httpx.RespondError(w, http.StatusTooManyRequests, "rate_limited",
				"rate limit exceeded, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP expects chi's RealIP middleware to have rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
