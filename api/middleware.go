/*
middleware.go - Actor resolution, role checks, and per-actor rate limiting

Every /api route runs behind RequireActor: the X-Actor-ID header names the
user performing the request, and the loaded record is stashed in the
request context. Admin-only routes add RequireAdmin on top.

The rate limiter keeps one token bucket per actor and evicts buckets that
have been idle for a while, so the map does not grow without bound.
*/
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/warp/pointsmarket/market"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorFrom returns the authenticated user stored by RequireActor, or nil
// when the request did not pass through it.
func ActorFrom(ctx context.Context) *market.User {
	u, _ := ctx.Value(actorKey).(*market.User)
	return u
}

// RequireActor resolves the X-Actor-ID header to a user record and stores
// it in the request context. Unknown or missing actors get 401.
func (h *Handler) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Actor-ID")
		if id == "" {
			writeError(w, http.StatusUnauthorized, "missing X-Actor-ID header", "")
			return
		}
		user, err := h.Store.GetUser(r.Context(), market.UserID(id))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to resolve actor", err.Error())
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unknown actor", "")
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects non-admin actors with 403. Must run after
// RequireActor.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := ActorFrom(r.Context())
		if actor == nil || actor.Role != market.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin role required", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RATE LIMITING
// =============================================================================

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per actor ID.
type RateLimiter struct {
	mu      sync.Mutex
	actors  map[string]*limiterEntry
	rate    rate.Limit
	burst   int
	maxIdle time.Duration
}

// NewRateLimiter allows r requests per second with the given burst.
func NewRateLimiter(r float64, burst int) *RateLimiter {
	return &RateLimiter{
		actors:  make(map[string]*limiterEntry),
		rate:    rate.Limit(r),
		burst:   burst,
		maxIdle: 10 * time.Minute,
	}
}

func (rl *RateLimiter) allow(actorID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.actors[actorID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.actors[actorID] = entry
	}
	entry.lastSeen = now

	// Opportunistic eviction of idle buckets.
	if len(rl.actors) > 1024 {
		for id, e := range rl.actors {
			if now.Sub(e.lastSeen) > rl.maxIdle {
				delete(rl.actors, id)
			}
		}
	}
	return entry.limiter.Allow()
}

// Middleware enforces the per-actor limit. Requests without a resolved
// actor are limited by remote address instead.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if actor := ActorFrom(r.Context()); actor != nil {
			key = string(actor.ID)
		}
		if !rl.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
