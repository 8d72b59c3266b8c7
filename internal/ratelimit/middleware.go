package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Allower decides whether one more request for key is allowed.
type Allower interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// KeyFunc derives the rate limit key for a request.
type KeyFunc func(*http.Request) string

// KeyByIP keys requests by client IP under scope.
func KeyByIP(scope string) KeyFunc {
	return func(r *http.Request) string {
		return scope + ":" + common.ClientIP(r)
	}
}

// Handler enforces rate limits before delegating to the next handler. Limiter
// failures let the request through.
type Handler struct {
	Limiter Allower
	Key     KeyFunc
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil || h.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		d, err := h.Limiter.Allow(r.Context(), h.Key(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			} else {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("rate limiter unavailable")
			}
			next.ServeHTTP(w, r)
			return
		}
		if !writeDecision(w, d) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeDecision sets the rate limit headers and, when d denies the request, the 429 response.
func writeDecision(w http.ResponseWriter, d Decision) bool {
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(max(d.Limit, 0)))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if d.Allowed {
		return true
	}
	retryAfter := max(int(time.Until(d.ResetAt).Seconds()), 0)
	headers.Set("Retry-After", strconv.Itoa(retryAfter))
	common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
	return false
}
