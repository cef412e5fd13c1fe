package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/aristath/portfoliopilot/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// rateLimiter is a process-wide token bucket in front of the compute routes.
type rateLimiter struct {
	limiter *rate.Limiter
	log     zerolog.Logger
}

func newRateLimiter(rps float64, burst int, log zerolog.Logger) *rateLimiter {
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log.With().Str("component", "rate_limiter").Logger(),
	}
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := l.limiter.Reserve()
		if !res.OK() {
			l.reject(w, r, 1)
			return
		}
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			l.reject(w, r, int(math.Ceil(delay.Seconds())))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *rateLimiter) reject(w http.ResponseWriter, r *http.Request, retryAfter int) {
	l.log.Debug().Str("path", r.URL.Path).Msg("Rate limit exceeded")
	w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
	utils.WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded", l.log)
}
