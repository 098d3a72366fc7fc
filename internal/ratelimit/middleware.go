package ratelimit

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/af-corp/aegis-moderation/internal/httputil"
	"github.com/af-corp/aegis-moderation/internal/telemetry"
)

const (
	// HeaderClientID identifies the calling service. Without it the client
	// is keyed by remote address.
	HeaderClientID = "X-Client-ID"

	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// Middleware returns chi middleware that enforces rpm requests per minute per
// client. rpm <= 0 disables the limit.
func Middleware(limiter *Limiter, rpm int, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rpm <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := httputil.RequestIDFromContext(r.Context())
			client := clientKey(r)

			result := limiter.Check(r.Context(), "client:"+client, int64(rpm), time.Minute)

			w.Header().Set(headerRateLimitRequests, strconv.Itoa(rpm))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"client", client,
					"limit", rpm,
				)
				metrics.RecordRateLimited()
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(time.Until(result.ResetAt).Seconds())))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, result.ResetAt.Format(time.RFC3339)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id := r.Header.Get(HeaderClientID); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
