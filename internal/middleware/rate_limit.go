package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/rmvisser/gatehouse/pkg/http"
)

// BurstLimitConfig holds the coarse per-IP request budget. This is an outer
// flood control layer; the persistent per-IP attempt limits for comments and
// logins live in the rate limit service.
type BurstLimitConfig struct {
	RequestsPerMinute int
}

// DefaultBurstLimit allows 60 requests per minute per IP
func DefaultBurstLimit() BurstLimitConfig {
	return BurstLimitConfig{RequestsPerMinute: 60}
}

// BurstLimitByIP creates an in-memory burst limiter keyed by the derived
// client IP, so proxy-forwarded requests are bucketed by the real client
// rather than the proxy
func BurstLimitByIP(config BurstLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "too many requests", 60)
		}),
	)
}
