package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"genserver/internal/domain"
	"genserver/internal/metrics"
	"genserver/internal/ratelimit"
)

// Admission guards a resource with the rate gate. The per-minute limit is
// scaled by the caller's tier; unauthenticated requests are keyed by source
// IP. Denials carry a Retry-After header and are never retried internally.
func Admission(gate *ratelimit.Gate, resource string, limitPerMin int, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := limitPerMin
			callerID := CallerIDFromContext(r.Context())
			if identity, ok := IdentityFromContext(r.Context()); ok {
				limit *= identity.Tier.RateMultiplier()
			}
			if callerID == "" {
				callerID = clientIPForRateLimit(r)
			}

			decision := gate.Admit(r.Context(), ratelimit.Key(callerID, resource), limit, time.Minute)
			if !decision.Allowed {
				if m != nil {
					m.AdmissionDenied.WithLabelValues(resource).Inc()
				}
				retry := int(decision.RetryAfter.Round(time.Second) / time.Second)
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":        string(domain.ErrorCodeAdmissionDenied),
						"message":     "rate limit exceeded",
						"retry_after": retry,
					},
				})
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
