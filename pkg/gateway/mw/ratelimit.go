package mw

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/carelive/pkg/gateway/apierror"
	"github.com/vango-go/carelive/pkg/gateway/config"
	"github.com/vango-go/carelive/pkg/gateway/ratelimit"
)

// ConnectionLimit admits WebSocket upgrades through limiter and holds the
// permit until the handler returns. Other requests pass through.
func ConnectionLimit(cfg config.Config, logger *slog.Logger, limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		client := ClientKey(r, cfg.TrustForwardedFor)
		dec := limiter.AcquireConnection(client, time.Now())
		if !dec.Allowed {
			reqID, _ := RequestIDFrom(r.Context())
			if logger != nil {
				logger.Warn("connection limited", "client", client, "reason", dec.Reason, "request_id", reqID)
			}
			if dec.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			}
			apierror.Write(w, http.StatusTooManyRequests, &apierror.Error{
				Type:      apierror.TypeRateLimit,
				Message:   "too many connections",
				Code:      dec.Reason,
				RequestID: reqID,
			})
			return
		}
		defer dec.Permit.Release()

		next.ServeHTTP(w, r)
	})
}

// ClientKey identifies the caller by IP. With trustForwarded the first
// X-Forwarded-For hop wins, as set by a fronting load balancer.
func ClientKey(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isWebSocketUpgrade(r *http.Request) bool {
	if !headerHasToken(r.Header, "Connection", "upgrade") {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket")
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, value := range h.Values(name) {
		for _, part := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
