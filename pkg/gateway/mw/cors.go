package mw

import (
	"net/http"
	"strings"

	"github.com/vango-go/carelive/pkg/gateway/config"
)

var corsAllowedMethods = "GET, OPTIONS"

var corsAllowedHeaders = strings.Join([]string{
	"Content-Type",
	"X-Request-ID",
}, ", ")

var corsExposedHeaders = "X-Request-ID"

// OriginAllowed reports whether origin may call the gateway. An empty
// allowlist admits every origin.
func OriginAllowed(cfg config.Config, origin string) bool {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return true
	}
	_, ok := cfg.CORSAllowedOrigins[origin]
	return ok
}

func CORS(cfg config.Config, next http.Handler) http.Handler {
	open := len(cfg.CORSAllowedOrigins) == 0
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))

		if r.Method == http.MethodOptions && strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")) != "" {
			if origin == "" || !OriginAllowed(cfg, origin) {
				http.Error(w, "cors preflight not allowed", http.StatusForbidden)
				return
			}
			setAllowOrigin(w, origin, open)
			w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if origin != "" && OriginAllowed(cfg, origin) {
			setAllowOrigin(w, origin, open)
			w.Header().Set("Access-Control-Expose-Headers", corsExposedHeaders)
		}

		next.ServeHTTP(w, r)
	})
}

func setAllowOrigin(w http.ResponseWriter, origin string, open bool) {
	if open {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Vary", "Origin")
}
