package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vango-go/carelive/pkg/gateway/config"
	"github.com/vango-go/carelive/pkg/gateway/lifecycle"
	"github.com/vango-go/carelive/pkg/gateway/live/registry"
	"github.com/vango-go/carelive/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// StatusHandler is the JSON health probe used by Cloud Run style platforms.
type StatusHandler struct {
	AppName string
}

func (h StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "app": h.AppName})
}

// Pinger is satisfied by the warehouse store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config      config.Config
	Lifecycle   *lifecycle.Lifecycle
	Connections *sessions.Tracker
	Sessions    *registry.Registry
	// Warehouse is nil when the data tools are disabled.
	Warehouse Pinger
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                bool     `json:"ok"`
		Draining          bool     `json:"draining"`
		Warehouse         string   `json:"warehouse"`
		ActiveConnections int      `json:"active_connections"`
		Sessions          int      `json:"sessions"`
		Issues            []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Config.RequireBackend() != nil {
		issues = append(issues, "no gemini credentials configured")
	}
	if h.Config.WSWriteTimeout <= 0 {
		issues = append(issues, "ws write timeout must be > 0")
	}
	if h.Config.RequestQueueSize <= 0 {
		issues = append(issues, "request queue size must be > 0")
	}
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "gateway is draining")
	}

	warehouse := "disabled"
	if h.Warehouse != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.Warehouse.Ping(ctx)
		cancel()
		if err != nil {
			warehouse = "unavailable"
			issues = append(issues, "warehouse ping failed")
		} else {
			warehouse = "ok"
		}
	}

	sessionCount := 0
	if h.Sessions != nil {
		sessionCount = h.Sessions.Len()
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, readyResp{
		OK:                ok,
		Draining:          draining,
		Warehouse:         warehouse,
		ActiveConnections: h.Connections.Count(),
		Sessions:          sessionCount,
		Issues:            issues,
	})
}

// IndexHandler describes the service at /.
type IndexHandler struct {
	AppName string
}

func (h IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":                   "Tata Neu Customer Care Assistant - Gemini Live streaming",
		"app":                       h.AppName,
		"websocket_endpoint":        "/ws/{user_id}/{session_id}",
		"legacy_websocket_endpoint": "/ws",
		"health_check":              "/health",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
