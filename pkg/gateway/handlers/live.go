package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/carelive/pkg/gateway/apierror"
	"github.com/vango-go/carelive/pkg/gateway/config"
	"github.com/vango-go/carelive/pkg/gateway/lifecycle"
	"github.com/vango-go/carelive/pkg/gateway/live/backend"
	"github.com/vango-go/carelive/pkg/gateway/live/registry"
	"github.com/vango-go/carelive/pkg/gateway/live/relay"
	"github.com/vango-go/carelive/pkg/gateway/live/sessions"
	"github.com/vango-go/carelive/pkg/gateway/mw"
)

// LiveHandler serves GET /ws/{userID}/{sessionID} and the legacy GET /ws,
// which assigns fresh ids per connection.
type LiveHandler struct {
	Config      config.Config
	Runner      backend.Runner
	Sessions    *registry.Registry
	Logger      *slog.Logger
	Lifecycle   *lifecycle.Lifecycle
	Connections *sessions.Tracker
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	if r.Method != http.MethodGet {
		apierror.Write(w, http.StatusMethodNotAllowed, &apierror.Error{Type: apierror.TypeInvalidRequest, Message: "method not allowed", Code: "method_not_allowed", RequestID: reqID})
		return
	}
	if h.Lifecycle.IsDraining() {
		apierror.Write(w, http.StatusServiceUnavailable, &apierror.Error{Type: apierror.TypeUnavailable, Message: "gateway is draining", Code: "draining", RequestID: reqID})
		return
	}
	if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" && !mw.OriginAllowed(h.Config, origin) {
		apierror.Write(w, http.StatusForbidden, &apierror.Error{Type: apierror.TypePermission, Message: "origin is not allowed", Param: "Origin", RequestID: reqID})
		return
	}
	if h.Runner == nil || h.Sessions == nil {
		apierror.Write(w, http.StatusServiceUnavailable, &apierror.Error{Type: apierror.TypeUnavailable, Message: "live backend is not configured", RequestID: reqID})
		return
	}

	userID, sessionID := connectionIDs(r)
	logger := h.logger().With("user_id", userID, "session_id", sessionID, "request_id", reqID)

	upgrader := websocket.Upgrader{
		// Origin was checked above against the same allowlist.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if h.Config.WSMaxMessageBytes > 0 {
		conn.SetReadLimit(h.Config.WSMaxMessageBytes)
	}

	sess, created := h.Sessions.GetOrCreate(userID, sessionID)
	if created {
		logger.Info("session created")
	} else {
		logger.Info("session resumed", "resumable", sess.ResumptionHandle() != "", "messages", len(sess.Messages()))
	}

	c, err := relay.New(relay.Dependencies{
		Conn:      conn,
		Runner:    h.Runner,
		Session:   sess,
		Logger:    h.logger(),
		RequestID: reqID,
		Config: relay.Config{
			AppName:          h.Config.AppName,
			Voice:            h.Config.Voice,
			RequestQueueSize: h.Config.RequestQueueSize,
			WriteTimeout:     h.Config.WSWriteTimeout,
			IdleTimeout:      h.Config.IdleTimeout,
			ForwardText:      h.Config.ForwardText,
		},
	})
	if err != nil {
		logger.Error("live connection setup failed", "error", err)
		return
	}

	unregister := h.Connections.Register(connectionKey(reqID, userID, sessionID), sessions.Handle{
		UserID:    userID,
		SessionID: sessionID,
		Cancel:    c.Cancel,
		Notify:    c.SendStatus,
	})
	defer unregister()

	// Run logs its own summary and any relay error.
	_, _ = c.Run()
}

func (h LiveHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// connectionIDs reads the path ids, generating them for the legacy route.
func connectionIDs(r *http.Request) (userID, sessionID string) {
	userID = strings.TrimSpace(r.PathValue("userID"))
	sessionID = strings.TrimSpace(r.PathValue("sessionID"))
	if userID == "" {
		userID = "user_" + shortID()
	}
	if sessionID == "" {
		sessionID = "session_" + shortID()
	}
	return userID, sessionID
}

// shortID is 8 hex characters of a random UUID.
func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func connectionKey(reqID, userID, sessionID string) string {
	if reqID != "" {
		return reqID
	}
	return userID + "/" + sessionID + "/" + shortID()
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := mw.RequestIDFrom(ctx); ok {
		return id
	}
	return ""
}
