package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/carelive/pkg/gateway/config"
	"github.com/vango-go/carelive/pkg/gateway/lifecycle"
	"github.com/vango-go/carelive/pkg/gateway/live/backend"
	"github.com/vango-go/carelive/pkg/gateway/live/backend/backendtest"
	"github.com/vango-go/carelive/pkg/gateway/live/protocol"
	"github.com/vango-go/carelive/pkg/gateway/live/registry"
	"github.com/vango-go/carelive/pkg/gateway/live/sessions"
	"github.com/vango-go/carelive/pkg/gateway/mw"
)

const liveWait = 2 * time.Second

type liveHarness struct {
	server    *httptest.Server
	runner    *backendtest.Runner
	sessions  *registry.Registry
	tracker   *sessions.Tracker
	lifecycle *lifecycle.Lifecycle
}

func (h *liveHarness) close() {
	h.server.Close()
}

func (h *liveHarness) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http") + path
}

func newLiveTestServer(t *testing.T, cfg config.Config) *liveHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.AppName == "" {
		cfg.AppName = config.DefaultAppName
	}
	if cfg.WSWriteTimeout == 0 {
		cfg.WSWriteTimeout = time.Second
	}
	if cfg.RequestQueueSize == 0 {
		cfg.RequestQueueSize = 16
	}
	if cfg.WSMaxMessageBytes == 0 {
		cfg.WSMaxMessageBytes = 1 << 20
	}

	h := &liveHarness{
		runner:    backendtest.NewRunner(),
		sessions:  registry.New(registry.Config{AppName: cfg.AppName, Capacity: 100, TTL: time.Hour, Logger: logger}),
		tracker:   sessions.NewTracker(),
		lifecycle: &lifecycle.Lifecycle{},
	}
	handler := LiveHandler{
		Config:      cfg,
		Runner:      h.runner,
		Sessions:    h.sessions,
		Logger:      logger,
		Lifecycle:   h.lifecycle,
		Connections: h.tracker,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /ws/{userID}/{sessionID}", handler)
	mux.Handle("GET /ws", handler)
	h.server = httptest.NewServer(mw.RequestID(mux))
	return h
}

func mustDialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status=%d)", url, err, status)
	}
	return conn
}

func mustWriteJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func mustReadJSON(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func readOfType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(liveWait)
	for time.Now().Before(deadline) {
		msg := mustReadJSON(t, conn, time.Until(deadline))
		if msg["type"] == typ {
			return msg
		}
	}
	t.Fatalf("no %q message before deadline", typ)
	return nil
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	deadline := time.Now().Add(liveWait)
	_ = conn.SetReadDeadline(deadline)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var ne interface{ Timeout() bool }
			if errors.As(err, &ne) && ne.Timeout() {
				t.Fatalf("connection still open after %v", liveWait)
			}
			return
		}
	}
}

func waitStream(t *testing.T, runner *backendtest.Runner, i int) *backendtest.Stream {
	t.Helper()
	deadline := time.Now().Add(liveWait)
	for time.Now().Before(deadline) {
		if s := runner.Stream(i); s != nil {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stream %d never opened", i)
	return nil
}

func waitTrackerEmpty(t *testing.T, tr *sessions.Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), liveWait)
	defer cancel()
	if !tr.Wait(ctx) {
		t.Fatalf("tracker still holds %d connections", tr.Count())
	}
}

func TestLiveHandler_IdentifiedSessionRelaysBothWays(t *testing.T) {
	h := newLiveTestServer(t, config.Config{Voice: "Leda"})
	defer h.close()

	conn := mustDialWS(t, h.wsURL("/ws/NEU001/s-42"))
	defer conn.Close()

	status := mustReadJSON(t, conn, liveWait)
	if status["type"] != protocol.TypeStatus || status["status"] != protocol.StatusConnected {
		t.Fatalf("first message=%v", status)
	}
	stream := waitStream(t, h.runner, 0)

	mustWriteJSON(t, conn, map[string]any{"type": "ping"})
	if msg := readOfType(t, conn, protocol.TypePong); msg == nil {
		t.Fatal("missing pong")
	}

	mustWriteJSON(t, conn, map[string]any{"type": "audio", "data": "AAEC"})
	select {
	case req := <-h.runner.Received():
		if req.Blob == nil || req.Blob.MIMEType != backend.MIMETypePCM16k || len(req.Blob.Data) != 3 {
			t.Fatalf("request=%+v", req)
		}
	case <-time.After(liveWait):
		t.Fatal("audio never reached the backend")
	}

	stream.Emit(backend.Event{InputTranscription: &backend.Transcription{Text: "Where is my order?", Finished: true}})
	msg := readOfType(t, conn, protocol.TypeInputTranscription)
	if msg["text"] != "Where is my order?" || msg["finished"] != true {
		t.Fatalf("input transcription=%v", msg)
	}

	runs := h.runner.Runs()
	if len(runs) != 1 {
		t.Fatalf("runs=%d", len(runs))
	}
	if runs[0].UserID != "NEU001" || runs[0].SessionID != "s-42" || runs[0].AppName != config.DefaultAppName {
		t.Fatalf("run=%+v", runs[0])
	}
	if runs[0].Config.Voice != "Leda" {
		t.Fatalf("voice=%q", runs[0].Config.Voice)
	}
	if n := h.tracker.CountSession("NEU001", "s-42"); n != 1 {
		t.Fatalf("tracked connections=%d", n)
	}

	mustWriteJSON(t, conn, map[string]any{"type": "end_session"})
	expectClosed(t, conn)
	waitTrackerEmpty(t, h.tracker)

	if _, ok := h.sessions.Get("NEU001", "s-42"); !ok {
		t.Fatal("session should outlive the connection")
	}
}

func TestLiveHandler_LegacyRouteGeneratesIDs(t *testing.T) {
	h := newLiveTestServer(t, config.Config{})
	defer h.close()

	conn := mustDialWS(t, h.wsURL("/ws"))
	defer conn.Close()
	_ = mustReadJSON(t, conn, liveWait)
	waitStream(t, h.runner, 0).End(nil)
	expectClosed(t, conn)

	run := h.runner.Runs()[0]
	if !regexp.MustCompile(`^user_[0-9a-f]{8}$`).MatchString(run.UserID) {
		t.Fatalf("user id=%q", run.UserID)
	}
	if !regexp.MustCompile(`^session_[0-9a-f]{8}$`).MatchString(run.SessionID) {
		t.Fatalf("session id=%q", run.SessionID)
	}
}

func TestLiveHandler_ReconnectResumesSession(t *testing.T) {
	h := newLiveTestServer(t, config.Config{})
	defer h.close()

	conn := mustDialWS(t, h.wsURL("/ws/u1/s1"))
	_ = mustReadJSON(t, conn, liveWait)
	stream := waitStream(t, h.runner, 0)
	stream.Emit(backend.Event{SessionResumption: &backend.SessionResumption{NewHandle: "h-1", Resumable: true}})
	if msg := readOfType(t, conn, protocol.TypeSessionID); msg["data"] != "h-1" {
		t.Fatalf("session_id=%v", msg)
	}
	_ = conn.Close()
	waitTrackerEmpty(t, h.tracker)

	conn2 := mustDialWS(t, h.wsURL("/ws/u1/s1"))
	defer conn2.Close()
	_ = mustReadJSON(t, conn2, liveWait)
	waitStream(t, h.runner, 1)

	runs := h.runner.Runs()
	if len(runs) != 2 || runs[1].Config.ResumptionHandle != "h-1" {
		t.Fatalf("runs=%+v", runs)
	}
	if h.sessions.Len() != 1 {
		t.Fatalf("sessions=%d, want 1", h.sessions.Len())
	}
}

func TestLiveHandler_DrainNotifiesAndCancels(t *testing.T) {
	h := newLiveTestServer(t, config.Config{})
	defer h.close()

	conn := mustDialWS(t, h.wsURL("/ws/u1/s1"))
	defer conn.Close()
	_ = mustReadJSON(t, conn, liveWait)
	waitStream(t, h.runner, 0)

	if sent := h.tracker.NotifyAll(protocol.StatusDraining); sent != 1 {
		t.Fatalf("notified=%d, want 1", sent)
	}
	msg := readOfType(t, conn, protocol.TypeStatus)
	if msg["status"] != protocol.StatusDraining {
		t.Fatalf("status=%v", msg)
	}

	if n := h.tracker.CancelAll(); n != 1 {
		t.Fatalf("canceled=%d, want 1", n)
	}
	expectClosed(t, conn)
	waitTrackerEmpty(t, h.tracker)
}

func TestLiveHandler_DrainingRejectsUpgrade(t *testing.T) {
	h := newLiveTestServer(t, config.Config{})
	defer h.close()
	h.lifecycle.StartDraining(time.Now())

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL("/ws/u1/s1"), nil)
	if err == nil {
		t.Fatal("expected dial to fail while draining")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("resp=%v", resp)
	}
	if len(h.runner.Runs()) != 0 {
		t.Fatal("backend opened while draining")
	}
}

func TestLiveHandler_OriginAllowlist(t *testing.T) {
	h := newLiveTestServer(t, config.Config{CORSAllowedOrigins: map[string]struct{}{"https://care.tataneu.com": {}}})
	defer h.close()

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL("/ws/u1/s1"), http.Header{"Origin": {"https://evil.example.com"}})
	if err == nil {
		t.Fatal("expected forbidden origin to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp=%v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL("/ws/u1/s1"), http.Header{"Origin": {"https://care.tataneu.com"}})
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	defer conn.Close()
	if msg := mustReadJSON(t, conn, liveWait); msg["status"] != protocol.StatusConnected {
		t.Fatalf("first message=%v", msg)
	}
}

func TestLiveHandler_MethodNotAllowed(t *testing.T) {
	h := LiveHandler{Runner: backendtest.NewRunner(), Sessions: registry.New(registry.Config{})}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ws/u1/s1", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestLiveHandler_UnconfiguredBackend(t *testing.T) {
	rr := httptest.NewRecorder()
	LiveHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestLiveHandler_BackendOpenFailureClosesSocket(t *testing.T) {
	h := newLiveTestServer(t, config.Config{})
	defer h.close()
	h.runner.OpenErr = errors.New("quota exceeded")

	conn := mustDialWS(t, h.wsURL("/ws/u1/s1"))
	defer conn.Close()
	expectClosed(t, conn)
	waitTrackerEmpty(t, h.tracker)
}
