package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/vango-go/carelive/pkg/gateway/config"
	"github.com/vango-go/carelive/pkg/gateway/ratelimit"
)

func upgradeRequest(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ws/u1/s1", nil)
	req.Header.Set("Connection", "keep-alive, Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.RemoteAddr = remote
	return req
}

func TestConnectionLimit_Rate429IncludesRetryAfter(t *testing.T) {
	lim := ratelimit.New(ratelimit.Config{ConnectRPS: 1, ConnectBurst: 1})

	h := ConnectionLimit(config.Config{}, nil, lim, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	{
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, upgradeRequest("192.0.2.1:1234"))
		if rr.Code != http.StatusOK {
			t.Fatalf("first upgrade status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	{
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, upgradeRequest("192.0.2.1:5678"))
		if rr.Code != http.StatusTooManyRequests {
			t.Fatalf("second upgrade status=%d body=%q", rr.Code, rr.Body.String())
		}
		if got := rr.Header().Get("Retry-After"); got == "" {
			t.Fatalf("expected Retry-After header")
		}
		if body := rr.Body.String(); !strings.Contains(body, `"type":"rate_limit_error"`) || !strings.Contains(body, `"code":"rate"`) {
			t.Fatalf("unexpected body: %q", body)
		}
	}

	{
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, upgradeRequest("192.0.2.2:1234"))
		if rr.Code != http.StatusOK {
			t.Fatalf("other client status=%d", rr.Code)
		}
	}
}

func TestConnectionLimit_ConcurrentConnections429(t *testing.T) {
	lim := ratelimit.New(ratelimit.Config{MaxConnections: 1})

	started := make(chan struct{})
	release := make(chan struct{})

	h := ConnectionLimit(config.Config{}, nil, lim, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	var firstCode int
	wg.Add(1)
	go func() {
		defer wg.Done()
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, upgradeRequest("192.0.2.1:1"))
		firstCode = rr.Code
	}()

	<-started

	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, upgradeRequest("192.0.2.1:2"))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("second upgrade status=%d body=%q", rr2.Code, rr2.Body.String())
	}

	close(release)
	wg.Wait()
	if firstCode != http.StatusOK {
		t.Fatalf("first upgrade status=%d", firstCode)
	}
}

func TestConnectionLimit_PlainRequestsPassThrough(t *testing.T) {
	lim := ratelimit.New(ratelimit.Config{ConnectRPS: 1, ConnectBurst: 1})
	calls := 0
	h := ConnectionLimit(config.Config{}, nil, lim, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("plain request %d status=%d", i, rr.Code)
		}
	}
	if calls != 5 {
		t.Fatalf("calls=%d, want 5", calls)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "198.51.100.7:4431"
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")

	if got := ClientKey(req, false); got != "198.51.100.7" {
		t.Fatalf("untrusted key=%q", got)
	}
	if got := ClientKey(req, true); got != "203.0.113.9" {
		t.Fatalf("trusted key=%q", got)
	}

	req.Header.Del("X-Forwarded-For")
	req.RemoteAddr = "pipe"
	if got := ClientKey(req, true); got != "pipe" {
		t.Fatalf("fallback key=%q", got)
	}
}
