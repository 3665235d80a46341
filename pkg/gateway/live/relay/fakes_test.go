package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordedWrite struct {
	messageType int
	data        string
}

// fakeConn is an in-memory client socket. Frames pushed with send are read by
// the relay; text frames the relay writes appear on written.
type fakeConn struct {
	in        chan inboundFrame
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	writes   []recordedWrite
	written  chan []byte
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan inboundFrame, 64),
		closed:  make(chan struct{}),
		written: make(chan []byte, 256),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-f.in:
		return fr.messageType, fr.data, fr.err
	case <-f.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	buf := make([]byte, len(data))
	copy(buf, data)
	f.written <- buf
	return nil
}

func (f *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) send(raw string) {
	f.in <- inboundFrame{messageType: websocket.TextMessage, data: []byte(raw)}
}

func (f *fakeConn) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeConn) failWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// next returns the next text frame the relay wrote, decoded.
func (f *fakeConn) next(t *testing.T, timeout time.Duration) map[string]any {
	t.Helper()
	select {
	case raw := <-f.written:
		var msg map[string]any
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("invalid outbound json %q: %v", raw, err)
		}
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for outbound message")
		return nil
	}
}

// nextOfType skips frames until one of the given type arrives.
func (f *fakeConn) nextOfType(t *testing.T, typ string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for %q", typ)
		}
		msg := f.next(t, remaining)
		if msg["type"] == typ {
			return msg
		}
	}
}

// expectNone asserts no further text frame is written within d.
func (f *fakeConn) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case raw := <-f.written:
		t.Fatalf("unexpected outbound message %s", raw)
	case <-time.After(d):
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errBrokenPipe = errors.New("broken pipe")
