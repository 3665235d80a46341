package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type wsReader interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
}

// Conn is the client socket as the relay sees it. *websocket.Conn satisfies it.
type Conn interface {
	wsReader
	wsWriter
}

// outboundWriter serializes socket writes from the upstream (pong) and
// downstream (everything else) goroutines.
type outboundWriter struct {
	ws           wsWriter
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	sent   atomic.Int64
}

func newOutboundWriter(ws wsWriter, writeTimeout time.Duration) *outboundWriter {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &outboundWriter{ws: ws, writeTimeout: writeTimeout}
}

type encodeError struct {
	err error
}

func (e *encodeError) Error() string { return fmt.Sprintf("encode outbound message: %v", e.err) }

func (e *encodeError) Unwrap() error { return e.err }

func (w *outboundWriter) sendJSON(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return &encodeError{err: err}
	}
	return w.writeText(ctx, payload)
}

// writeText refuses to write once ctx is done, so a cancelled relay never
// completes another frame.
func (w *outboundWriter) writeText(ctx context.Context, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if w.closed {
		return websocket.ErrCloseSent
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	if err := w.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	w.sent.Add(1)
	return nil
}

// closeNormal sends a close frame once; later writes fail with ErrCloseSent.
func (w *outboundWriter) closeNormal() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(w.writeTimeout))
}

func (w *outboundWriter) count() int64 {
	return w.sent.Load()
}
