package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-go/carelive/pkg/gateway/live/backend"
	"github.com/vango-go/carelive/pkg/gateway/live/protocol"
)

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

// upstream forwards client frames into the request queue until the socket
// closes, the client ends the session, or ctx is cancelled. None of those is
// an error.
func (c *Connection) upstream(ctx context.Context) error {
	frames := make(chan inboundFrame, 16)
	go c.readLoop(ctx, frames)

	for {
		var (
			f  inboundFrame
			ok bool
		)
		select {
		case <-ctx.Done():
			return nil
		case f, ok = <-frames:
		}
		if !ok {
			return nil
		}
		if f.err != nil {
			c.logReadEnd(f.err)
			return nil
		}
		c.inbound.Add(1)

		stop, err := c.handleInbound(ctx, f)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

func (c *Connection) readLoop(ctx context.Context, out chan<- inboundFrame) {
	defer close(out)
	for {
		if c.cfg.IdleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		}
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Connection) logReadEnd(err error) {
	var netErr net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Info("client disconnected")
	case errors.As(err, &netErr) && netErr.Timeout():
		c.logger.Info("client idle timeout", "idle_timeout", c.cfg.IdleTimeout)
	default:
		c.logger.Info("client connection ended", "error", err)
	}
}

// handleInbound processes one frame. Malformed frames are dropped; only a
// failed pong write or a refused queue is reported.
func (c *Connection) handleInbound(ctx context.Context, f inboundFrame) (stop bool, err error) {
	if f.messageType != websocket.TextMessage {
		c.logger.Warn("dropping non-text frame", "message_type", f.messageType)
		return false, nil
	}
	msg, err := protocol.DecodeClientMessage(f.data)
	if err != nil {
		c.logger.Warn("dropping inbound frame", "error", err)
		return false, nil
	}

	switch msg.Type {
	case protocol.TypeAudio:
		return c.forwardBlob(ctx, msg.Data, backend.MIMETypePCM16k)
	case protocol.TypeVideo:
		return c.forwardBlob(ctx, msg.Data, backend.MIMETypeJPEG)
	case protocol.TypeText:
		c.logger.Info("received text", "text", preview(msg.Data))
		if !c.cfg.ForwardText || msg.Data == "" {
			return false, nil
		}
		return c.enqueue(ctx, c.queue.SendText(ctx, msg.Data))
	case protocol.TypePing:
		if err := c.writer.sendJSON(ctx, protocol.Pong()); err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, fmt.Errorf("write pong: %w", err)
		}
		return false, nil
	case protocol.TypeEndSession:
		c.logger.Info("client requested session end")
		return true, nil
	}
	return false, nil
}

func (c *Connection) forwardBlob(ctx context.Context, b64, mimeType string) (bool, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		c.logger.Warn("dropping frame with invalid base64", "mime_type", mimeType, "error", err)
		return false, nil
	}
	err = c.queue.SendRealtime(ctx, backend.Blob{MIMEType: mimeType, Data: data})
	if errors.Is(err, backend.ErrQueueFull) {
		n := c.dropped.Add(1)
		c.logger.Warn("backend busy; dropping realtime frame", "mime_type", mimeType, "dropped", n)
		return false, nil
	}
	return c.enqueue(ctx, err)
}

func (c *Connection) enqueue(ctx context.Context, err error) (bool, error) {
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, backend.ErrQueueClosed), ctx.Err() != nil:
		return true, nil
	default:
		return true, fmt.Errorf("enqueue request: %w", err)
	}
}
