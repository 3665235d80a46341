package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vango-go/carelive/pkg/gateway/live/backend"
	"github.com/vango-go/carelive/pkg/gateway/live/protocol"
)

// downstream opens the backend stream and relays its events to the client
// until the stream ends, fails, or ctx is cancelled. It never retries.
func (c *Connection) downstream(ctx context.Context) error {
	if err := c.writer.sendJSON(ctx, protocol.Status(protocol.StatusConnected)); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("write status: %w", err)
	}

	stream, err := c.runner.RunLive(ctx, backend.RunRequest{
		AppName:   c.cfg.AppName,
		UserID:    c.session.UserID,
		SessionID: c.session.ID,
		Queue:     c.queue,
		Config:    c.runConfig(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("open live stream: %w", err)
	}
	defer stream.Close()

	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info("live stream finished")
				return nil
			}
			return fmt.Errorf("receive live event: %w", err)
		}
		c.events.Add(1)
		if err := c.handleEvent(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("write event: %w", err)
		}
	}
}

// handleEvent translates and emits one event. Translation and encoding
// failures are logged and the event (or the offending message) is skipped;
// only socket write failures are returned.
func (c *Connection) handleEvent(ctx context.Context, ev backend.Event) error {
	tr, ok := c.safeTranslate(ev)
	if !ok {
		return nil
	}

	if tr.handle != "" {
		c.session.SetResumptionHandle(tr.handle)
	}
	if len(tr.completed) > 0 {
		c.record(tr.completed)
	}

	for _, msg := range tr.out {
		err := c.writer.sendJSON(ctx, msg)
		if err == nil {
			continue
		}
		var encErr *encodeError
		if errors.As(err, &encErr) {
			c.logger.Error("error processing event", "error", err)
			continue
		}
		return err
	}
	return nil
}

func (c *Connection) safeTranslate(ev backend.Event) (tr translation, ok bool) {
	defer func() {
		if v := recover(); v != nil {
			c.logger.Error("error processing event", "panic", v)
			ok = false
		}
	}()
	return c.translator.translate(ev), true
}

func (c *Connection) runConfig() backend.RunConfig {
	return backend.RunConfig{
		Voice:                    c.cfg.Voice,
		ResponseModalities:       []string{"AUDIO"},
		InputAudioTranscription:  true,
		OutputAudioTranscription: true,
		ResumptionHandle:         c.session.ResumptionHandle(),
	}
}
