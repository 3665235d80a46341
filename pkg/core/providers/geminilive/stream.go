package geminilive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/vango-go/carelive/pkg/gateway/live/backend"
	"github.com/vango-go/carelive/pkg/tools"
)

var errStreamClosed = errors.New("live stream closed")

type streamItem struct {
	ev  backend.Event
	err error
}

// eventStream implements backend.EventStream over one live session. The
// receive loop converts server messages; tool calls are answered on their own
// goroutine so audio keeps flowing while a query runs.
type eventStream struct {
	sess   Session
	tools  *tools.Registry
	logger *slog.Logger

	// sendMu serializes writes to the session from the pump and tool
	// goroutines.
	sendMu sync.Mutex

	items     chan streamItem
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu  sync.Mutex
	err error

	// pending holds in-flight tool calls by id until they are answered or
	// the model cancels them.
	callsMu sync.Mutex
	pending map[string]*pendingCall
}

type pendingCall struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled bool
}

func newEventStream(sess Session, reg *tools.Registry, logger *slog.Logger, buffer int) *eventStream {
	return &eventStream{
		sess:    sess,
		tools:   reg,
		logger:  logger,
		items:   make(chan streamItem, buffer),
		done:    make(chan struct{}),
		pending: make(map[string]*pendingCall),
	}
}

func (s *eventStream) start(ctx context.Context, q *backend.RequestQueue) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.pump(ctx, q)
	go s.receive(ctx)
}

// Next returns the next event. After the session ends every call returns the
// same terminal error; a normal close from the server is io.EOF.
func (s *eventStream) Next(ctx context.Context) (backend.Event, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return backend.Event{}, err
	}

	select {
	case it := <-s.items:
		if it.err != nil {
			s.mu.Lock()
			s.err = it.err
			s.mu.Unlock()
			return backend.Event{}, it.err
		}
		return it.ev, nil
	case <-s.done:
		return backend.Event{}, errStreamClosed
	case <-ctx.Done():
		return backend.Event{}, ctx.Err()
	}
}

func (s *eventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}
		err = s.sess.Close()
	})
	return err
}

func (s *eventStream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *eventStream) emit(it streamItem) bool {
	select {
	case s.items <- it:
		return true
	case <-s.done:
		return false
	}
}

func (s *eventStream) pump(ctx context.Context, q *backend.RequestQueue) {
	for {
		select {
		case req := <-q.Requests():
			if err := s.forward(req); err != nil {
				if s.closed() {
					return
				}
				s.emit(streamItem{err: fmt.Errorf("send realtime input: %w", err)})
				return
			}
		case <-q.Done():
			return
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *eventStream) forward(req backend.Request) error {
	input, ok := realtimeInput(req)
	if !ok {
		s.logger.Warn("dropping request with unsupported content", "mime_type", blobMIMEType(req.Blob))
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.sess.SendRealtimeInput(input)
}

func (s *eventStream) receive(ctx context.Context) {
	for {
		msg, err := s.sess.Receive()
		if err != nil {
			if s.closed() {
				return
			}
			s.emit(streamItem{err: receiveError(err)})
			return
		}
		if msg == nil {
			continue
		}
		if msg.GoAway != nil {
			s.logger.Warn("live server going away")
		}
		if msg.ToolCallCancellation != nil {
			n := s.cancelCalls(msg.ToolCallCancellation.IDs)
			s.logger.Info("tool calls cancelled", "ids", msg.ToolCallCancellation.IDs, "in_flight", n)
		}

		if ev := eventFromMessage(msg); !ev.IsZero() {
			if !s.emit(streamItem{ev: ev}) {
				return
			}
		}
		if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
			// Track before answering so a cancellation that follows right
			// away still finds the call.
			calls := msg.ToolCall.FunctionCalls
			go s.answer(calls, s.trackCalls(ctx, calls))
		}
	}
}

func (s *eventStream) trackCalls(ctx context.Context, calls []*genai.FunctionCall) []*pendingCall {
	out := make([]*pendingCall, len(calls))
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	for i, fc := range calls {
		if fc == nil {
			continue
		}
		callCtx, cancel := context.WithCancel(ctx)
		out[i] = &pendingCall{ctx: callCtx, cancel: cancel}
		if fc.ID != "" {
			s.pending[fc.ID] = out[i]
		}
	}
	return out
}

// cancelCalls stops the named in-flight calls and returns how many it found.
func (s *eventStream) cancelCalls(ids []string) int {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	n := 0
	for _, id := range ids {
		if p, ok := s.pending[id]; ok {
			p.cancelled = true
			p.cancel()
			n++
		}
	}
	return n
}

// finishCall forgets a call and reports whether the model cancelled it.
func (s *eventStream) finishCall(id string, p *pendingCall) bool {
	s.callsMu.Lock()
	cancelled := p.cancelled
	if s.pending[id] == p {
		delete(s.pending, id)
	}
	s.callsMu.Unlock()
	p.cancel()
	return cancelled
}

// answer executes function calls and returns their results to the model, then
// reports the responses as an event. Calls the model cancelled meanwhile get
// no response.
func (s *eventStream) answer(calls []*genai.FunctionCall, pending []*pendingCall) {
	responses := make([]*genai.FunctionResponse, 0, len(calls))
	for i, fc := range calls {
		if fc == nil {
			continue
		}
		p := pending[i]
		out := s.tools.Call(p.ctx, fc.Name, fc.Args)
		if s.finishCall(fc.ID, p) {
			s.logger.Info("dropping result of cancelled tool call", "id", fc.ID, "name", fc.Name)
			continue
		}
		responses = append(responses, &genai.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: out})
	}
	if len(responses) == 0 || s.closed() {
		return
	}

	s.sendMu.Lock()
	err := s.sess.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses})
	s.sendMu.Unlock()
	if err != nil {
		if !s.closed() {
			s.logger.Warn("send tool response failed", "error", err)
		}
		return
	}
	s.emit(streamItem{ev: backend.Event{FunctionResponses: functionResponses(responses)}})
}

func realtimeInput(req backend.Request) (genai.LiveRealtimeInput, bool) {
	if req.Blob == nil {
		if req.Text == "" {
			return genai.LiveRealtimeInput{}, false
		}
		return genai.LiveRealtimeInput{Text: req.Text}, true
	}
	blob := &genai.Blob{MIMEType: req.Blob.MIMEType, Data: req.Blob.Data}
	mime := strings.ToLower(req.Blob.MIMEType)
	switch {
	case strings.HasPrefix(mime, "audio/"):
		return genai.LiveRealtimeInput{Audio: blob}, true
	case strings.HasPrefix(mime, "image/"), strings.HasPrefix(mime, "video/"):
		return genai.LiveRealtimeInput{Video: blob}, true
	default:
		return genai.LiveRealtimeInput{}, false
	}
}

func blobMIMEType(b *backend.Blob) string {
	if b == nil {
		return ""
	}
	return b.MIMEType
}

func receiveError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return fmt.Errorf("receive: %w", err)
}
