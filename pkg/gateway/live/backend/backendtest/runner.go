// Package backendtest provides a scripted in-memory backend for relay tests.
package backendtest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/vango-go/carelive/pkg/gateway/live/backend"
)

// Runner hands out a Stream per RunLive call and records every request it
// drains from the connection's queue.
type Runner struct {
	mu       sync.Mutex
	runs     []backend.RunRequest
	requests []backend.Request
	streams  []*Stream

	// OpenErr, when set, is returned from RunLive.
	OpenErr error

	received chan backend.Request
}

func NewRunner() *Runner {
	return &Runner{received: make(chan backend.Request, 256)}
}

func (r *Runner) RunLive(ctx context.Context, req backend.RunRequest) (backend.EventStream, error) {
	if r.OpenErr != nil {
		return nil, r.OpenErr
	}
	s := NewStream()
	r.mu.Lock()
	r.runs = append(r.runs, req)
	r.streams = append(r.streams, s)
	r.mu.Unlock()

	if req.Queue != nil {
		go r.drain(ctx, req.Queue)
	}
	return s, nil
}

func (r *Runner) drain(ctx context.Context, q *backend.RequestQueue) {
	for {
		select {
		case req := <-q.Requests():
			r.mu.Lock()
			r.requests = append(r.requests, req)
			r.mu.Unlock()
			select {
			case r.received <- req:
			default:
			}
		case <-q.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// Received delivers each drained request as it arrives.
func (r *Runner) Received() <-chan backend.Request {
	return r.received
}

func (r *Runner) Runs() []backend.RunRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]backend.RunRequest, len(r.runs))
	copy(out, r.runs)
	return out
}

func (r *Runner) Requests() []backend.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]backend.Request, len(r.requests))
	copy(out, r.requests)
	return out
}

// Stream returns the i-th opened stream, or nil.
func (r *Runner) Stream(i int) *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.streams) {
		return nil
	}
	return r.streams[i]
}

// Stream is a backend.EventStream fed by the test.
type Stream struct {
	events    chan backend.Event
	done      chan struct{}
	endOnce   sync.Once
	closeOnce sync.Once
	closed    chan struct{}

	mu  sync.Mutex
	err error
}

func NewStream() *Stream {
	return &Stream{
		events: make(chan backend.Event, 64),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Emit queues an event for the relay.
func (s *Stream) Emit(ev backend.Event) {
	s.events <- ev
}

// End finishes the stream after queued events drain; err nil means io.EOF.
func (s *Stream) End(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Stream) Next(ctx context.Context) (backend.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	default:
	}
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		if err == nil {
			err = io.EOF
		}
		return backend.Event{}, err
	case <-s.closed:
		return backend.Event{}, errors.New("stream closed")
	case <-ctx.Done():
		return backend.Event{}, ctx.Err()
	}
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// Closed is closed once the relay has released the stream.
func (s *Stream) Closed() <-chan struct{} {
	return s.closed
}
