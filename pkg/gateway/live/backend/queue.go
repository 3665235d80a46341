package backend

import (
	"context"
	"errors"
	"sync"
)

const (
	MIMETypePCM16k = "audio/pcm;rate=16000"
	MIMETypeJPEG   = "image/jpeg"
)

var (
	ErrQueueClosed = errors.New("request queue closed")
	ErrQueueFull   = errors.New("request queue full")
)

// Request is one item of client input bound for the backend. Exactly one of
// Blob or Text is set.
type Request struct {
	Blob *Blob
	Text string
}

// RequestQueue carries client input to the backend. Any number of goroutines
// may send; a single backend reader drains Requests until Done is closed.
type RequestQueue struct {
	ch        chan Request
	done      chan struct{}
	closeOnce sync.Once
}

func NewRequestQueue(size int) *RequestQueue {
	if size < 0 {
		size = 0
	}
	return &RequestQueue{
		ch:   make(chan Request, size),
		done: make(chan struct{}),
	}
}

// SendRealtime never waits for room: live media is worthless once it is late,
// so a full queue returns ErrQueueFull and the caller drops the frame.
func (q *RequestQueue) SendRealtime(ctx context.Context, blob Blob) error {
	if q == nil {
		return ErrQueueClosed
	}
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	select {
	case q.ch <- Request{Blob: &blob}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *RequestQueue) SendText(ctx context.Context, text string) error {
	return q.send(ctx, Request{Text: text})
}

func (q *RequestQueue) send(ctx context.Context, req Request) error {
	if q == nil {
		return ErrQueueClosed
	}
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case q.ch <- req:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Requests is the read side. It is never closed; readers select on Done too.
func (q *RequestQueue) Requests() <-chan Request {
	return q.ch
}

func (q *RequestQueue) Done() <-chan struct{} {
	return q.done
}

func (q *RequestQueue) Close() {
	if q == nil {
		return
	}
	q.closeOnce.Do(func() { close(q.done) })
}
