package backend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestQueue_DeliversInSendOrder(t *testing.T) {
	q := NewRequestQueue(4)
	ctx := context.Background()

	require.NoError(t, q.SendRealtime(ctx, Blob{MIMEType: MIMETypePCM16k, Data: []byte{1}}))
	require.NoError(t, q.SendText(ctx, "hello"))

	first := <-q.Requests()
	require.NotNil(t, first.Blob)
	assert.Equal(t, MIMETypePCM16k, first.Blob.MIMEType)
	assert.Equal(t, []byte{1}, first.Blob.Data)

	second := <-q.Requests()
	assert.Nil(t, second.Blob)
	assert.Equal(t, "hello", second.Text)
}

func TestRequestQueue_SendAfterCloseFails(t *testing.T) {
	q := NewRequestQueue(1)
	q.Close()
	q.Close()

	err := q.SendRealtime(context.Background(), Blob{MIMEType: MIMETypeJPEG})
	assert.ErrorIs(t, err, ErrQueueClosed)

	select {
	case <-q.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestRequestQueue_BlockedSendUnblocksOnClose(t *testing.T) {
	q := NewRequestQueue(0)

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.SendText(context.Background(), "stuck")
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("send did not unblock")
	}
}

func TestRequestQueue_BlockedSendHonoursContext(t *testing.T) {
	q := NewRequestQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.SendText(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequestQueue_RealtimeDropsWhenFull(t *testing.T) {
	q := NewRequestQueue(1)
	ctx := context.Background()

	require.NoError(t, q.SendRealtime(ctx, Blob{MIMEType: MIMETypePCM16k, Data: []byte{1}}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.SendRealtime(ctx, Blob{MIMEType: MIMETypePCM16k, Data: []byte{2}})
	}()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("realtime send blocked on a full queue")
	}

	// The queued frame is untouched and the next one fits again.
	first := <-q.Requests()
	assert.Equal(t, []byte{1}, first.Blob.Data)
	assert.NoError(t, q.SendRealtime(ctx, Blob{MIMEType: MIMETypePCM16k, Data: []byte{3}}))
}

func TestRequestQueue_ManyWriters(t *testing.T) {
	q := NewRequestQueue(64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				_ = q.SendRealtime(context.Background(), Blob{MIMEType: MIMETypePCM16k})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, q.Requests(), 64)
}

func TestEvent_IsZero(t *testing.T) {
	assert.True(t, Event{}.IsZero())
	assert.False(t, Event{TurnComplete: true}.IsZero())
	assert.False(t, Event{InlineData: []Blob{{Data: []byte{0}}}}.IsZero())
}
