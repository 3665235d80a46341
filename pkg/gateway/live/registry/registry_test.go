package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreate_CreatesThenResumes(t *testing.T) {
	r := New(Config{AppName: "care"})

	s1, created := r.GetOrCreate("u1", "s1")
	require.True(t, created)
	assert.Equal(t, "care", s1.AppName)
	assert.Equal(t, "u1", s1.UserID)
	assert.Equal(t, "s1", s1.ID)

	s2, created := r.GetOrCreate("u1", "s1")
	assert.False(t, created)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, r.Len())
}

func TestGetOrCreate_DistinctKeysDoNotInterfere(t *testing.T) {
	r := New(Config{})

	a, _ := r.GetOrCreate("u1", "s1")
	b, _ := r.GetOrCreate("u1", "s2")
	c, _ := r.GetOrCreate("u2", "s1")

	assert.NotSame(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 3, r.Len())
}

func TestGetOrCreate_ConcurrentSameKeySharesOneSession(t *testing.T) {
	r := New(Config{})

	const n = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sessions = make(map[*Session]struct{})
		creators int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, created := r.GetOrCreate("u", "s")
			mu.Lock()
			sessions[s] = struct{}{}
			if created {
				creators++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, sessions, 1)
	assert.Equal(t, 1, creators)
}

func TestRegistry_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	r := New(Config{Capacity: 2})

	r.GetOrCreate("u", "1")
	r.GetOrCreate("u", "2")
	r.GetOrCreate("u", "1") // touch 1 so 2 is oldest
	r.GetOrCreate("u", "3")

	assert.Equal(t, 2, r.Len())
	_, ok := r.Get("u", "2")
	assert.False(t, ok)
	_, ok = r.Get("u", "1")
	assert.True(t, ok)
}

func TestRegistry_EvictedLiveSessionReadoptedOnHandle(t *testing.T) {
	r := New(Config{Capacity: 1})

	live, _ := r.GetOrCreate("u1", "a")
	r.GetOrCreate("u2", "b")
	_, ok := r.Get("u1", "a")
	require.False(t, ok)

	live.SetResumptionHandle("h-7")

	got, created := r.GetOrCreate("u1", "a")
	assert.False(t, created)
	assert.Same(t, live, got)
	assert.Equal(t, "h-7", got.ResumptionHandle())
}

func TestRegistry_RemovedSessionStaysRemoved(t *testing.T) {
	r := New(Config{})

	s, _ := r.GetOrCreate("u", "s")
	require.True(t, r.Remove("u", "s"))
	s.SetResumptionHandle("h")

	_, ok := r.Get("u", "s")
	assert.False(t, ok)
}

func TestRegistry_TTLExpiresIdleSessions(t *testing.T) {
	r := New(Config{TTL: 50 * time.Millisecond})
	r.GetOrCreate("u", "s")

	require.Eventually(t, func() bool {
		_, ok := r.Get("u", "s")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	_, created := r.GetOrCreate("u", "s")
	assert.True(t, created)
}

func TestRegistry_TrimsKeys(t *testing.T) {
	r := New(Config{})
	s1, _ := r.GetOrCreate(" u ", "s ")
	s2, created := r.GetOrCreate("u", "s")
	assert.False(t, created)
	assert.Same(t, s1, s2)
}

func TestSession_HandleAndMessages(t *testing.T) {
	r := New(Config{})
	s, _ := r.GetOrCreate("u", "s")

	assert.Empty(t, s.ResumptionHandle())
	s.SetResumptionHandle("h-1")
	assert.Equal(t, "h-1", s.ResumptionHandle())

	now := time.Now()
	s.AppendMessages(Message{Role: RoleUser, Text: "hi", Timestamp: now})
	s.AppendMessages()
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleUser, msgs[0].Role)

	msgs[0].Text = "mutated"
	assert.Equal(t, "hi", s.Messages()[0].Text)
}

func TestRegistry_Remove(t *testing.T) {
	r := New(Config{})
	for i := 0; i < 3; i++ {
		r.GetOrCreate("u", fmt.Sprint(i))
	}
	assert.True(t, r.Remove("u", "1"))
	assert.False(t, r.Remove("u", "1"))
	assert.Equal(t, 2, r.Len())
}
