// Package registry maps (user, session) pairs to reusable conversation
// sessions. Entries are bounded by an LRU capacity and expire after an idle
// TTL; every resume refreshes the TTL.
package registry

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Key struct {
	UserID    string
	SessionID string
}

// Message is one completed conversational line.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the process-local conversation context for one key. It holds no
// business data, only the backend's resumption handle and the transcript.
type Session struct {
	AppName   string
	UserID    string
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	handle   string
	messages []Message
	// owner is the registry that created the session, cleared by Remove.
	owner *Registry
}

func (s *Session) ResumptionHandle() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Session) SetResumptionHandle(handle string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.handle = handle
	owner := s.owner
	s.mu.Unlock()
	if owner != nil {
		owner.readopt(s)
	}
}

func (s *Session) AppendMessages(msgs ...Message) {
	if s == nil || len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	s.messages = append(s.messages, msgs...)
	s.mu.Unlock()
}

func (s *Session) Messages() []Message {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

type Config struct {
	AppName string
	// Capacity bounds the number of live entries; 0 means unbounded. The
	// least recently resumed entry goes first even if its socket is still
	// open; such a session is put back the next time its handle changes.
	Capacity int
	// TTL evicts entries idle for longer than this; 0 disables expiry.
	TTL    time.Duration
	Logger *slog.Logger
	Now    func() time.Time
}

type Registry struct {
	appName string
	logger  *slog.Logger
	now     func() time.Time

	// mu serializes get-or-create so two callers racing on one key always
	// end up sharing the first-created session.
	mu    sync.Mutex
	cache *expirable.LRU[Key, *Session]
}

func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Capacity < 0 {
		cfg.Capacity = 0
	}
	r := &Registry{
		appName: cfg.AppName,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	r.cache = expirable.NewLRU[Key, *Session](cfg.Capacity, r.onEvict, cfg.TTL)
	return r
}

func (r *Registry) onEvict(key Key, s *Session) {
	r.logger.Info("session evicted", "user_id", key.UserID, "session_id", key.SessionID)
}

// readopt puts back a session that was evicted while still in use, unless
// another session has taken its key since.
func (r *Registry) readopt(s *Session) {
	key := Key{UserID: s.UserID, SessionID: s.ID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache.Peek(key); ok {
		return
	}
	r.cache.Add(key, s)
	r.logger.Info("evicted session re-adopted", "user_id", key.UserID, "session_id", key.SessionID)
}

// GetOrCreate returns the session for the key, creating it on first use.
// created reports whether this call created it.
func (r *Registry) GetOrCreate(userID, sessionID string) (s *Session, created bool) {
	key := Key{UserID: strings.TrimSpace(userID), SessionID: strings.TrimSpace(sessionID)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.cache.Get(key); ok {
		// Re-adding refreshes the entry's expiry.
		r.cache.Add(key, existing)
		return existing, false
	}
	s = &Session{
		AppName:   r.appName,
		UserID:    key.UserID,
		ID:        key.SessionID,
		CreatedAt: r.now(),
		owner:     r,
	}
	r.cache.Add(key, s)
	return s, true
}

func (r *Registry) Get(userID, sessionID string) (*Session, bool) {
	key := Key{UserID: strings.TrimSpace(userID), SessionID: strings.TrimSpace(sessionID)}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Peek(key)
}

func (r *Registry) Remove(userID, sessionID string) bool {
	key := Key{UserID: strings.TrimSpace(userID), SessionID: strings.TrimSpace(sessionID)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.cache.Peek(key); ok {
		s.mu.Lock()
		s.owner = nil
		s.mu.Unlock()
	}
	return r.cache.Remove(key)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}
