// Package ratelimit bounds how often and how many live connections a single
// client may open. State is per process.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

type Config struct {
	// ConnectRPS and ConnectBurst shape new connections per client. Zero RPS
	// disables the rate limit.
	ConnectRPS   float64
	ConnectBurst int

	// MaxConnections caps concurrently open connections per client. Zero
	// disables the cap.
	MaxConnections int

	// Bounds for the client table.
	MaxClients int
	ClientTTL  time.Duration
}

// Enabled reports whether any limit is configured.
func (c Config) Enabled() bool {
	return c.ConnectRPS > 0 || c.MaxConnections > 0
}

type Limiter struct {
	cfg Config

	mu      sync.Mutex
	clients *expirable.LRU[string, *clientLimiter]
}

type clientLimiter struct {
	bucket *rate.Limiter
	slots  chan struct{}
}

func New(cfg Config) *Limiter {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10_000
	}
	if cfg.ClientTTL <= 0 {
		cfg.ClientTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg:     cfg,
		clients: expirable.NewLRU[string, *clientLimiter](cfg.MaxClients, nil, cfg.ClientTTL),
	}
}

type Permit struct {
	once    sync.Once
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.once.Do(p.release)
}

type Decision struct {
	Allowed bool
	// RetryAfter is whole seconds, set when Allowed is false.
	RetryAfter int
	// Reason is "rate" or "concurrency" for denials.
	Reason string
	Permit *Permit
}

// AcquireConnection admits one connection for client. A granted permit must
// be released when the connection ends.
func (l *Limiter) AcquireConnection(client string, now time.Time) Decision {
	if l == nil || !l.cfg.Enabled() {
		return Decision{Allowed: true, Permit: &Permit{}}
	}
	if client == "" {
		client = "unknown"
	}
	cl := l.client(client)

	release := func() {}
	if cl.slots != nil {
		select {
		case cl.slots <- struct{}{}:
			release = func() { <-cl.slots }
		default:
			return Decision{Allowed: false, RetryAfter: 1, Reason: "concurrency"}
		}
	}

	if cl.bucket != nil {
		r := cl.bucket.ReserveN(now, 1)
		if !r.OK() {
			release()
			return Decision{Allowed: false, RetryAfter: 1, Reason: "rate"}
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			release()
			return Decision{Allowed: false, RetryAfter: retryAfterSeconds(delay), Reason: "rate"}
		}
	}

	return Decision{Allowed: true, Permit: &Permit{release: release}}
}

// Clients is the number of tracked clients.
func (l *Limiter) Clients() int {
	if l == nil {
		return 0
	}
	return l.clients.Len()
}

// client returns the limiter for key, refreshing its TTL.
func (l *Limiter) client(key string) *clientLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients.Get(key)
	if !ok {
		cl = &clientLimiter{}
		if l.cfg.ConnectRPS > 0 {
			cl.bucket = rate.NewLimiter(rate.Limit(l.cfg.ConnectRPS), max(1, l.cfg.ConnectBurst))
		}
		if l.cfg.MaxConnections > 0 {
			cl.slots = make(chan struct{}, l.cfg.MaxConnections)
		}
	}
	l.clients.Add(key, cl)
	return cl
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
