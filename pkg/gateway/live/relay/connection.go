// Package relay runs one client connection: an upstream goroutine feeding the
// backend request queue and a downstream goroutine translating the backend's
// event stream back to the client. Whichever finishes first ends both.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/carelive/pkg/gateway/live/backend"
	"github.com/vango-go/carelive/pkg/gateway/live/protocol"
	"github.com/vango-go/carelive/pkg/gateway/live/registry"
)

type Config struct {
	AppName          string
	Voice            string
	RequestQueueSize int
	WriteTimeout     time.Duration
	// IdleTimeout closes the connection after this long without an inbound
	// frame. Zero disables it.
	IdleTimeout time.Duration
	// ForwardText sends inbound text frames to the backend instead of only
	// logging them.
	ForwardText bool
}

type Dependencies struct {
	Conn      Conn
	Runner    backend.Runner
	Session   *registry.Session
	Logger    *slog.Logger
	RequestID string
	Config    Config
	Now       func() time.Time
}

// Summary describes a finished connection.
type Summary struct {
	Duration time.Duration
	// Messages counts completed conversational lines recorded.
	Messages int
	Inbound  int64
	Events   int64
	Outbound int64
	// Dropped counts realtime frames discarded while the backend lagged.
	Dropped  int64
	EndedBy  string
}

type Connection struct {
	conn    Conn
	runner  backend.Runner
	session *registry.Session
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	queue      *backend.RequestQueue
	writer     *outboundWriter
	translator *translator

	inbound atomic.Int64
	events  atomic.Int64
	dropped atomic.Int64

	mu         sync.Mutex
	transcript []registry.Message
}

func New(deps Dependencies) (*Connection, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.RequestQueueSize <= 0 {
		deps.Config.RequestQueueSize = 64
	}

	logger := deps.Logger.With("user_id", deps.Session.UserID, "session_id", deps.Session.ID)
	if deps.RequestID != "" {
		logger = logger.With("request_id", deps.RequestID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:       deps.Conn,
		runner:     deps.Runner,
		session:    deps.Session,
		logger:     logger,
		cfg:        deps.Config,
		now:        deps.Now,
		ctx:        ctx,
		cancel:     cancel,
		queue:      backend.NewRequestQueue(deps.Config.RequestQueueSize),
		writer:     newOutboundWriter(deps.Conn, deps.Config.WriteTimeout),
		translator: newTranslator(logger, deps.Now),
	}, nil
}

// Run blocks until one relay finishes, then cancels the other and waits for
// it. The summary is always logged, including when a relay fails or panics.
func (c *Connection) Run() (summary Summary, err error) {
	start := c.now()
	var endedBy atomic.Value
	endedBy.Store("")

	defer func() {
		c.cancel()
		c.queue.Close()
		c.writer.closeNormal()

		summary = Summary{
			Duration: c.now().Sub(start),
			Messages: len(c.Transcript()),
			Inbound:  c.inbound.Load(),
			Events:   c.events.Load(),
			Outbound: c.writer.count(),
			Dropped:  c.dropped.Load(),
			EndedBy:  endedBy.Load().(string),
		}
		c.logger.Info("session ended",
			"duration_s", summary.Duration.Seconds(),
			"messages", summary.Messages,
			"inbound_frames", summary.Inbound,
			"backend_events", summary.Events,
			"outbound_frames", summary.Outbound,
			"dropped_frames", summary.Dropped,
			"ended_by", summary.EndedBy,
		)
	}()

	g, ctx := errgroup.WithContext(c.ctx)
	race := func(name string, fn func(context.Context) error) {
		g.Go(func() (err error) {
			defer func() {
				if v := recover(); v != nil {
					err = fmt.Errorf("%s panic: %v", name, v)
				}
				endedBy.CompareAndSwap("", name)
				c.cancel()
			}()
			return fn(ctx)
		})
	}
	race("upstream", c.upstream)
	race("downstream", c.downstream)

	if err = g.Wait(); err != nil {
		c.logger.Error("live connection error", "error", err)
	}
	return summary, err
}

// Cancel ends the connection; Run returns once both relays have stopped.
func (c *Connection) Cancel() {
	if c == nil || c.cancel == nil {
		return
	}
	c.cancel()
}

// SendStatus writes a status marker to the client, e.g. while draining.
func (c *Connection) SendStatus(status string) error {
	if c == nil {
		return nil
	}
	return c.writer.sendJSON(c.ctx, protocol.Status(status))
}

// Transcript returns the lines recorded on this connection so far.
func (c *Connection) Transcript() []registry.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]registry.Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

func (c *Connection) record(msgs []registry.Message) {
	c.mu.Lock()
	c.transcript = append(c.transcript, msgs...)
	c.mu.Unlock()
	c.session.AppendMessages(msgs...)
}
