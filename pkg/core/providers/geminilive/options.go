package geminilive

import (
	"log/slog"

	"github.com/vango-go/carelive/pkg/agent"
	"github.com/vango-go/carelive/pkg/tools"
)

// Option configures the Provider.
type Option func(*Provider)

// WithProfile sets the model, default voice, system instruction and tool
// selection. Default: the built-in customer care profile.
func WithProfile(p agent.Profile) Option {
	return func(pr *Provider) {
		pr.profile = p
	}
}

// WithTools sets the registry used to execute the model's function calls.
func WithTools(reg *tools.Registry) Option {
	return func(p *Provider) {
		p.tools = reg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithConnector replaces the genai client as the session source.
func WithConnector(c Connector) Option {
	return func(p *Provider) {
		p.connector = c
	}
}

// WithEventBuffer sets how many converted events may queue before the
// receive loop waits for the relay.
func WithEventBuffer(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.eventBuffer = n
		}
	}
}
