// Package geminilive runs conversations on the Gemini Live API. It implements
// the gateway's backend.Runner: client media is pumped into the live session,
// server messages come back as backend events, and function calls are
// answered from the tool registry.
package geminilive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/carelive/pkg/agent"
	"github.com/vango-go/carelive/pkg/gateway/live/backend"
	"github.com/vango-go/carelive/pkg/tools"
)

// Session is the subset of *genai.Session the provider drives.
type Session interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// Connector opens live sessions.
type Connector interface {
	Connect(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (Session, error)
}

// ClientConfig selects the Gemini API (API key) or Vertex AI (project and
// location) backend.
type ClientConfig struct {
	APIKey   string
	Project  string
	Location string
}

// NewClient creates a genai client for the configured backend.
func NewClient(ctx context.Context, cfg ClientConfig) (*genai.Client, error) {
	var cc genai.ClientConfig
	switch {
	case strings.TrimSpace(cfg.APIKey) != "":
		cc = genai.ClientConfig{APIKey: strings.TrimSpace(cfg.APIKey), Backend: genai.BackendGeminiAPI}
	case strings.TrimSpace(cfg.Project) != "":
		cc = genai.ClientConfig{
			Project:  strings.TrimSpace(cfg.Project),
			Location: strings.TrimSpace(cfg.Location),
			Backend:  genai.BackendVertexAI,
		}
	default:
		return nil, fmt.Errorf("gemini api key or gcp project is required")
	}
	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return client, nil
}

// ClientConnector opens sessions through a genai client.
type ClientConnector struct {
	Client *genai.Client
}

func (c ClientConnector) Connect(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (Session, error) {
	sess, err := c.Client.Live.Connect(ctx, model, cfg)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Provider implements backend.Runner on the Gemini Live API.
type Provider struct {
	connector   Connector
	profile     agent.Profile
	tools       *tools.Registry
	logger      *slog.Logger
	eventBuffer int
}

var _ backend.Runner = (*Provider)(nil)

// New creates a provider backed by client. Pass WithConnector instead of a
// client in tests.
func New(client *genai.Client, opts ...Option) (*Provider, error) {
	p := &Provider{
		logger:      slog.Default(),
		eventBuffer: 32,
	}
	if client != nil {
		p.connector = ClientConnector{Client: client}
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.connector == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	if p.profile.Model == "" {
		def, err := agent.Default()
		if err != nil {
			return nil, err
		}
		p.profile = p.profile.WithDefaults(def)
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini-live"
}

// Model returns the live model sessions are opened on.
func (p *Provider) Model() string {
	return p.profile.Model
}

// RunLive opens a live session for one client connection. The returned stream
// owns the session; closing it stops the request pump and the receive loop.
func (p *Provider) RunLive(ctx context.Context, req backend.RunRequest) (backend.EventStream, error) {
	if req.Queue == nil {
		return nil, fmt.Errorf("request queue is required")
	}
	cfg := p.connectConfig(req.Config)
	sess, err := p.connector.Connect(ctx, p.profile.Model, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", p.profile.Model, err)
	}

	logger := p.logger.With("app_name", req.AppName, "user_id", req.UserID, "session_id", req.SessionID)
	logger.Info("live session opened",
		"model", p.profile.Model,
		"resumed", req.Config.ResumptionHandle != "",
		"tools", len(cfg.Tools),
	)

	s := newEventStream(sess, p.tools, logger, p.eventBuffer)
	s.start(ctx, req.Queue)
	return s, nil
}

func (p *Provider) connectConfig(rc backend.RunConfig) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		SessionResumption: &genai.SessionResumptionConfig{Handle: rc.ResumptionHandle},
	}
	for _, m := range rc.ResponseModalities {
		cfg.ResponseModalities = append(cfg.ResponseModalities, genai.Modality(strings.ToUpper(m)))
	}

	voice := rc.Voice
	if voice == "" {
		voice = p.profile.Voice
	}
	if voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		}
	}
	if p.profile.Instruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.profile.Instruction, genai.RoleUser)
	}
	if rc.InputAudioTranscription {
		cfg.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if rc.OutputAudioTranscription {
		cfg.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if decls := functionDeclarations(p.tools); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

func functionDeclarations(reg *tools.Registry) []*genai.FunctionDeclaration {
	var decls []*genai.FunctionDeclaration
	for _, t := range reg.Tools() {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  convertSchema(t.Schema()),
		})
	}
	return decls
}
