package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultAppName = "tata-neu-customer-care"

type Config struct {
	AppName string
	Addr    string

	// Browser origins allowed to open /ws connections. Empty allows any origin.
	CORSAllowedOrigins map[string]struct{}

	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	// Relay limits.
	WSWriteTimeout    time.Duration
	WSMaxMessageBytes int64
	RequestQueueSize  int
	// IdleTimeout ends a connection after this long without a client frame.
	// Zero keeps connections open until either side closes.
	IdleTimeout time.Duration
	ForwardText bool

	// Per-client WebSocket limits. Zero disables each limit.
	ConnectRPS              float64
	ConnectBurst            int
	MaxConnectionsPerClient int
	TrustForwardedFor       bool

	// Session registry bounds.
	SessionCapacity int
	SessionTTL      time.Duration

	ToolTimeout time.Duration

	// Gemini credentials: an API key selects the Gemini API, otherwise the
	// project and location select Vertex AI.
	GeminiAPIKey string
	GCPProject   string
	GCPLocation  string

	// Optional Postgres warehouse behind the care tools.
	DatabaseURL string

	// Agent profile file; empty uses the embedded default.
	AgentProfile string
	Model        string
	Voice        string

	LogLevel string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		AppName:            envOr("CARELIVE_APP_NAME", DefaultAppName),
		Addr:               listenAddr(),
		CORSAllowedOrigins: make(map[string]struct{}),

		ReadHeaderTimeout:   envDurationOr("CARELIVE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("CARELIVE_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("CARELIVE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),

		WSWriteTimeout:    envDurationOr("CARELIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSMaxMessageBytes: envInt64Or("CARELIVE_WS_MAX_MESSAGE_BYTES", 4<<20),
		RequestQueueSize:  envIntOr("CARELIVE_REQUEST_QUEUE_SIZE", 64),
		IdleTimeout:       envDurationOr("CARELIVE_IDLE_TIMEOUT", 0),
		ForwardText:       envBoolOr("CARELIVE_FORWARD_TEXT", false),

		ConnectRPS:              envFloat64Or("CARELIVE_CONNECT_RPS", 1),
		ConnectBurst:            envIntOr("CARELIVE_CONNECT_BURST", 10),
		MaxConnectionsPerClient: envIntOr("CARELIVE_MAX_CONNECTIONS_PER_CLIENT", 8),
		TrustForwardedFor:       envBoolOr("CARELIVE_TRUST_FORWARDED_FOR", false),

		SessionCapacity: envIntOr("CARELIVE_SESSION_CAPACITY", 10000),
		SessionTTL:      envDurationOr("CARELIVE_SESSION_TTL", 2*time.Hour),

		ToolTimeout: envDurationOr("CARELIVE_TOOL_TIMEOUT", 20*time.Second),

		GeminiAPIKey: envOr("CARELIVE_GEMINI_API_KEY", envOr("GEMINI_API_KEY", envOr("GOOGLE_API_KEY", ""))),
		GCPProject:   envOr("CARELIVE_GCP_PROJECT", envOr("GOOGLE_CLOUD_PROJECT", "")),
		GCPLocation:  envOr("CARELIVE_GCP_LOCATION", envOr("GOOGLE_CLOUD_LOCATION", "us-central1")),

		DatabaseURL: envOr("CARELIVE_DATABASE_URL", envOr("DATABASE_URL", "")),

		AgentProfile: envOr("CARELIVE_AGENT_PROFILE", ""),
		Model:        envOr("CARELIVE_MODEL", ""),
		Voice:        envOr("CARELIVE_VOICE", ""),

		LogLevel: strings.ToLower(envOr("CARELIVE_LOG_LEVEL", "info")),
	}

	for _, origin := range splitCSV(os.Getenv("CARELIVE_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CARELIVE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout < 0 {
		return Config{}, fmt.Errorf("CARELIVE_READ_TIMEOUT must be >= 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("CARELIVE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("CARELIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("CARELIVE_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.RequestQueueSize <= 0 {
		return Config{}, fmt.Errorf("CARELIVE_REQUEST_QUEUE_SIZE must be > 0")
	}
	if cfg.IdleTimeout < 0 {
		return Config{}, fmt.Errorf("CARELIVE_IDLE_TIMEOUT must be >= 0")
	}
	if cfg.ConnectRPS < 0 {
		return Config{}, fmt.Errorf("CARELIVE_CONNECT_RPS must be >= 0")
	}
	if cfg.ConnectBurst < 0 {
		return Config{}, fmt.Errorf("CARELIVE_CONNECT_BURST must be >= 0")
	}
	if cfg.ConnectRPS > 0 && cfg.ConnectBurst == 0 {
		return Config{}, fmt.Errorf("CARELIVE_CONNECT_BURST must be > 0 when CARELIVE_CONNECT_RPS is set")
	}
	if cfg.MaxConnectionsPerClient < 0 {
		return Config{}, fmt.Errorf("CARELIVE_MAX_CONNECTIONS_PER_CLIENT must be >= 0")
	}
	if cfg.SessionCapacity < 0 {
		return Config{}, fmt.Errorf("CARELIVE_SESSION_CAPACITY must be >= 0")
	}
	if cfg.SessionTTL < 0 {
		return Config{}, fmt.Errorf("CARELIVE_SESSION_TTL must be >= 0")
	}
	if cfg.ToolTimeout <= 0 {
		return Config{}, fmt.Errorf("CARELIVE_TOOL_TIMEOUT must be > 0")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("CARELIVE_LOG_LEVEL must be one of debug, info, warn, error")
	}

	return cfg, nil
}

// RequireBackend reports whether Gemini credentials are configured. Only the
// relay needs them; migrations do not.
func (c Config) RequireBackend() error {
	if c.GeminiAPIKey == "" && c.GCPProject == "" {
		return fmt.Errorf("CARELIVE_GEMINI_API_KEY or CARELIVE_GCP_PROJECT must be set")
	}
	return nil
}

// listenAddr prefers CARELIVE_ADDR, then HOST and PORT as set by most
// container platforms.
func listenAddr() string {
	if addr := envOr("CARELIVE_ADDR", ""); addr != "" {
		return addr
	}
	if port := envOr("PORT", ""); port != "" {
		return envOr("HOST", "") + ":" + port
	}
	return ":8080"
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
