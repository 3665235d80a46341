package backend

import "context"

// RunConfig is the per-connection turn configuration handed to the backend.
type RunConfig struct {
	Voice                    string
	ResponseModalities       []string
	InputAudioTranscription  bool
	OutputAudioTranscription bool
	// ResumptionHandle resumes a previous backend context when non-empty.
	ResumptionHandle string
}

type RunRequest struct {
	AppName   string
	UserID    string
	SessionID string
	Queue     *RequestQueue
	Config    RunConfig
}

// Runner opens a live event stream for one connection.
type Runner interface {
	RunLive(ctx context.Context, req RunRequest) (EventStream, error)
}

// EventStream yields backend events in the order the backend emitted them.
// Next returns io.EOF once the backend has finished.
type EventStream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}
