package backend

// Event is one decoded message from the live backend. Every field is optional
// and a single event may carry several of them at once; consumers check each
// field independently.
type Event struct {
	SessionResumption   *SessionResumption
	InputTranscription  *Transcription
	OutputTranscription *Transcription
	FunctionCalls       []FunctionCall
	FunctionResponses   []FunctionResponse
	InlineData          []Blob
	Interrupted         bool
	TurnComplete        bool
}

// SessionResumption reports a new handle the backend context can be resumed with.
type SessionResumption struct {
	NewHandle string
	Resumable bool
}

type Transcription struct {
	Text     string
	Finished bool
}

type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// Blob is raw media tagged with its MIME type.
type Blob struct {
	MIMEType string
	Data     []byte
}

// IsZero reports whether the event carries nothing the relay acts on.
func (e Event) IsZero() bool {
	return e.SessionResumption == nil &&
		e.InputTranscription == nil &&
		e.OutputTranscription == nil &&
		len(e.FunctionCalls) == 0 &&
		len(e.FunctionResponses) == 0 &&
		len(e.InlineData) == 0 &&
		!e.Interrupted &&
		!e.TurnComplete
}
