package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound message types.
const (
	TypeAudio      = "audio"
	TypeVideo      = "video"
	TypeText       = "text"
	TypePing       = "ping"
	TypeEndSession = "end_session"
)

// Outbound message types.
const (
	TypeStatus              = "status"
	TypeInputTranscription  = "input_transcription"
	TypeOutputTranscription = "output_transcription"
	TypeToolCall            = "tool_call"
	TypeInterrupted         = "interrupted"
	TypeTurnComplete        = "turn_complete"
	TypeSessionID           = "session_id"
	TypePong                = "pong"
)

const (
	StatusConnected = "connected"
	StatusDraining  = "draining"

	InterruptedMessage = "Response interrupted by user input"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// ClientMessage is one decoded inbound frame. Data holds the base64 payload
// for audio/video and the user text for text frames.
type ClientMessage struct {
	Type     string `json:"type"`
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, badRequest("invalid json frame", "")
	}
	msg.Type = strings.TrimSpace(msg.Type)
	switch msg.Type {
	case "":
		return ClientMessage{}, badRequest("missing type", "type")
	case TypeAudio, TypeVideo:
		if msg.Data == "" {
			return ClientMessage{}, badRequest(msg.Type+".data is required", "data")
		}
		return msg, nil
	case TypeText, TypePing, TypeEndSession:
		return msg, nil
	default:
		return ClientMessage{}, unsupported("unsupported message type", "type")
	}
}

type ServerStatus struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type ServerTranscription struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Finished bool   `json:"finished"`
}

type ToolCallData struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type ServerToolCall struct {
	Type string       `json:"type"`
	Data ToolCallData `json:"data"`
}

type ServerAudio struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type ServerInterrupted struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// ServerTurnComplete carries the current resumption handle, null before the
// backend has issued one.
type ServerTurnComplete struct {
	Type      string  `json:"type"`
	SessionID *string `json:"session_id"`
}

type ServerSessionID struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type ServerPong struct {
	Type string `json:"type"`
}

func Status(status string) ServerStatus {
	return ServerStatus{Type: TypeStatus, Status: status}
}

func InputTranscription(text string, finished bool) ServerTranscription {
	return ServerTranscription{Type: TypeInputTranscription, Text: text, Finished: finished}
}

func OutputTranscription(text string, finished bool) ServerTranscription {
	return ServerTranscription{Type: TypeOutputTranscription, Text: text, Finished: finished}
}

func ToolCall(name string, args map[string]any) ServerToolCall {
	if args == nil {
		args = map[string]any{}
	}
	return ServerToolCall{Type: TypeToolCall, Data: ToolCallData{Name: name, Args: args}}
}

func Audio(b64 string) ServerAudio {
	return ServerAudio{Type: TypeAudio, Data: b64}
}

func Interrupted() ServerInterrupted {
	return ServerInterrupted{Type: TypeInterrupted, Data: InterruptedMessage}
}

func TurnComplete(handle string) ServerTurnComplete {
	msg := ServerTurnComplete{Type: TypeTurnComplete}
	if handle != "" {
		msg.SessionID = &handle
	}
	return msg
}

func SessionID(handle string) ServerSessionID {
	return ServerSessionID{Type: TypeSessionID, Data: handle}
}

func Pong() ServerPong {
	return ServerPong{Type: TypePong}
}
