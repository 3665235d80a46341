package relay

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/vango-go/carelive/pkg/gateway/live/backend"
	"github.com/vango-go/carelive/pkg/gateway/live/protocol"
	"github.com/vango-go/carelive/pkg/gateway/live/registry"
)

const logPreviewRunes = 100

// translation is everything one backend event produced.
type translation struct {
	// out holds outbound wire messages in emission order.
	out []any
	// handle is set when the event carried a new resumable handle.
	handle string
	// completed holds the transcript lines recorded by a turn completion.
	completed []registry.Message
}

// translator turns backend events into wire messages and owns the state of
// the turn in progress. It is used from the downstream goroutine only.
type translator struct {
	logger *slog.Logger
	now    func() time.Time

	turn   turnState
	handle string
}

func newTranslator(logger *slog.Logger, now func() time.Time) *translator {
	return &translator{logger: logger, now: now}
}

// translate applies the rules in a fixed order; rules are independent and one
// event may trigger several of them.
func (t *translator) translate(ev backend.Event) translation {
	var tr translation

	if u := ev.SessionResumption; u != nil && u.Resumable && u.NewHandle != "" {
		t.handle = u.NewHandle
		tr.handle = u.NewHandle
		t.logger.Info("session handle updated", "handle", u.NewHandle)
		tr.out = append(tr.out, protocol.SessionID(u.NewHandle))
	}

	if in := ev.InputTranscription; in != nil && in.Text != "" {
		t.logger.Debug("input transcription", "text", preview(in.Text), "finished", in.Finished)
		t.turn.input = append(t.turn.input, in.Text)
		tr.out = append(tr.out, protocol.InputTranscription(in.Text, in.Finished))
	}

	if out := ev.OutputTranscription; out != nil && out.Text != "" {
		t.logger.Debug("output transcription", "text", preview(out.Text), "finished", out.Finished)
		t.turn.output = append(t.turn.output, out.Text)
		tr.out = append(tr.out, protocol.OutputTranscription(out.Text, out.Finished))
	}

	for _, fc := range ev.FunctionCalls {
		t.logger.Info("tool called", "tool", fc.Name)
		tr.out = append(tr.out, protocol.ToolCall(fc.Name, copyArgs(fc.Args)))
	}
	for _, fr := range ev.FunctionResponses {
		t.logger.Info("tool response", "tool", fr.Name, "response", preview(fmt.Sprint(fr.Response)))
	}

	for _, blob := range ev.InlineData {
		if len(blob.Data) == 0 {
			continue
		}
		tr.out = append(tr.out, protocol.Audio(base64.StdEncoding.EncodeToString(blob.Data)))
	}

	if ev.Interrupted && !t.turn.interrupted {
		t.logger.Info("interruption detected")
		t.turn.interrupted = true
		tr.out = append(tr.out, protocol.Interrupted())
	}

	if ev.TurnComplete {
		if !t.turn.interrupted {
			tr.out = append(tr.out, protocol.TurnComplete(t.handle))
		}
		ts := t.now().UTC()
		if line := dedupJoin(t.turn.input); line != "" {
			t.logger.Info("turn input", "text", line)
			tr.completed = append(tr.completed, registry.Message{Role: registry.RoleUser, Text: line, Timestamp: ts})
		}
		if line := dedupJoin(t.turn.output); line != "" {
			t.logger.Info("turn output", "text", line)
			tr.completed = append(tr.completed, registry.Message{Role: registry.RoleAssistant, Text: line, Timestamp: ts})
		}
		t.turn.reset()
	}

	return tr
}

func copyArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= logPreviewRunes {
		return s
	}
	return string(r[:logPreviewRunes]) + "..."
}
