package geminilive

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/vango-go/carelive/pkg/gateway/live/backend"
)

// eventFromMessage flattens one server message into a backend event. Model
// text parts are dropped; the client only hears audio and reads
// transcriptions.
func eventFromMessage(msg *genai.LiveServerMessage) backend.Event {
	var ev backend.Event
	if msg == nil {
		return ev
	}

	if u := msg.SessionResumptionUpdate; u != nil {
		ev.SessionResumption = &backend.SessionResumption{NewHandle: u.NewHandle, Resumable: u.Resumable}
	}

	if sc := msg.ServerContent; sc != nil {
		if t := sc.InputTranscription; t != nil {
			ev.InputTranscription = &backend.Transcription{Text: t.Text, Finished: t.Finished}
		}
		if t := sc.OutputTranscription; t != nil {
			ev.OutputTranscription = &backend.Transcription{Text: t.Text, Finished: t.Finished}
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil {
					ev.InlineData = append(ev.InlineData, backend.Blob{
						MIMEType: part.InlineData.MIMEType,
						Data:     part.InlineData.Data,
					})
				}
				if part.FunctionCall != nil {
					ev.FunctionCalls = append(ev.FunctionCalls, functionCall(part.FunctionCall))
				}
				if part.FunctionResponse != nil {
					ev.FunctionResponses = append(ev.FunctionResponses, backend.FunctionResponse{
						ID:       part.FunctionResponse.ID,
						Name:     part.FunctionResponse.Name,
						Response: part.FunctionResponse.Response,
					})
				}
			}
		}
		ev.Interrupted = sc.Interrupted
		ev.TurnComplete = sc.TurnComplete
	}

	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc != nil {
				ev.FunctionCalls = append(ev.FunctionCalls, functionCall(fc))
			}
		}
	}
	return ev
}

func functionCall(fc *genai.FunctionCall) backend.FunctionCall {
	return backend.FunctionCall{ID: fc.ID, Name: fc.Name, Args: fc.Args}
}

func functionResponses(in []*genai.FunctionResponse) []backend.FunctionResponse {
	out := make([]backend.FunctionResponse, 0, len(in))
	for _, fr := range in {
		out = append(out, backend.FunctionResponse{ID: fr.ID, Name: fr.Name, Response: fr.Response})
	}
	return out
}

// convertSchema maps a JSON schema onto the subset genai.Schema expresses.
func convertSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	var enums []string
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}

	gs := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Enum:        enums,
		Items:       convertSchema(schema.Items),
		Required:    schema.Required,
	}
	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = convertSchema(prop)
		}
	}

	typ := schema.Type
	if typ == "" && len(schema.Types) > 0 {
		// jsonschema-go reports nullable fields as ["null", T].
		for _, t := range schema.Types {
			if t == "null" {
				gs.Nullable = genai.Ptr(true)
			} else if typ == "" {
				typ = t
			}
		}
	}
	switch typ {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}
