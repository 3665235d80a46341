// Package tools holds the function tools the live model may call. Argument
// schemas are derived from Go structs; results are JSON objects.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

type Tool interface {
	Name() string
	Description() string
	Schema() *jsonschema.Schema
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
}

// FuncTool adapts a typed function to Tool. Args are decoded from the model's
// argument object into A; the result is re-encoded as a JSON object.
type FuncTool[A any] struct {
	name        string
	description string
	schema      *jsonschema.Schema
	fn          func(ctx context.Context, args A) (any, error)
}

var _ Tool = (*FuncTool[struct{}])(nil)

func NewFuncTool[A any](name, description string, fn func(ctx context.Context, args A) (any, error)) (*FuncTool[A], error) {
	if name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %s: function is required", name)
	}
	schema, err := jsonschema.For[A](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("tool %s: derive schema: %w", name, err)
	}
	return &FuncTool[A]{name: name, description: description, schema: schema, fn: fn}, nil
}

func MustNewFuncTool[A any](name, description string, fn func(ctx context.Context, args A) (any, error)) *FuncTool[A] {
	tool, err := NewFuncTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return tool
}

func (t *FuncTool[A]) Name() string               { return t.name }
func (t *FuncTool[A]) Description() string        { return t.description }
func (t *FuncTool[A]) Schema() *jsonschema.Schema { return t.schema }

func (t *FuncTool[A]) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	var in A
	if len(args) > 0 {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode arguments: %w", err)
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
	}
	out, err := t.fn(ctx, in)
	if err != nil {
		return nil, err
	}
	return toObject(out)
}

// toObject normalizes a result to plain JSON values. Non-object results are
// wrapped as {"result": v}.
func toObject(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{"result": v}, nil
	}
	return out, nil
}
