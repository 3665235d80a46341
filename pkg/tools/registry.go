package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

type Options struct {
	// Timeout bounds each call. Zero means no limit beyond the caller's ctx.
	Timeout time.Duration
	Logger  *slog.Logger
}

type Registry struct {
	byName  map[string]Tool
	timeout time.Duration
	logger  *slog.Logger
}

func NewRegistry(opts Options, tools ...Tool) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := &Registry{byName: make(map[string]Tool, len(tools)), timeout: opts.Timeout, logger: logger}
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		registry.byName[tool.Name()] = tool
	}
	return registry
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[strings.TrimSpace(name)]
	return ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the registered tools ordered by name.
func (r *Registry) Tools() []Tool {
	names := r.Names()
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name])
	}
	return out
}

// Select keeps only the named tools. An empty list keeps everything. Names
// with no registered tool are returned so the caller can report them.
func (r *Registry) Select(names []string) (*Registry, []string) {
	if len(names) == 0 {
		return r, nil
	}
	out := &Registry{byName: make(map[string]Tool, len(names)), timeout: r.timeout, logger: r.logger}
	var missing []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		tool, ok := r.byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		out.byName[name] = tool
	}
	return out, missing
}

// Call runs a tool and always returns a response object. Failures, panics and
// unknown names come back as {"error": "..."} so the model can recover.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) map[string]any {
	if r == nil {
		return errorResult(fmt.Errorf("tools are not configured"))
	}
	tool, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return errorResult(fmt.Errorf("unknown tool %q", name))
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := r.invoke(ctx, tool, args)
	if err != nil {
		r.logger.Warn("tool call failed", "tool", name, "duration", time.Since(start), "error", err)
		return errorResult(err)
	}
	r.logger.Info("tool call", "tool", name, "duration", time.Since(start))
	return out
}

func (r *Registry) invoke(ctx context.Context, tool Tool, args map[string]any) (out map[string]any, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("tool %s panic: %v", tool.Name(), v)
		}
	}()
	return tool.Call(ctx, args)
}

func errorResult(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}
