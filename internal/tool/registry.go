package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Individeveloper/StockPocket/internal/domain"
	"github.com/Individeveloper/StockPocket/internal/metrics"
)

// Registry holds the functions exposed to the AI backend and resolves its
// calls. Resolution never returns a Go error: failures are folded into the
// result payload so the backend can explain them instead of the turn dying.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.logger.Debug("registered tool", "name", t.Name())
}

func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Resolve executes one backend-requested call and always produces a result
// correlated by the call's id and name.
func (r *Registry) Resolve(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	result := domain.ToolResult{ID: call.ID, Name: call.Name}

	t := r.Get(call.Name)
	if t == nil {
		r.logger.Warn("backend requested unknown tool", "name", call.Name)
		result.Payload = map[string]any{"error": fmt.Sprintf("unknown function: %s", call.Name)}
		return result
	}

	start := time.Now()
	value, err := t.Execute(ctx, call.Arguments)
	metrics.ToolResolutions.Inc()
	metrics.ToolLatency.ObserveSince(start)

	if err != nil {
		r.logger.Warn("tool execution failed", "name", call.Name, "error", err)
		result.Payload = map[string]any{"error": err.Error()}
		return result
	}

	r.logger.Debug("tool resolved", "name", call.Name, "duration_ms", time.Since(start).Milliseconds())
	result.Payload = wrapPayload(value)
	return result
}

// wrapPayload shapes a tool return value into the JSON object the backend
// expects as a function response.
func wrapPayload(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"content": v}
}

// Definitions lists every registered tool, sorted by name so request
// bodies stay deterministic.
func (r *Registry) Definitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
	Enum        []string
}

// ToolParameters builds a JSON Schema "parameters" object for a tool.
func ToolParameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgsInt reads an integer argument, tolerating the float64 values JSON
// decoding produces.
func ArgsInt(args map[string]any, key string, def int) int {
	if args == nil {
		return def
	}
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}
