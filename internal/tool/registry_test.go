package tool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/Individeveloper/StockPocket/internal/domain"
)

// stubTool is a minimal tool for testing the registry.
type stubTool struct {
	name   string
	result any
	err    error
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub: " + s.name }
func (s *stubTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return s.result, s.err
}

var _ domain.Tool = (*stubTool)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "test_tool", result: "ok"})

	got := reg.Get("test_tool")
	if got == nil {
		t.Fatal("expected to find registered tool")
	}
	if got.Name() != "test_tool" {
		t.Fatalf("expected 'test_tool', got %q", got.Name())
	}
	if reg.Get("nonexistent") != nil {
		t.Fatal("expected nil for unknown tool")
	}
}

func TestRegistry_ResolveSuccess(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "echo", result: "hello"})

	res := reg.Resolve(context.Background(), domain.ToolCall{ID: "call-1", Name: "echo"})
	if res.ID != "call-1" || res.Name != "echo" {
		t.Fatalf("result not correlated to call: %+v", res)
	}
	if res.Payload["content"] != "hello" {
		t.Fatalf("payload = %+v", res.Payload)
	}
}

func TestRegistry_ResolveKeepsMapPayloads(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "typed", result: map[string]any{"price": 9850.0}})

	res := reg.Resolve(context.Background(), domain.ToolCall{Name: "typed"})
	if res.Payload["price"] != 9850.0 {
		t.Fatalf("map payload not passed through: %+v", res.Payload)
	}
}

func TestRegistry_ResolveUnknownToolBecomesErrorPayload(t *testing.T) {
	reg := NewRegistry(testLogger())

	res := reg.Resolve(context.Background(), domain.ToolCall{ID: "c9", Name: "missing"})
	if res.ID != "c9" || res.Name != "missing" {
		t.Fatalf("result not correlated: %+v", res)
	}
	msg, ok := res.Payload["error"].(string)
	if !ok || !strings.Contains(msg, "unknown function") {
		t.Fatalf("payload = %+v", res.Payload)
	}
}

func TestRegistry_ResolveExecutionErrorBecomesErrorPayload(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "broken", err: errors.New("upstream exploded")})

	res := reg.Resolve(context.Background(), domain.ToolCall{Name: "broken"})
	if res.Payload["error"] != "upstream exploded" {
		t.Fatalf("payload = %+v", res.Payload)
	}
}

func TestRegistry_DefinitionsSorted(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "zeta"})
	reg.Register(&stubTool{name: "alpha"})
	reg.Register(&stubTool{name: "mid"})

	defs := reg.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, name := range want {
		if defs[i].Name != name {
			t.Fatalf("definitions[%d] = %q, want %q", i, defs[i].Name, name)
		}
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "dup", result: "v1"})
	reg.Register(&stubTool{name: "dup", result: "v2"})

	res := reg.Resolve(context.Background(), domain.ToolCall{Name: "dup"})
	if res.Payload["content"] != "v2" {
		t.Fatalf("expected overwritten tool result 'v2', got %+v", res.Payload)
	}
}

func TestToolParameters_WithRequired(t *testing.T) {
	params := ToolParameters(
		map[string]Param{
			"symbol": {Type: "string", Description: "The ticker"},
			"limit":  {Type: "integer", Description: "Row count"},
		},
		[]string{"symbol"},
	)

	if params["type"] != "object" {
		t.Fatal("expected type=object")
	}
	props := params["properties"].(map[string]any)
	if len(props) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(props))
	}
	symbolParam := props["symbol"].(map[string]any)
	if symbolParam["description"] != "The ticker" {
		t.Fatalf("got %q", symbolParam["description"])
	}
	required := params["required"].([]string)
	if len(required) != 1 || required[0] != "symbol" {
		t.Fatalf("unexpected required: %v", required)
	}
}

func TestToolParameters_Enum(t *testing.T) {
	params := ToolParameters(
		map[string]Param{
			"board": {Type: "string", Description: "Board", Enum: []string{"gainers", "losers"}},
		},
		nil,
	)
	if _, ok := params["required"]; ok {
		t.Fatal("should not have 'required' key when nil")
	}
	props := params["properties"].(map[string]any)
	board := props["board"].(map[string]any)
	enum := board["enum"].([]string)
	if len(enum) != 2 || enum[0] != "gainers" {
		t.Fatalf("enum = %v", enum)
	}
}

func TestArgsString(t *testing.T) {
	args := map[string]any{"key": "value", "num": 42.0}
	if got := ArgsString(args, "key"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
	if got := ArgsString(args, "missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := ArgsString(nil, "key"); got != "" {
		t.Fatalf("expected empty for nil args, got %q", got)
	}
	if got := ArgsString(args, "num"); got == "" {
		t.Fatal("expected non-empty for numeric value")
	}
}

func TestArgsInt(t *testing.T) {
	args := map[string]any{"limit": 7.0, "bad": "x"}
	if got := ArgsInt(args, "limit", 5); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := ArgsInt(args, "missing", 5); got != 5 {
		t.Fatalf("expected default 5, got %d", got)
	}
	if got := ArgsInt(args, "bad", 5); got != 5 {
		t.Fatalf("expected default for non-numeric, got %d", got)
	}
	if got := ArgsInt(nil, "limit", 3); got != 3 {
		t.Fatalf("expected default for nil args, got %d", got)
	}
}
