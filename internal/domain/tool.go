package domain

import "context"

// Tool is a function the AI backend can call during a turn. Execute returns
// any JSON-marshalable value; the registry wraps it into a ToolResult.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (any, error)
}
