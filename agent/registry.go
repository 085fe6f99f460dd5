package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/seaborne/helmsman/llmclient"
)

// ToolFunc is the function signature for tool execution. It receives decoded
// arguments and returns text for re-injection into the conversation; there is
// no structured tool-result channel.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool pairs a tool's machine-readable declaration with its handler.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON-schema-shaped
	Handler     ToolFunc
}

// maxToolResultLen bounds how much tool output is re-injected into the
// conversation on a single result.
const maxToolResultLen = 30000

// Registry maps tool names to executable capabilities. Lookup only; the Loop
// owns orchestration.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns the names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Declarations returns the wire declarations for the named subset of tools.
// A nil subset declares every registered tool. Unknown names in the subset
// are skipped.
func (r *Registry) Declarations(subset []string) []llmclient.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := subset
	if names == nil {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
	}

	defs := make([]llmclient.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, llmclient.NewFunctionDef(t.Name, t.Description, t.Parameters))
	}
	return defs
}

// Execute runs the named tool with decoded arguments and always returns
// text: handler errors and panics are converted to textual error results at
// this boundary so a failing tool never aborts the loop. The caller must have
// checked Has; executing an unregistered name returns an error text as well.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result string) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("unknown tool: %s", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = fmt.Sprintf("tool %s panicked: %v", name, rec)
		}
	}()

	out, err := t.Handler(ctx, args)
	if err != nil {
		return fmt.Sprintf("tool %s failed: %v", name, err)
	}
	if len(out) > maxToolResultLen {
		out = out[:maxToolResultLen] + fmt.Sprintf("\n[output truncated, %d characters removed]", len(out)-maxToolResultLen)
	}
	return out
}

// StringArg extracts a string argument from decoded tool arguments.
func StringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntArg extracts an integer argument from decoded tool arguments. JSON
// numbers decode as float64.
func IntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// BoolArg extracts a boolean argument from decoded tool arguments.
func BoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
