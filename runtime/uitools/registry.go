// Package uitools hosts the registry of UI-generating tools exposed to the
// model. Each tool declares a JSON schema for its arguments and produces UI
// components plus an optional data model fragment. Registries are explicit
// instances constructed at startup and passed by reference into the
// components that need them; there is no package-level registry.
package uitools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/canvas/runtime/model"
	"goa.design/canvas/runtime/surface"
)

type (
	// Tool generates UI components and bound data from model-supplied
	// arguments. Implementations must be safe for concurrent use: one tool
	// instance may serve many runs.
	Tool interface {
		// Name returns the identifier presented to the model.
		Name() string

		// Description documents the tool for prompting purposes.
		Description() string

		// InputSchema returns the JSON Schema describing the tool arguments.
		InputSchema() map[string]any

		// Generate produces the tool's components and data fragment for the
		// given arguments. Components are returned in render order; the
		// fragment, when non-nil, keeps its own data model path.
		Generate(ctx context.Context, args map[string]any) (*Result, error)
	}

	// Result is the output of one tool invocation.
	Result struct {
		// Components are the UI components produced by the tool, in
		// production order.
		Components []surface.Component

		// Data is the data model fragment backing the components, or nil when
		// the tool produces no bound state.
		Data *surface.Fragment
	}

	// Registry indexes tools by name and validates model-supplied arguments
	// against each tool's compiled schema before execution. Safe for
	// concurrent use.
	Registry struct {
		mu    sync.RWMutex
		tools map[string]registration
	}

	registration struct {
		tool   Tool
		schema *jsonschema.Schema
	}

	// GenerateFunc adapts a function to the Tool interface via New.
	GenerateFunc func(ctx context.Context, args map[string]any) (*Result, error)

	funcTool struct {
		name        string
		description string
		schema      map[string]any
		fn          GenerateFunc
	}
)

// ErrInvalidArgs wraps schema validation failures for tool arguments. The
// loop treats these as recoverable: a synthetic failure result is fed back to
// the model.
var ErrInvalidArgs = errors.New("uitools: invalid tool arguments")

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registration)}
}

// Register adds a tool, compiling its input schema. Registering a duplicate
// name or an invalid schema is an error.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errors.New("uitools: tool is required")
	}
	name := t.Name()
	if name == "" {
		return errors.New("uitools: tool name is required")
	}
	schema, err := compileSchema(name, t.InputSchema())
	if err != nil {
		return fmt.Errorf("uitools: tool %q schema: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("uitools: tool %q already registered", name)
	}
	r.tools[name] = registration{tool: t, schema: schema}
	return nil
}

// Lookup returns the tool registered under name. The second return value
// reports whether the tool exists; absence is not an error at this level.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// ValidateArgs checks model-supplied arguments against the tool's compiled
// schema. Violations are wrapped in ErrInvalidArgs.
func (r *Registry) ValidateArgs(name string, args map[string]any) error {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("uitools: tool %q not registered", name)
	}
	if reg.schema == nil {
		return nil
	}
	var doc any = map[string]any{}
	if args != nil {
		doc = normalizeArgs(args)
	}
	if err := reg.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

// Definitions returns the tool schemas for provider function calling, sorted
// by name for deterministic prompts.
func (r *Registry) Definitions() []*model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]*model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name].tool
		defs = append(defs, &model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// New adapts a generate function to the Tool interface.
func New(name, description string, schema map[string]any, fn GenerateFunc) Tool {
	return &funcTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *funcTool) Name() string                { return t.name }
func (t *funcTool) Description() string         { return t.description }
func (t *funcTool) InputSchema() map[string]any { return t.schema }

func (t *funcTool) Generate(ctx context.Context, args map[string]any) (*Result, error) {
	return t.fn(ctx, args)
}

func compileSchema(name string, raw map[string]any) (*jsonschema.Schema, error) {
	if raw == nil {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("inmem://tools/%s.json", name)
	if err := compiler.AddResource(url, normalizeArgs(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// normalizeArgs converts integer values to float64 so documents built in Go
// validate the same way as documents decoded from JSON.
func normalizeArgs(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeArgs(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeArgs(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
