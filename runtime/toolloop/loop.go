// Package toolloop implements the bounded tool-calling loop that turns model
// tool invocations into a single coherent UI surface. The loop follows the
// ReAct pattern: invoke the model with tool schemas, execute the requested
// tools, feed results back, and repeat until the model stops requesting
// tools or the iteration cap is reached.
//
// Tool-level failures never abort the loop: an unknown or failing tool is
// converted to a synthetic failure result the model can recover from.
// Reaching the iteration cap is a completion mode, not an error; whatever was
// accumulated so far is finalized and returned.
package toolloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"goa.design/canvas/runtime/model"
	"goa.design/canvas/runtime/surface"
	"goa.design/canvas/runtime/uitools"
)

// State names a loop state. The machine is
// AwaitingModel → ExecutingTools → AwaitingModel → … → Done | MaxIterations.
type State string

const (
	// StateAwaitingModel waits for the next model response.
	StateAwaitingModel State = "awaiting_model"
	// StateExecutingTools executes the tool calls of one model step.
	StateExecutingTools State = "executing_tools"
	// StateDone is terminal: the model stopped requesting tools.
	StateDone State = "done"
	// StateMaxIterations is terminal: the iteration cap was reached.
	StateMaxIterations State = "max_iterations"
)

// Outcome reports how the loop terminated.
type Outcome string

const (
	// OutcomeDone means the model produced a final response.
	OutcomeDone Outcome = "done"
	// OutcomeMaxIterations means the iteration cap cut the loop short. The
	// accumulated results are still usable.
	OutcomeMaxIterations Outcome = "max_iterations"
)

// DefaultMaxIterations caps loop iterations when Options.MaxIterations is
// unset. The cap is a bounded-latency safety valve, not a correctness limit.
const DefaultMaxIterations = 5

// DefaultContainerKind is the component kind synthesized to wrap multiple
// root-level components under a single render root.
const DefaultContainerKind = "Column"

// ErrNoComponents is returned when the loop terminates without a single
// accumulated component: no usable surface was built.
var ErrNoComponents = errors.New("toolloop: no components generated")

// Tool failure codes carried on ToolError.
const (
	// ToolErrorNotFound means the model requested a tool the registry does not
	// hold.
	ToolErrorNotFound = "tool_not_found"
	// ToolErrorInvalidArgs means the arguments failed schema validation.
	ToolErrorInvalidArgs = "invalid_arguments"
	// ToolErrorExecution means the tool itself returned an error.
	ToolErrorExecution = "execution_failed"
)

// ToolError is a recoverable tool failure. It never aborts the loop; the
// controller folds it into a synthetic tool result the model can react to.
type ToolError struct {
	// Code classifies the failure.
	Code string
	// Tool is the requested tool name.
	Tool string
	// Err is the underlying failure.
	Err error
}

// Error implements error.
func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: tool %q: %v", e.Code, e.Tool, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *ToolError) Unwrap() error { return e.Err }

type (
	// Record captures one tool invocation of the loop history. Records are
	// never mutated after creation; the history is append-only and feeds the
	// synthetic results returned to the model.
	Record struct {
		// Tool is the requested tool name.
		Tool string
		// Args are the model-supplied arguments.
		Args map[string]any
		// Components are the components the tool produced. Nil on failure.
		Components []surface.Component
		// Data is the data model fragment the tool produced, if any.
		Data *surface.Fragment
		// Error is the failure description, or "" on success.
		Error string
	}

	// Result is the finalized output of a loop run. It is immutable: the
	// controller hands it to the run once and never touches it again.
	Result struct {
		// Components are all accumulated components in production order,
		// including the synthesized container when one was needed.
		Components []surface.Component
		// Fragments are the tool data fragments in production order, one per
		// tool-generated fragment. Fragments keep their own paths; the loop
		// never merges fragments from different tools into one path.
		Fragments []surface.Fragment
		// RootID is the designated render root: the single component's id, or
		// the synthesized container's id.
		RootID string
		// Records is the append-only tool invocation history.
		Records []Record
		// Outcome reports whether the model finished or the cap was hit.
		Outcome Outcome
		// FinalText is the text content of the model's last response, if any.
		FinalText string
	}

	// Options tunes the controller. The zero value applies defaults.
	Options struct {
		// MaxIterations caps the number of tool-execution steps. Defaults to
		// DefaultMaxIterations.
		MaxIterations int
		// ContainerKind overrides the synthesized container component kind.
		// Defaults to DefaultContainerKind.
		ContainerKind string
	}

	// Controller drives the loop against a model client and a tool registry.
	// Controllers are stateless across runs and safe for concurrent use; all
	// per-run accumulation lives on the stack of Run.
	Controller struct {
		client    model.Client
		tools     *uitools.Registry
		max       int
		container string
	}
)

// New builds a controller. The model client and tool registry are required.
func New(client model.Client, tools *uitools.Registry, opts Options) (*Controller, error) {
	if client == nil {
		return nil, errors.New("toolloop: model client is required")
	}
	if tools == nil {
		return nil, errors.New("toolloop: tool registry is required")
	}
	max := opts.MaxIterations
	if max <= 0 {
		max = DefaultMaxIterations
	}
	container := opts.ContainerKind
	if container == "" {
		container = DefaultContainerKind
	}
	return &Controller{client: client, tools: tools, max: max, container: container}, nil
}

// Run executes the loop over the given conversation and finalizes the
// accumulated surface material. The conversation is not mutated; the loop
// works on its own extended copy. Run returns ErrNoComponents when the loop
// ends without a single component.
func (c *Controller) Run(ctx context.Context, conversation []*model.Message) (*Result, error) {
	messages := make([]*model.Message, len(conversation))
	copy(messages, conversation)

	var (
		components []surface.Component
		fragments  []surface.Fragment
		records    []Record
		finalText  string
		outcome    = OutcomeMaxIterations
	)

	for iteration := 0; iteration < c.max; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := c.client.Complete(ctx, &model.Request{
			Messages: messages,
			Tools:    c.tools.Definitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("toolloop: model invocation: %w", err)
		}
		if text := resp.Text(); text != "" {
			finalText = text
		}
		if len(resp.ToolCalls) == 0 {
			outcome = OutcomeDone
			break
		}

		assistant, results := c.executeStep(ctx, resp, &components, &fragments, &records)
		messages = append(messages, assistant, results)
		iteration++
	}

	root, all, err := c.resolveRoot(components)
	if err != nil {
		return nil, err
	}
	return &Result{
		Components: all,
		Fragments:  fragments,
		RootID:     root,
		Records:    records,
		Outcome:    outcome,
		FinalText:  finalText,
	}, nil
}

// executeStep runs every tool call of one model step, appending to the
// accumulators, and returns the assistant turn plus the tool-result turn to
// extend the conversation with.
func (c *Controller) executeStep(
	ctx context.Context,
	resp *model.Response,
	components *[]surface.Component,
	fragments *[]surface.Fragment,
	records *[]Record,
) (assistant *model.Message, results *model.Message) {
	assistant = &model.Message{Role: model.ConversationRoleAssistant}
	if text := resp.Text(); text != "" {
		assistant.Parts = append(assistant.Parts, model.TextPart{Text: text})
	}
	results = &model.Message{Role: model.ConversationRoleUser}

	for _, call := range resp.ToolCalls {
		callID := call.ID
		if callID == "" {
			callID = uuid.NewString()
		}
		assistant.Parts = append(assistant.Parts, model.ToolUsePart{
			ID:    callID,
			Name:  call.Name,
			Input: call.Payload,
		})

		args := decodeArgs(call.Payload)
		record := Record{Tool: call.Name, Args: args}

		out, terr := c.invoke(ctx, call.Name, args)
		if terr != nil {
			record.Error = terr.Error()
			*records = append(*records, record)
			results.Parts = append(results.Parts, model.ToolResultPart{
				ToolUseID: callID,
				Content: map[string]any{
					"status":  "error",
					"code":    terr.Code,
					"message": terr.Err.Error(),
				},
				IsError: true,
			})
			continue
		}

		record.Components = out.Components
		record.Data = out.Data
		*records = append(*records, record)
		*components = append(*components, out.Components...)
		if out.Data != nil {
			*fragments = append(*fragments, *out.Data)
		}
		results.Parts = append(results.Parts, model.ToolResultPart{
			ToolUseID: callID,
			Content: map[string]any{
				"status":     "ok",
				"components": componentIDs(out.Components),
			},
		})
	}
	return assistant, results
}

// invoke resolves, validates and executes one tool call. All failure modes
// collapse to a ToolError the caller converts into a synthetic result.
func (c *Controller) invoke(ctx context.Context, name string, args map[string]any) (*uitools.Result, *ToolError) {
	tool, ok := c.tools.Lookup(name)
	if !ok {
		return nil, &ToolError{Code: ToolErrorNotFound, Tool: name, Err: errors.New("no such tool")}
	}
	if err := c.tools.ValidateArgs(name, args); err != nil {
		return nil, &ToolError{Code: ToolErrorInvalidArgs, Tool: name, Err: err}
	}
	out, err := tool.Generate(ctx, args)
	if err != nil {
		return nil, &ToolError{Code: ToolErrorExecution, Tool: name, Err: err}
	}
	if out == nil {
		return &uitools.Result{}, nil
	}
	return out, nil
}

// resolveRoot applies the root designation policy: a single component is its
// own root; multiple components get a synthesized container whose children
// list the accumulated ids in production order.
func (c *Controller) resolveRoot(components []surface.Component) (string, []surface.Component, error) {
	switch len(components) {
	case 0:
		return "", nil, ErrNoComponents
	case 1:
		return components[0].ID, components, nil
	}
	ids := componentIDs(components)
	container := surface.Component{
		ID:    "root-" + uuid.NewString(),
		Kind:  c.container,
		Props: map[string]any{"children": ids},
	}
	return container.ID, append(components, container), nil
}

func componentIDs(components []surface.Component) []string {
	ids := make([]string, 0, len(components))
	for _, c := range components {
		ids = append(ids, c.ID)
	}
	return ids
}

// decodeArgs coerces the model-supplied payload into a string-keyed map.
// Non-map payloads are round-tripped through JSON; anything that still does
// not decode becomes an empty argument set and fails schema validation
// downstream when the schema requires fields.
func decodeArgs(payload any) map[string]any {
	switch v := payload.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}
