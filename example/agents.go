package example

import "goa.design/canvas/runtime/agents"

// RegisterAgents installs the demo specialists: a UI builder that drives the
// tool loop and a plain text explainer. The builder is the fallback.
func RegisterAgents(reg *agents.Registry) error {
	builder := agents.Agent{
		Name:        "builder",
		Description: "Builds interactive UI surfaces from natural language requests.",
		Keywords:    []string{"form", "chart", "dashboard", "checkbox", "show", "render"},
		SystemPrompt: "You build user interfaces by calling the provided tools. " +
			"Call one tool per component you need, then stop. " +
			"Never describe the UI in prose; produce it with tools.",
		UI: true,
	}
	explainer := agents.Agent{
		Name:         "explainer",
		Description:  "Answers questions in plain text without building UI.",
		Keywords:     []string{"explain", "why", "how", "what"},
		SystemPrompt: "You answer questions concisely in plain text.",
	}
	if err := reg.Register(builder); err != nil {
		return err
	}
	if err := reg.Register(explainer); err != nil {
		return err
	}
	return reg.SetDefault("builder")
}
