// Package example wires a small demo application on top of the canvas
// runtime: a handful of UI tools, two specialist agents and a YAML config
// loader for the server binary under cmd/canvas.
package example

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"goa.design/canvas/runtime/surface"
	"goa.design/canvas/runtime/uitools"
)

// RegisterTools installs the demo UI tools into the registry.
func RegisterTools(reg *uitools.Registry) error {
	for _, t := range []uitools.Tool{
		newCheckboxFormTool(),
		newBarChartTool(),
		newTextBlockTool(),
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// newCheckboxFormTool builds a labelled checkbox group bound to a data model
// path, one checkbox per option.
func newCheckboxFormTool() uitools.Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Form title displayed above the checkboxes.",
			},
			"options": map[string]any{
				"type":        "array",
				"description": "Checkbox labels, one checkbox per entry.",
				"items":       map[string]any{"type": "string"},
				"minItems":    1,
			},
		},
		"required": []any{"title", "options"},
	}
	return uitools.New("checkbox_form", "Render a form of labelled checkboxes the user can toggle.", schema,
		func(_ context.Context, args map[string]any) (*uitools.Result, error) {
			title, _ := args["title"].(string)
			rawOptions, _ := args["options"].([]any)
			if len(rawOptions) == 0 {
				return nil, fmt.Errorf("checkbox_form: at least one option is required")
			}

			formID := "form-" + uuid.NewString()
			path := "/forms/" + formID
			contents := make(map[string]any, len(rawOptions))
			children := make([]string, 0, len(rawOptions)+1)

			labelID := formID + "-title"
			components := []surface.Component{{
				ID:    labelID,
				Kind:  "Text",
				Props: map[string]any{"text": title, "variant": "heading"},
			}}
			children = append(children, labelID)

			for i, raw := range rawOptions {
				label, _ := raw.(string)
				key := fmt.Sprintf("option%d", i)
				boxID := fmt.Sprintf("%s-box%d", formID, i)
				components = append(components, surface.Component{
					ID:   boxID,
					Kind: "Checkbox",
					Props: map[string]any{
						"label": label,
						"value": surface.PathRef(path + "/" + key),
					},
				})
				children = append(children, boxID)
				contents[key] = false
			}

			components = append(components, surface.Component{
				ID:    formID,
				Kind:  "Column",
				Props: map[string]any{"children": children},
			})
			return &uitools.Result{
				Components: components,
				Data:       &surface.Fragment{Path: path, Contents: contents},
			}, nil
		})
}

// newBarChartTool builds a bar chart whose series lives in the data model.
func newBarChartTool() uitools.Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Chart title.",
			},
			"series": map[string]any{
				"type":        "object",
				"description": "Label to numeric value mapping rendered as bars.",
				"additionalProperties": map[string]any{
					"type": "number",
				},
				"minProperties": 1,
			},
		},
		"required": []any{"title", "series"},
	}
	return uitools.New("bar_chart", "Render a bar chart from a label/value series.", schema,
		func(_ context.Context, args map[string]any) (*uitools.Result, error) {
			title, _ := args["title"].(string)
			series, _ := args["series"].(map[string]any)
			if len(series) == 0 {
				return nil, fmt.Errorf("bar_chart: series must not be empty")
			}

			chartID := "chart-" + uuid.NewString()
			path := "/charts/" + chartID
			return &uitools.Result{
				Components: []surface.Component{{
					ID:   chartID,
					Kind: "BarChart",
					Props: map[string]any{
						"title":  title,
						"series": surface.PathRef(path + "/series"),
					},
				}},
				Data: &surface.Fragment{
					Path:     path,
					Contents: map[string]any{"series": series},
				},
			}, nil
		})
}

// newTextBlockTool renders static text. It carries no bound data.
func newTextBlockTool() uitools.Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "Text content to display.",
			},
			"variant": map[string]any{
				"type": "string",
				"enum": []any{"body", "heading", "caption"},
			},
		},
		"required": []any{"text"},
	}
	return uitools.New("text_block", "Render a block of static text.", schema,
		func(_ context.Context, args map[string]any) (*uitools.Result, error) {
			text, _ := args["text"].(string)
			variant, _ := args["variant"].(string)
			if variant == "" {
				variant = "body"
			}
			return &uitools.Result{
				Components: []surface.Component{{
					ID:    "text-" + uuid.NewString(),
					Kind:  "Text",
					Props: map[string]any{"text": text, "variant": variant},
				}},
			}, nil
		})
}
