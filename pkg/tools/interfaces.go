package tools

import (
	"context"

	"github.com/zatuliveter/ai-da-dba/pkg/llms"
)

// ToolInfo describes one inspection operation as exposed to the model.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
}

type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Tool is one read-only inspection operation. Execute receives the already
// parsed argument object and the target database; it returns a JSON-shaped
// observation or an error, which the registry converts into an error
// payload.
type Tool interface {
	Info() ToolInfo
	Execute(ctx context.Context, args map[string]interface{}, database string) (string, error)
}

// Definition converts a ToolInfo into the JSON-schema-shaped tool
// definition the chat-completions API expects.
func (info ToolInfo) Definition() llms.ToolDefinition {
	properties := make(map[string]interface{}, len(info.Parameters))
	required := []string{}

	for _, p := range info.Parameters {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	return llms.ToolDefinition{
		Name:        info.Name,
		Description: info.Description,
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

func stringArg(args map[string]interface{}, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
