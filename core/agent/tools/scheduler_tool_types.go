package tools

import (
	"context"
	"sort"
	"strings"

	"scheduler_server/core/domain"

	"github.com/goccy/go-json"
)

// Tool is an operation the model may invoke. The caller's identity is
// supplied by the server on every call and never read from args.
type Tool interface {
	Name() string
	Description() string
	Category() ToolCategory
	Parameters() []ParameterSpec
	Execute(ctx context.Context, identity domain.Identity, args map[string]any) (*ToolResult, error)
}

// TimezoneBound is implemented by tools that cannot run until the caller
// has saved a timezone.
type TimezoneBound interface {
	RequiresTimezone() bool
}

type ToolCategory string

const (
	CategoryCalendar ToolCategory = "calendar"
	CategoryProfile  ToolCategory = "profile"
	CategorySearch   ToolCategory = "search"
)

type ParameterSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number, integer, boolean
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Fail builds an unsuccessful result carrying a model-readable message.
func Fail(message string) *ToolResult {
	return &ToolResult{Success: false, Error: message}
}

// Content renders the result as the text of a tool message.
func (r *ToolResult) Content() string {
	if r == nil {
		return "Error: tool returned no result"
	}
	if !r.Success {
		return "Error: " + r.Error
	}
	if r.Data == nil {
		return r.Message
	}
	payload, err := json.Marshal(r.Data)
	if err != nil {
		return r.Message
	}
	if r.Message == "" {
		return string(payload)
	}
	return r.Message + "\n" + string(payload)
}

// ToolDefinition is the function-calling schema handed to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    ToolCategory   `json:"-"`
	Parameters  ToolParameters `json:"parameters"`
}

type ToolParameters struct {
	Type       string                       `json:"type"`
	Properties map[string]ParameterProperty `json:"properties"`
	Required   []string                     `json:"required"`
}

type ParameterProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

func ConvertToDefinition(t Tool) ToolDefinition {
	properties := make(map[string]ParameterProperty)
	required := []string{}

	for _, p := range t.Parameters() {
		properties[p.Name] = ParameterProperty{
			Type:        p.Type,
			Description: p.Description,
			Enum:        p.Enum,
			Default:     p.Default,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)

	return ToolDefinition{
		Name:        t.Name(),
		Description: strings.TrimSpace(t.Description()),
		Category:    t.Category(),
		Parameters: ToolParameters{
			Type:       "object",
			Properties: properties,
			Required:   required,
		},
	}
}
