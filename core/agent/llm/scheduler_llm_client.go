// Package llm talks to an OpenAI-compatible chat completions API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"scheduler_server/core/agent/entity"
	"scheduler_server/core/agent/tools"
	"scheduler_server/pkg/httputil"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o-mini"

// RawArgsKey holds the unparsed argument string when the model emits
// arguments that are not a JSON object.
const RawArgsKey = "_raw"

var ErrEmptyCompletion = errors.New("model returned no choices")

type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewClientWithConfig(cfg ClientConfig) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = cfg.HTTPClient
	if oc.HTTPClient == nil {
		oc.HTTPClient = httputil.NewClient(httputil.OpenAIClientConfig(cfg.Timeout))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	// The request field is omitempty, so a literal zero would fall back to
	// the API default of 1.
	temperature := float32(cfg.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

// Converse sends the conversation and returns the assistant's next entry.
func (c *Client) Converse(ctx context.Context, conv entity.Conversation, defs []tools.ToolDefinition) (entity.Message, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(conv),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if len(defs) > 0 {
		req.Tools = toOpenAITools(defs)
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return entity.Message{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return entity.Message{}, ErrEmptyCompletion
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

func toOpenAITools(defs []tools.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(defs))
	for i, def := range defs {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		}
	}
	return out
}

func toOpenAIMessages(conv entity.Conversation) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(conv))
	for _, m := range conv {
		msg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case entity.RoleTool:
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.Name
		case entity.RoleAssistant:
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Args)
				if err != nil || tc.Args == nil {
					args = []byte("{}")
				}
				if raw, ok := tc.Args[RawArgsKey].(string); ok && len(tc.Args) == 1 {
					args = []byte(raw)
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) entity.Message {
	msg := entity.Message{
		Role:    entity.RoleAssistant,
		Content: m.Content,
	}
	for _, tc := range m.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		msg.ToolCalls = append(msg.ToolCalls, entity.ToolCall{
			ID:   id,
			Name: tc.Function.Name,
			Args: decodeArgs(tc.Function.Arguments),
		})
	}
	return msg
}

func decodeArgs(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{RawArgsKey: raw}
	}
	return args
}
