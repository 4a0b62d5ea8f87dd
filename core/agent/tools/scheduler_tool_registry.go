package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"scheduler_server/core/agent/entity"
	"scheduler_server/core/domain"
	"scheduler_server/pkg/apperr"
	"scheduler_server/pkg/metrics"

	"github.com/rs/zerolog"
)

const msgTimezoneRequired = "The user's timezone is not set. Ask the user for their IANA timezone (for example Asia/Kolkata) and call update_user_timezone before using this tool."

// Registry maps tool names to tools. Dispatch never returns an error: every
// failure becomes a ToolResult the model can read.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	latency *metrics.LatencyRegistry
	log     zerolog.Logger
}

func NewRegistry(latency *metrics.LatencyRegistry, log zerolog.Logger) *Registry {
	if latency == nil {
		latency = metrics.NewLatencyRegistry(500)
	}
	return &Registry{
		tools:   make(map[string]Tool),
		latency: latency,
		log:     log.With().Str("component", "tools").Logger(),
	}
}

func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

func (r *Registry) RegisterAll(tools ...Tool) {
	for _, tool := range tools {
		r.Register(tool)
	}
}

func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	return tool, nil
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

func (r *Registry) Definitions() []ToolDefinition {
	tools := r.List()
	defs := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, ConvertToDefinition(tool))
	}
	return defs
}

// Latency exposes per-tool timing for the health endpoint.
func (r *Registry) Latency() *metrics.LatencyRegistry {
	return r.latency
}

// Dispatch runs one model-requested call on behalf of identity.
func (r *Registry) Dispatch(ctx context.Context, identity domain.Identity, call entity.ToolCall) *ToolResult {
	start := time.Now()

	tool, err := r.Get(call.Name)
	if err != nil {
		r.log.Warn().Str("tool", call.Name).Str("tool_call_id", call.ID).Msg("model requested unknown tool")
		return Fail(err.Error())
	}

	args := make(map[string]any, len(call.Args))
	for k, v := range call.Args {
		args[k] = v
	}
	for _, key := range reservedArgs {
		if _, forged := args[key]; forged {
			r.log.Warn().Str("tool", call.Name).Str("arg", key).Msg("discarding model-supplied identity argument")
			delete(args, key)
		}
	}

	for _, param := range tool.Parameters() {
		if param.Required && !hasArg(args, param.Name) {
			return Fail(fmt.Sprintf("missing required parameter: %s", param.Name))
		}
	}

	if tb, ok := tool.(TimezoneBound); ok && tb.RequiresTimezone() && !identity.HasTimezone() {
		return Fail(msgTimezoneRequired)
	}

	result, err := r.execute(ctx, tool, identity, args)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		result = Fail(apperr.UserMessage(err))
		ev := r.log.Warn()
		if app := apperr.AsAppError(err); app.Status >= 500 {
			ev = r.log.Error()
		}
		ev.Err(err).Str("tool", call.Name).Str("user_id", identity.ID).Dur("elapsed", elapsed).Msg("tool failed")
	case result == nil:
		result = Fail("tool returned no result")
	default:
		r.log.Debug().Str("tool", call.Name).Bool("success", result.Success).Dur("elapsed", elapsed).Msg("tool finished")
	}

	r.latency.Record(call.Name, elapsed, !result.Success)
	return result
}

func (r *Registry) execute(ctx context.Context, tool Tool, identity domain.Identity, args map[string]any) (result *ToolResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Str("tool", tool.Name()).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("tool panicked")
			result, err = nil, apperr.Internal(fmt.Sprintf("tool %s crashed", tool.Name()))
		}
	}()
	return tool.Execute(ctx, identity, args)
}
