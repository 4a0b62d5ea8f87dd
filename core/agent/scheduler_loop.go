// Package agent runs the model/tool turn loop.
package agent

import (
	"context"
	"errors"
	"fmt"

	"scheduler_server/core/agent/entity"
	"scheduler_server/core/agent/tools"
	"scheduler_server/core/domain"
	"scheduler_server/pkg/apperr"

	"github.com/rs/zerolog"
)

const DefaultMaxSteps = 25

// ErrObserverFailed wraps the error an Observer returned.
var ErrObserverFailed = errors.New("observer failed")

// CancelledResult is the tool output for calls skipped after cancellation.
const CancelledResult = "Error: cancelled before execution"

type State int

const (
	StateAwaitingModel State = iota
	StateExecutingTools
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

type StepKind int

const (
	StepModel StepKind = iota
	StepTools
)

// Step is published to the observer after every transition. A model step
// carries the assistant entry; a tools step carries one result per call.
type Step struct {
	Index   int
	Kind    StepKind
	Message entity.Message
	Results []entity.Message
}

// Observer receives each step. Returning an error stops the loop before
// the next model call.
type Observer func(Step) error

// Model produces the next assistant entry.
type Model interface {
	Converse(ctx context.Context, conv entity.Conversation, defs []tools.ToolDefinition) (entity.Message, error)
}

// Dispatcher runs tool calls. *tools.Registry implements it.
type Dispatcher interface {
	Definitions() []tools.ToolDefinition
	Dispatch(ctx context.Context, identity domain.Identity, call entity.ToolCall) *tools.ToolResult
}

type Result struct {
	Conversation entity.Conversation
	Reply        string
	Steps        int
	State        State
}

type Loop struct {
	model    Model
	tools    Dispatcher
	maxSteps int
	log      zerolog.Logger
}

func NewLoop(model Model, dispatcher Dispatcher, maxSteps int, log zerolog.Logger) *Loop {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Loop{
		model:    model,
		tools:    dispatcher,
		maxSteps: maxSteps,
		log:      log.With().Str("component", "agent_loop").Logger(),
	}
}

// Run drives conv to completion for identity. The returned Result is never
// nil and holds the conversation as far as it got, even on error.
func (l *Loop) Run(ctx context.Context, identity domain.Identity, conv entity.Conversation, observe Observer) (*Result, error) {
	if observe == nil {
		observe = func(Step) error { return nil }
	}
	res := &Result{Conversation: conv, State: StateAwaitingModel}
	defs := l.tools.Definitions()

	for {
		switch res.State {
		case StateAwaitingModel:
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if res.Steps >= l.maxSteps {
				l.log.Warn().Str("user_id", identity.ID).Int("steps", res.Steps).Msg("step ceiling reached")
				return res, apperr.PlanTooLong(l.maxSteps)
			}
			res.Steps++

			msg, err := l.model.Converse(ctx, res.Conversation, defs)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return res, ctxErr
				}
				l.log.Error().Err(err).Str("user_id", identity.ID).Int("step", res.Steps).Msg("model call failed")
				return res, apperr.ModelUnavailable(err)
			}
			msg.Role = entity.RoleAssistant
			res.Conversation = res.Conversation.Append(msg)

			if err := observe(Step{Index: res.Steps, Kind: StepModel, Message: msg}); err != nil {
				return res, fmt.Errorf("observe step %d: %w: %w", res.Steps, ErrObserverFailed, err)
			}
			if msg.HasToolCalls() {
				res.State = StateExecutingTools
			} else {
				res.Reply = msg.Content
				res.State = StateDone
			}

		case StateExecutingTools:
			if res.Steps >= l.maxSteps {
				return res, apperr.PlanTooLong(l.maxSteps)
			}
			res.Steps++

			last, _ := res.Conversation.Last()
			results := l.execute(ctx, identity, last.ToolCalls)
			res.Conversation = res.Conversation.Append(results...)

			if err := observe(Step{Index: res.Steps, Kind: StepTools, Results: results}); err != nil {
				return res, fmt.Errorf("observe step %d: %w: %w", res.Steps, ErrObserverFailed, err)
			}
			res.State = StateAwaitingModel

		case StateDone:
			l.log.Debug().Str("user_id", identity.ID).Int("steps", res.Steps).Msg("turn complete")
			return res, nil

		default:
			return res, errors.New("agent loop in unknown state")
		}
	}
}

// execute runs calls one at a time so results keep request order. Once ctx
// is cancelled the call in flight finishes on a detached context and the
// rest are answered with CancelledResult.
func (l *Loop) execute(ctx context.Context, identity domain.Identity, calls []entity.ToolCall) []entity.Message {
	detached := context.WithoutCancel(ctx)
	results := make([]entity.Message, 0, len(calls))
	for _, call := range calls {
		if ctx.Err() != nil {
			results = append(results, entity.ToolMessage(call.ID, call.Name, CancelledResult))
			continue
		}
		out := l.tools.Dispatch(detached, identity, call)
		results = append(results, entity.ToolMessage(call.ID, call.Name, out.Content()))
	}
	return results
}
