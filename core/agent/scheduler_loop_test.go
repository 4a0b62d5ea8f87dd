package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"scheduler_server/core/agent/entity"
	"scheduler_server/core/agent/tools"
	"scheduler_server/core/domain"
	"scheduler_server/pkg/apperr"

	"github.com/rs/zerolog"
)

// scriptedModel replays canned replies and records what it was sent.
type scriptedModel struct {
	replies []entity.Message
	errs    []error
	seen    []entity.Conversation
	repeat  bool
}

func (m *scriptedModel) Converse(ctx context.Context, conv entity.Conversation, defs []tools.ToolDefinition) (entity.Message, error) {
	i := len(m.seen)
	m.seen = append(m.seen, conv)
	if i < len(m.errs) && m.errs[i] != nil {
		return entity.Message{}, m.errs[i]
	}
	if m.repeat {
		return m.replies[0], nil
	}
	if i >= len(m.replies) {
		return entity.Message{}, errors.New("script exhausted")
	}
	return m.replies[i], nil
}

type recordingDispatcher struct {
	calls      []entity.ToolCall
	identities []domain.Identity
	ctxErrs    []error
	onDispatch func(call entity.ToolCall)
}

func (d *recordingDispatcher) Definitions() []tools.ToolDefinition { return nil }

func (d *recordingDispatcher) Dispatch(ctx context.Context, identity domain.Identity, call entity.ToolCall) *tools.ToolResult {
	d.calls = append(d.calls, call)
	d.identities = append(d.identities, identity)
	if d.onDispatch != nil {
		d.onDispatch(call)
	}
	d.ctxErrs = append(d.ctxErrs, ctx.Err())
	return &tools.ToolResult{Success: true, Message: "ok:" + call.ID}
}

var caller = domain.Identity{ID: "user-1", Email: "a@example.com", Timezone: "UTC"}

func startConversation() entity.Conversation {
	return entity.Conversation{entity.SystemMessage("sys"), entity.UserMessage("hello")}
}

func toolCall(id, name string) entity.ToolCall {
	return entity.ToolCall{ID: id, Name: name, Args: map[string]any{}}
}

func TestRunWithoutTools(t *testing.T) {
	model := &scriptedModel{replies: []entity.Message{entity.AssistantMessage("Hi there.")}}
	loop := NewLoop(model, &recordingDispatcher{}, 0, zerolog.Nop())

	var steps []Step
	res, err := loop.Run(context.Background(), caller, startConversation(), func(s Step) error {
		steps = append(steps, s)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateDone || res.Reply != "Hi there." || res.Steps != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(steps) != 1 || steps[0].Kind != StepModel {
		t.Errorf("expected a single model step, got %+v", steps)
	}
	if len(res.Conversation) != 3 {
		t.Errorf("expected 3 entries, got %d", len(res.Conversation))
	}
}

func TestRunAppendsResultsInRequestOrder(t *testing.T) {
	model := &scriptedModel{replies: []entity.Message{
		entity.AssistantMessage("Checking.", toolCall("c1", "list_events"), toolCall("c2", "delete_event"), toolCall("c3", "search_web")),
		entity.AssistantMessage("Done."),
	}}
	dispatcher := &recordingDispatcher{}
	loop := NewLoop(model, dispatcher, 0, zerolog.Nop())

	input := startConversation()
	res, err := loop.Run(context.Background(), caller, input, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(input) != 2 {
		t.Errorf("input conversation mutated: %d entries", len(input))
	}
	if res.Steps != 3 {
		t.Errorf("expected 3 steps, got %d", res.Steps)
	}
	second := model.seen[1]
	if len(second) != 6 {
		t.Fatalf("expected second model call to see 6 entries, got %d", len(second))
	}
	for i, id := range []string{"c1", "c2", "c3"} {
		m := second[3+i]
		if m.Role != entity.RoleTool || m.ToolCallID != id || m.Content != "ok:"+id {
			t.Errorf("entry %d: unexpected %+v", 3+i, m)
		}
	}
	for _, got := range dispatcher.identities {
		if got != caller {
			t.Errorf("expected identity %+v, got %+v", caller, got)
		}
	}
}

func TestRunStepCeiling(t *testing.T) {
	model := &scriptedModel{repeat: true, replies: []entity.Message{
		entity.AssistantMessage("", toolCall("c", "search_web")),
	}}
	loop := NewLoop(model, &recordingDispatcher{}, 4, zerolog.Nop())

	res, err := loop.Run(context.Background(), caller, startConversation(), nil)
	if !errors.Is(err, apperr.ErrPlanTooLong) {
		t.Fatalf("expected PlanTooLong, got %v", err)
	}
	if len(model.seen) != 2 || res.Steps != 4 {
		t.Errorf("expected 2 model calls in 4 steps, got %d calls, %d steps", len(model.seen), res.Steps)
	}
}

func TestRunModelUnavailable(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("503 overloaded")}}
	loop := NewLoop(model, &recordingDispatcher{}, 0, zerolog.Nop())

	_, err := loop.Run(context.Background(), caller, startConversation(), nil)
	if !errors.Is(err, apperr.ErrModelUnavailable) {
		t.Fatalf("expected ModelUnavailable, got %v", err)
	}
}

func TestRunStopsWhenObserverFails(t *testing.T) {
	model := &scriptedModel{replies: []entity.Message{
		entity.AssistantMessage("", toolCall("c1", "list_events")),
		entity.AssistantMessage("never"),
	}}
	dispatcher := &recordingDispatcher{}
	loop := NewLoop(model, dispatcher, 0, zerolog.Nop())

	gone := errors.New("client disconnected")
	_, err := loop.Run(context.Background(), caller, startConversation(), func(s Step) error {
		if s.Kind == StepTools {
			return gone
		}
		return nil
	})
	if !errors.Is(err, gone) || !errors.Is(err, ErrObserverFailed) {
		t.Fatalf("expected wrapped observer error, got %v", err)
	}
	if len(model.seen) != 1 {
		t.Errorf("expected no model call after observer failure, got %d calls", len(model.seen))
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := &scriptedModel{replies: []entity.Message{
		entity.AssistantMessage("", toolCall("c1", "create_event"), toolCall("c2", "list_events")),
		entity.AssistantMessage("never"),
	}}
	dispatcher := &recordingDispatcher{onDispatch: func(call entity.ToolCall) { cancel() }}
	loop := NewLoop(model, dispatcher, 0, zerolog.Nop())

	var toolStep Step
	res, err := loop.Run(ctx, caller, startConversation(), func(s Step) error {
		if s.Kind == StepTools {
			toolStep = s
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(dispatcher.calls) != 1 {
		t.Fatalf("expected only the first call to run, got %d", len(dispatcher.calls))
	}
	if dispatcher.ctxErrs[0] != nil {
		t.Errorf("expected running call to keep a live context, got %v", dispatcher.ctxErrs[0])
	}
	if len(toolStep.Results) != 2 || toolStep.Results[1].Content != CancelledResult {
		t.Errorf("expected second call answered as cancelled, got %+v", toolStep.Results)
	}
	if len(model.seen) != 1 {
		t.Errorf("expected no model call after cancellation, got %d", len(model.seen))
	}
	if last, _ := res.Conversation.Last(); last.ToolCallID != "c2" {
		t.Errorf("expected conversation to end with c2 result, got %+v", last)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateAwaitingModel:  "awaiting_model",
		StateExecutingTools: "executing_tools",
		StateDone:           "done",
		State(9):            "unknown",
	} {
		if got := fmt.Sprint(s); got != want {
			t.Errorf("State(%d) = %q, want %q", s, got, want)
		}
	}
}
