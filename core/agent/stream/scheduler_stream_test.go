package stream

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"scheduler_server/core/agent"
	"scheduler_server/core/agent/entity"
	"scheduler_server/pkg/apperr"
)

func frames(s string) []string {
	parts := strings.Split(strings.TrimSuffix(s, "\n\n"), "\n\n")
	return parts
}

func TestModelStepEmitsTokenBeforeToolStart(t *testing.T) {
	f := NewFormatter()
	step := agent.Step{Kind: agent.StepModel, Message: entity.AssistantMessage("Looking that up.",
		entity.ToolCall{ID: "c1", Name: "list_events", Args: map[string]any{"start_time": "2024-06-10T00:00"}},
		entity.ToolCall{ID: "c2", Name: "search_web"},
	)}

	events := f.Events(step)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if _, ok := events[0].(TokenEvent); !ok {
		t.Fatalf("expected token first, got %T", events[0])
	}
	start, ok := events[2].(ToolStartEvent)
	if !ok || start.ID != "c2" || start.Args == nil {
		t.Errorf("unexpected second tool_start %+v", events[2])
	}

	if again := f.Events(agent.Step{Kind: agent.StepModel, Message: entity.AssistantMessage("", entity.ToolCall{ID: "c1", Name: "list_events"})}); len(again) != 0 {
		t.Errorf("expected repeated id to be suppressed, got %+v", again)
	}
}

func TestEmptyAssistantEntryEmitsNothing(t *testing.T) {
	if events := NewFormatter().Events(agent.Step{Kind: agent.StepModel, Message: entity.AssistantMessage("")}); len(events) != 0 {
		t.Errorf("expected no events, got %+v", events)
	}
}

func TestEncodeWireFormat(t *testing.T) {
	tests := []struct {
		name  string
		event any
		want  string
	}{
		{"token", TokenEvent{Type: TypeToken, Content: "Hi"}, `data: {"type":"token","content":"Hi"}` + "\n\n"},
		{"tool_start", ToolStartEvent{Type: TypeToolStart, ID: "c1", Name: "list_events", Args: map[string]any{}}, `data: {"type":"tool_start","id":"c1","name":"list_events","args":{}}` + "\n\n"},
		{"tool_end", ToolEndEvent{Type: TypeToolEnd, ToolCallID: "c1", Name: "list_events", Output: "No events found."}, `data: {"type":"tool_end","tool_call_id":"c1","name":"list_events","output":"No events found."}` + "\n\n"},
		{"error", ErrorFor(apperr.PlanTooLong(25)), `data: {"type":"error","message":"` + apperr.MsgPlanTooLong + `"}` + "\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
	if string(Done()) != "data: [DONE]\n\n" {
		t.Errorf("unexpected done frame %q", Done())
	}
}

func TestWriterSequence(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	w := NewWriter(bw)

	steps := []agent.Step{
		{Kind: agent.StepModel, Message: entity.AssistantMessage("", entity.ToolCall{ID: "c1", Name: "find_available_slots"})},
		{Kind: agent.StepTools, Results: []entity.Message{entity.ToolMessage("c1", "find_available_slots", "Found 2 slots")}},
		{Kind: agent.StepModel, Message: entity.AssistantMessage("You have two options.")},
	}
	for _, s := range steps {
		if err := w.Step(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := w.Done(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := frames(buf.String())
	want := []string{
		`data: {"type":"tool_start","id":"c1","name":"find_available_slots","args":{}}`,
		`data: {"type":"tool_end","tool_call_id":"c1","name":"find_available_slots","output":"Found 2 slots"}`,
		`data: {"type":"token","content":"You have two options."}`,
		`data: [DONE]`,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestErrorForHidesInternals(t *testing.T) {
	ev := ErrorFor(errors.New("pq: password authentication failed"))
	if strings.Contains(ev.Message, "password") {
		t.Errorf("expected generic message, got %q", ev.Message)
	}
}
