package entity

import "testing"

func TestAppendDoesNotAlias(t *testing.T) {
	base := Conversation{SystemMessage("sys"), UserMessage("hi")}
	a := base.Append(AssistantMessage("a"))
	b := base.Append(AssistantMessage("b"))

	if len(base) != 2 {
		t.Fatalf("expected base unchanged, got %d entries", len(base))
	}
	if a[2].Content != "a" || b[2].Content != "b" {
		t.Errorf("appends share storage: a=%q b=%q", a[2].Content, b[2].Content)
	}
}

func TestToolMessage(t *testing.T) {
	m := ToolMessage("call_1", "list_events", "[]")
	if m.Role != RoleTool || m.ToolCallID != "call_1" || m.Name != "list_events" {
		t.Errorf("unexpected tool message %+v", m)
	}
	if AssistantMessage("x").HasToolCalls() {
		t.Error("expected no tool calls")
	}
	last, ok := Conversation{UserMessage("u"), m}.Last()
	if !ok || last.ToolCallID != "call_1" {
		t.Errorf("unexpected last entry %+v", last)
	}
}
