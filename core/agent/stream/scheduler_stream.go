// Package stream turns agent loop steps into server-sent events.
package stream

import (
	"bytes"
	"io"

	"scheduler_server/core/agent"
	"scheduler_server/pkg/apperr"

	"github.com/goccy/go-json"
)

const (
	TypeToken     = "token"
	TypeToolStart = "tool_start"
	TypeToolEnd   = "tool_end"
	TypeError     = "error"
)

var doneFrame = []byte("data: [DONE]\n\n")

type TokenEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type ToolStartEvent struct {
	Type string         `json:"type"`
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type ToolEndEvent struct {
	Type       string `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Output     string `json:"output"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Formatter maps steps to events. It remembers tool-call ids so a call is
// announced once even if an entry is replayed.
type Formatter struct {
	seen map[string]struct{}
}

func NewFormatter() *Formatter {
	return &Formatter{seen: make(map[string]struct{})}
}

func (f *Formatter) Events(step agent.Step) []any {
	var events []any
	switch step.Kind {
	case agent.StepModel:
		if step.Message.Content != "" {
			events = append(events, TokenEvent{Type: TypeToken, Content: step.Message.Content})
		}
		for _, call := range step.Message.ToolCalls {
			if _, dup := f.seen[call.ID]; dup {
				continue
			}
			f.seen[call.ID] = struct{}{}
			args := call.Args
			if args == nil {
				args = map[string]any{}
			}
			events = append(events, ToolStartEvent{Type: TypeToolStart, ID: call.ID, Name: call.Name, Args: args})
		}
	case agent.StepTools:
		for _, res := range step.Results {
			events = append(events, ToolEndEvent{Type: TypeToolEnd, ToolCallID: res.ToolCallID, Name: res.Name, Output: res.Content})
		}
	}
	return events
}

// ErrorFor renders a loop failure with a message safe for the client.
func ErrorFor(err error) ErrorEvent {
	return ErrorEvent{Type: TypeError, Message: apperr.UserMessage(err)}
}

// Encode frames one event as an SSE data line.
func Encode(event any) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// Done is the terminal frame.
func Done() []byte {
	return append([]byte(nil), doneFrame...)
}

// FlushWriter is satisfied by *bufio.Writer.
type FlushWriter interface {
	io.Writer
	Flush() error
}

// Writer writes framed events to a stream and flushes after each step.
type Writer struct {
	out FlushWriter
	fmt *Formatter
}

func NewWriter(out FlushWriter) *Writer {
	return &Writer{out: out, fmt: NewFormatter()}
}

// Step implements agent.Observer.
func (w *Writer) Step(step agent.Step) error {
	events := w.fmt.Events(step)
	if len(events) == 0 {
		return nil
	}
	for _, ev := range events {
		if err := w.write(ev); err != nil {
			return err
		}
	}
	return w.out.Flush()
}

func (w *Writer) Error(err error) error {
	if werr := w.write(ErrorFor(err)); werr != nil {
		return werr
	}
	return w.out.Flush()
}

func (w *Writer) Done() error {
	if _, err := w.out.Write(doneFrame); err != nil {
		return err
	}
	return w.out.Flush()
}

func (w *Writer) write(ev any) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}
	_, err = w.out.Write(frame)
	return err
}
