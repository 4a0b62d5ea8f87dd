package tools

import (
	"context"
	"fmt"
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/core/service/booking"
	"scheduler_server/pkg/apperr"
)

// BookingService is the part of booking.Engine the calendar tools drive.
type BookingService interface {
	Create(ctx context.Context, identity domain.Identity, req booking.CreateRequest) (*domain.Booking, error)
	Update(ctx context.Context, identity domain.Identity, req booking.UpdateRequest) (*domain.Booking, error)
	Delete(ctx context.Context, identity domain.Identity, eventID string) (*domain.Booking, error)
	List(ctx context.Context, identity domain.Identity, start, end string) ([]domain.BookingView, error)
}

// SlotSearcher is implemented by booking.SlotFinder.
type SlotSearcher interface {
	FindSlots(ctx context.Context, q booking.SlotQuery) ([]time.Time, error)
}

// viewFor renders b in the caller's timezone, falling back to UTC.
func viewFor(identity domain.Identity, b *domain.Booking) domain.BookingView {
	loc, err := identity.Location()
	if err != nil {
		loc = time.UTC
	}
	return b.View(loc)
}

// CreateEventTool books a meeting after the user confirmed the details.
type CreateEventTool struct {
	bookings BookingService
}

func NewCreateEventTool(bookings BookingService) *CreateEventTool {
	return &CreateEventTool{bookings: bookings}
}

func (t *CreateEventTool) Name() string           { return "create_event" }
func (t *CreateEventTool) Category() ToolCategory { return CategoryCalendar }

func (t *CreateEventTool) Description() string {
	return "Books a meeting on the company calendar after a final availability check. " +
		"Only call this after the user has explicitly confirmed the title and time. " +
		"Times are local to the user's timezone."
}

func (t *CreateEventTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "summary", Type: "string", Description: "Meeting title", Required: true},
		{Name: "start_time", Type: "string", Description: "Start in ISO-8601, e.g. 2024-06-10T10:00:00", Required: true},
		{Name: "end_time", Type: "string", Description: "End in ISO-8601, e.g. 2024-06-10T10:30:00", Required: true},
	}
}

func (t *CreateEventTool) Execute(ctx context.Context, identity domain.Identity, args map[string]any) (*ToolResult, error) {
	b, err := t.bookings.Create(ctx, identity, booking.CreateRequest{
		Summary: stringArg(args, "summary", ""),
		Start:   stringArg(args, "start_time", ""),
		End:     stringArg(args, "end_time", ""),
	})
	if err != nil {
		return nil, err
	}
	return &ToolResult{
		Success: true,
		Data:    viewFor(identity, b),
		Message: fmt.Sprintf("Event created successfully! Link: %s", b.Link),
	}, nil
}

// ListEventsTool lists the caller's own meetings.
type ListEventsTool struct {
	bookings BookingService
}

func NewListEventsTool(bookings BookingService) *ListEventsTool {
	return &ListEventsTool{bookings: bookings}
}

func (t *ListEventsTool) Name() string           { return "list_events" }
func (t *ListEventsTool) Category() ToolCategory { return CategoryCalendar }
func (t *ListEventsTool) RequiresTimezone() bool { return true }

func (t *ListEventsTool) Description() string {
	return "Lists the user's own meetings in their local timezone, optionally filtered by a start-time range. " +
		"Without a range it lists upcoming meetings. Use it to find an event_id before updating or deleting."
}

func (t *ListEventsTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "start_time", Type: "string", Description: "Only meetings starting at or after this local ISO-8601 time"},
		{Name: "end_time", Type: "string", Description: "Only meetings starting at or before this local ISO-8601 time"},
	}
}

func (t *ListEventsTool) Execute(ctx context.Context, identity domain.Identity, args map[string]any) (*ToolResult, error) {
	views, err := t.bookings.List(ctx, identity, stringArg(args, "start_time", ""), stringArg(args, "end_time", ""))
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return &ToolResult{Success: true, Message: "No events found."}, nil
	}
	return &ToolResult{
		Success: true,
		Data:    views,
		Message: fmt.Sprintf("Found %d event(s).", len(views)),
	}, nil
}

// DeleteEventTool cancels a meeting the caller owns.
type DeleteEventTool struct {
	bookings BookingService
}

func NewDeleteEventTool(bookings BookingService) *DeleteEventTool {
	return &DeleteEventTool{bookings: bookings}
}

func (t *DeleteEventTool) Name() string           { return "delete_event" }
func (t *DeleteEventTool) Category() ToolCategory { return CategoryCalendar }

func (t *DeleteEventTool) Description() string {
	return "Cancels a meeting by its event_id. The user must own the meeting."
}

func (t *DeleteEventTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "event_id", Type: "string", Description: "The event_id returned by list_events or create_event", Required: true},
	}
}

func (t *DeleteEventTool) Execute(ctx context.Context, identity domain.Identity, args map[string]any) (*ToolResult, error) {
	b, err := t.bookings.Delete(ctx, identity, stringArg(args, "event_id", ""))
	if err != nil {
		return nil, err
	}
	return &ToolResult{
		Success: true,
		Message: fmt.Sprintf("Event '%s' deleted successfully.", b.Title),
	}, nil
}

// UpdateEventTool reschedules or renames a meeting the caller owns.
type UpdateEventTool struct {
	bookings BookingService
}

func NewUpdateEventTool(bookings BookingService) *UpdateEventTool {
	return &UpdateEventTool{bookings: bookings}
}

func (t *UpdateEventTool) Name() string           { return "update_event" }
func (t *UpdateEventTool) Category() ToolCategory { return CategoryCalendar }

func (t *UpdateEventTool) Description() string {
	return "Reschedules or renames a meeting by its event_id. The user must own the meeting. " +
		"A new start time keeps the original duration; the new slot is checked for conflicts before saving."
}

func (t *UpdateEventTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "event_id", Type: "string", Description: "The event_id of the meeting", Required: true},
		{Name: "new_start_time", Type: "string", Description: "New local start time in ISO-8601"},
		{Name: "new_summary", Type: "string", Description: "New meeting title"},
	}
}

func (t *UpdateEventTool) Execute(ctx context.Context, identity domain.Identity, args map[string]any) (*ToolResult, error) {
	b, err := t.bookings.Update(ctx, identity, booking.UpdateRequest{
		EventID:    stringArg(args, "event_id", ""),
		NewStart:   optionalStringArg(args, "new_start_time"),
		NewSummary: optionalStringArg(args, "new_summary"),
	})
	if err != nil {
		return nil, err
	}
	view := viewFor(identity, b)
	return &ToolResult{
		Success: true,
		Data:    view,
		Message: fmt.Sprintf("Event '%s' updated successfully. It is now scheduled for %s.", view.Title, view.Start),
	}, nil
}

// FindSlotsTool lists open meeting starts for a day.
type FindSlotsTool struct {
	slots SlotSearcher
}

func NewFindSlotsTool(slots SlotSearcher) *FindSlotsTool {
	return &FindSlotsTool{slots: slots}
}

func (t *FindSlotsTool) Name() string           { return "find_available_slots" }
func (t *FindSlotsTool) Category() ToolCategory { return CategoryCalendar }

func (t *FindSlotsTool) Description() string {
	return "Finds open meeting start times on a date within company hours, converted to the user's timezone. " +
		"Accepts YYYY-MM-DD, 'today' or 'tomorrow'. Results are a snapshot; create_event re-checks before booking."
}

func (t *FindSlotsTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "date", Type: "string", Description: "Date as YYYY-MM-DD, or 'today' / 'tomorrow'", Required: true},
		{Name: "timezone", Type: "string", Description: "IANA timezone of the user; defaults to the saved timezone"},
		{Name: "duration_minutes", Type: "integer", Description: "Meeting length in minutes", Default: 30},
	}
}

func (t *FindSlotsTool) Execute(ctx context.Context, identity domain.Identity, args map[string]any) (*ToolResult, error) {
	tz := stringArg(args, "timezone", identity.Timezone)
	if tz == "" {
		return Fail(msgTimezoneRequired), nil
	}
	minutes, err := intArg(args, "duration_minutes", 30)
	if err != nil {
		return nil, apperr.InvalidInput("duration_minutes", err.Error())
	}
	if minutes <= 0 || minutes > 8*60 {
		return nil, apperr.InvalidInput("duration_minutes", "must be between 1 and 480")
	}

	date := stringArg(args, "date", "")
	slots, err := t.slots.FindSlots(ctx, booking.SlotQuery{
		Date:     date,
		Timezone: tz,
		Duration: time.Duration(minutes) * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return &ToolResult{Success: true, Message: fmt.Sprintf("No available slots on %s.", date)}, nil
	}
	return &ToolResult{
		Success: true,
		Data:    booking.FormatSlots(slots),
		Message: fmt.Sprintf("Found %d available %d-minute slot(s) on %s.", len(slots), minutes, date),
	}, nil
}
