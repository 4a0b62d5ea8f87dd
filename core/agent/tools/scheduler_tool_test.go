package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"scheduler_server/adapter/out/memstore"
	"scheduler_server/core/agent/entity"
	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"
	"scheduler_server/core/service/booking"
	"scheduler_server/pkg/apperr"
	"scheduler_server/pkg/metrics"

	"github.com/rs/zerolog"
)

// fakeBookings records what the calendar tools ask of the engine.
type fakeBookings struct {
	identity   domain.Identity
	createReq  booking.CreateRequest
	updateReq  booking.UpdateRequest
	listRange  [2]string
	err        error
	listResult []domain.BookingView
}

func (f *fakeBookings) Create(ctx context.Context, identity domain.Identity, req booking.CreateRequest) (*domain.Booking, error) {
	f.identity, f.createReq = identity, req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Booking{
		ExternalID: "evt-1",
		Title:      req.Summary,
		StartUTC:   time.Date(2024, 6, 10, 4, 30, 0, 0, time.UTC),
		EndUTC:     time.Date(2024, 6, 10, 5, 0, 0, 0, time.UTC),
		Link:       "https://calendar.example.com/evt-1",
		Status:     domain.BookingConfirmed,
	}, nil
}

func (f *fakeBookings) Update(ctx context.Context, identity domain.Identity, req booking.UpdateRequest) (*domain.Booking, error) {
	f.identity, f.updateReq = identity, req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Booking{ExternalID: req.EventID, Title: "Renamed", StartUTC: time.Date(2024, 6, 11, 9, 0, 0, 0, time.UTC), EndUTC: time.Date(2024, 6, 11, 9, 30, 0, 0, time.UTC)}, nil
}

func (f *fakeBookings) Delete(ctx context.Context, identity domain.Identity, eventID string) (*domain.Booking, error) {
	f.identity = identity
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Booking{ExternalID: eventID, Title: "Standup"}, nil
}

func (f *fakeBookings) List(ctx context.Context, identity domain.Identity, start, end string) ([]domain.BookingView, error) {
	f.identity, f.listRange = identity, [2]string{start, end}
	return f.listResult, f.err
}

type fakeSlots struct {
	query booking.SlotQuery
	slots []time.Time
}

func (f *fakeSlots) FindSlots(ctx context.Context, q booking.SlotQuery) ([]time.Time, error) {
	f.query = q
	return f.slots, nil
}

type fakeSearch struct {
	lastNum int
	web     []out.WebResult
	err     error
}

func (f *fakeSearch) SearchWeb(ctx context.Context, query string, num int) ([]out.WebResult, error) {
	f.lastNum = num
	return f.web, f.err
}

func (f *fakeSearch) SearchNews(ctx context.Context, query string, num int) ([]out.NewsResult, error) {
	f.lastNum = num
	return nil, f.err
}

type panicTool struct{}

func (panicTool) Name() string                { return "explode" }
func (panicTool) Description() string         { return "always panics" }
func (panicTool) Category() ToolCategory      { return CategorySearch }
func (panicTool) Parameters() []ParameterSpec { return nil }
func (panicTool) Execute(ctx context.Context, identity domain.Identity, args map[string]any) (*ToolResult, error) {
	panic("nil map write")
}

var (
	withTZ    = domain.Identity{ID: "u1", Email: "u1@example.com", Timezone: "Asia/Kolkata"}
	withoutTZ = domain.Identity{ID: "u2", Email: "u2@example.com"}
)

func newTestRegistry(tools ...Tool) *Registry {
	r := NewRegistry(metrics.NewLatencyRegistry(50), zerolog.Nop())
	r.RegisterAll(tools...)
	return r
}

func call(name string, args map[string]any) entity.ToolCall {
	return entity.ToolCall{ID: "call_1", Name: name, Args: args}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := newTestRegistry()
	res := r.Dispatch(context.Background(), withTZ, call("book_everything", nil))
	if res.Success {
		t.Fatal("expected failure")
	}
	if got := res.Content(); got != "Error: unknown tool: book_everything" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestDispatchMissingRequiredParameter(t *testing.T) {
	bookings := &fakeBookings{}
	r := newTestRegistry(NewCreateEventTool(bookings))

	res := r.Dispatch(context.Background(), withTZ, call("create_event", map[string]any{
		"start_time": "2024-06-10T10:00",
		"end_time":   "2024-06-10T10:30",
		"summary":    "   ",
	}))
	if res.Success || res.Error != "missing required parameter: summary" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDispatchDiscardsForgedIdentity(t *testing.T) {
	bookings := &fakeBookings{}
	r := newTestRegistry(NewCreateEventTool(bookings))

	res := r.Dispatch(context.Background(), withTZ, call("create_event", map[string]any{
		"summary":      "Sync",
		"start_time":   "2024-06-10T10:00",
		"end_time":     "2024-06-10T10:30",
		"current_user": map[string]any{"id": "attacker"},
		"identity":     "attacker",
	}))
	if !res.Success {
		t.Fatalf("unexpected failure %s", res.Error)
	}
	if bookings.identity.ID != "u1" {
		t.Errorf("expected server identity u1, got %q", bookings.identity.ID)
	}
	if !strings.Contains(res.Content(), "Link: https://calendar.example.com/evt-1") {
		t.Errorf("expected link in content, got %q", res.Content())
	}
	if !strings.Contains(res.Content(), `"start":"2024-06-10T10:00:00+05:30"`) {
		t.Errorf("expected caller-local view in content, got %q", res.Content())
	}
}

func TestDispatchRequiresTimezone(t *testing.T) {
	bookings := &fakeBookings{}
	r := newTestRegistry(NewListEventsTool(bookings))

	res := r.Dispatch(context.Background(), withoutTZ, call("list_events", nil))
	if res.Success || !strings.Contains(res.Error, "update_user_timezone") {
		t.Fatalf("expected timezone refusal, got %+v", res)
	}
	if bookings.identity.ID != "" {
		t.Error("expected list not to run")
	}

	res = r.Dispatch(context.Background(), withTZ, call("list_events", map[string]any{"start_time": "2024-06-10T00:00"}))
	if !res.Success || res.Message != "No events found." {
		t.Fatalf("unexpected result %+v", res)
	}
	if bookings.listRange[0] != "2024-06-10T00:00" {
		t.Errorf("expected start_time forwarded, got %v", bookings.listRange)
	}
}

func TestDispatchRendersErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"conflict", apperr.Conflict(out.ErrDuplicateSlot), "Error: " + apperr.MsgSlotTaken},
		{"not owner", apperr.Forbidden(""), "Error: " + apperr.MsgNotOwner},
		{"not found", apperr.NotFound("event"), "Error: " + apperr.MsgEventNotFound},
		{"database", apperr.DatabaseError("insert", errors.New("connection refused")), "Error: An unexpected error occurred."},
		{"raw", errors.New("boom"), "Error: An unexpected error occurred."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(NewDeleteEventTool(&fakeBookings{err: tt.err}))
			res := r.Dispatch(context.Background(), withTZ, call("delete_event", map[string]any{"event_id": "evt-1"}))
			if got := res.Content(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	r := newTestRegistry(panicTool{})
	res := r.Dispatch(context.Background(), withTZ, call("explode", nil))
	if res.Success || !strings.HasPrefix(res.Content(), "Error: ") {
		t.Fatalf("expected rendered error, got %+v", res)
	}
	if stats := r.Latency().Stats("explode"); stats.Failures != 1 {
		t.Errorf("expected failure recorded, got %+v", stats)
	}
}

func TestDefinitions(t *testing.T) {
	bookings := &fakeBookings{}
	r := newTestRegistry(
		NewUpdateEventTool(bookings),
		NewCreateEventTool(bookings),
		NewFindSlotsTool(&fakeSlots{}),
	)
	defs := r.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	if defs[0].Name != "create_event" || defs[2].Name != "update_event" {
		t.Errorf("expected definitions sorted by name, got %s..%s", defs[0].Name, defs[2].Name)
	}
	create := defs[0].Parameters
	if create.Type != "object" || len(create.Required) != 3 {
		t.Errorf("unexpected create_event schema %+v", create)
	}
	if _, ok := defs[2].Parameters.Properties["new_summary"]; !ok {
		t.Error("expected new_summary property")
	}
}

func TestUpdateEventOptionalArgs(t *testing.T) {
	bookings := &fakeBookings{}
	r := newTestRegistry(NewUpdateEventTool(bookings))

	res := r.Dispatch(context.Background(), withTZ, call("update_event", map[string]any{
		"event_id":       "evt-9",
		"new_summary":    "Renamed",
		"new_start_time": nil,
	}))
	if !res.Success {
		t.Fatalf("unexpected failure %s", res.Error)
	}
	if bookings.updateReq.NewStart != nil || bookings.updateReq.NewSummary == nil {
		t.Errorf("unexpected update request %+v", bookings.updateReq)
	}
	if !strings.Contains(res.Message, "2024-06-11T14:30:00+05:30") {
		t.Errorf("expected local start in message, got %q", res.Message)
	}
}

func TestFindSlotsTool(t *testing.T) {
	ist, _ := time.LoadLocation("Asia/Kolkata")
	slots := &fakeSlots{slots: []time.Time{time.Date(2024, 6, 10, 10, 0, 0, 0, ist)}}
	r := newTestRegistry(NewFindSlotsTool(slots))
	ctx := context.Background()

	res := r.Dispatch(ctx, withTZ, call("find_available_slots", map[string]any{"date": "2024-06-10", "duration_minutes": float64(45)}))
	if !res.Success {
		t.Fatalf("unexpected failure %s", res.Error)
	}
	if slots.query.Timezone != "Asia/Kolkata" || slots.query.Duration != 45*time.Minute {
		t.Errorf("unexpected query %+v", slots.query)
	}
	if !strings.Contains(res.Content(), "2024-06-10T10:00:00+05:30") {
		t.Errorf("expected slot in content, got %q", res.Content())
	}

	res = r.Dispatch(ctx, withoutTZ, call("find_available_slots", map[string]any{"date": "today", "timezone": "Europe/Berlin"}))
	if !res.Success || slots.query.Timezone != "Europe/Berlin" || slots.query.Duration != 30*time.Minute {
		t.Errorf("expected explicit timezone and default duration, got %+v / %+v", res, slots.query)
	}

	res = r.Dispatch(ctx, withoutTZ, call("find_available_slots", map[string]any{"date": "today"}))
	if res.Success {
		t.Error("expected refusal without any timezone")
	}

	res = r.Dispatch(ctx, withTZ, call("find_available_slots", map[string]any{"date": "today", "duration_minutes": 0.5}))
	if res.Success {
		t.Error("expected fractional duration to be rejected")
	}
}

func TestUpdateTimezoneTool(t *testing.T) {
	profiles := memstore.NewProfileStore(&domain.Profile{ID: "u2", Email: "u2@example.com"})
	r := newTestRegistry(NewUpdateTimezoneTool(profiles))
	ctx := context.Background()

	res := r.Dispatch(ctx, withoutTZ, call("update_user_timezone", map[string]any{"timezone": "Mars/Olympus"}))
	if res.Success || !strings.Contains(res.Error, "Invalid timezone") {
		t.Fatalf("expected validation error, got %+v", res)
	}

	res = r.Dispatch(ctx, withoutTZ, call("update_user_timezone", map[string]any{"timezone": "Europe/Berlin"}))
	if !res.Success {
		t.Fatalf("unexpected failure %s", res.Error)
	}
	p, _ := profiles.GetProfile(ctx, "u2")
	if p.Timezone != "Europe/Berlin" {
		t.Errorf("expected timezone saved, got %q", p.Timezone)
	}
}

func TestSearchTools(t *testing.T) {
	search := &fakeSearch{web: []out.WebResult{{Title: "Go", Link: "https://go.dev", Snippet: "The Go language"}}}
	r := newTestRegistry(NewSearchWebTool(search), NewSearchNewsTool(search))
	ctx := context.Background()

	res := r.Dispatch(ctx, withTZ, call("search_web", map[string]any{"query": "golang", "num_results": float64(50)}))
	if !res.Success || search.lastNum != 10 {
		t.Fatalf("expected capped num 10, got %d (%+v)", search.lastNum, res)
	}

	res = r.Dispatch(ctx, withTZ, call("search_news", map[string]any{"query": "golang"}))
	if res.Content() != "No results found." || search.lastNum != 5 {
		t.Errorf("unexpected news result %q num=%d", res.Content(), search.lastNum)
	}

	search.err = errors.New("dial tcp: timeout")
	res = r.Dispatch(ctx, withTZ, call("search_web", map[string]any{"query": "golang"}))
	if res.Success || !strings.Contains(res.Error, "search service is unavailable") {
		t.Errorf("expected remote error text, got %+v", res)
	}
}
