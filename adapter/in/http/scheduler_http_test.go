package http

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scheduler_server/adapter/out/memstore"
	"scheduler_server/core/agent"
	"scheduler_server/core/agent/entity"
	"scheduler_server/core/domain"
	"scheduler_server/core/service/chat"
	"scheduler_server/infra/middleware"
	"scheduler_server/pkg/apperr"
	"scheduler_server/pkg/metrics"

	"github.com/emersion/go-ical"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const testSecret = "test-secret"

func bearer(t *testing.T, sub string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func newTestApp() (*fiber.App, fiber.Router) {
	profiles := memstore.NewProfileStore(&domain.Profile{ID: "u1", Email: "u1@example.com", Timezone: "Asia/Kolkata"})
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	app.Use(middleware.RequestID())
	api := app.Group("/api/v1", middleware.JWTAuth(testSecret, profiles))
	return app, api
}

type scriptedRunner struct {
	steps []agent.Step
	err   error
	seen  entity.Conversation
}

func (r *scriptedRunner) Run(ctx context.Context, identity domain.Identity, conv entity.Conversation, observe agent.Observer) (*agent.Result, error) {
	r.seen = conv
	for _, step := range r.steps {
		if err := observe(step); err != nil {
			return &agent.Result{Conversation: conv}, err
		}
	}
	if r.err != nil {
		return &agent.Result{Conversation: conv}, r.err
	}
	return &agent.Result{Conversation: conv, Steps: len(r.steps)}, nil
}

type staticPrompt string

func (p staticPrompt) Build(identity domain.Identity) string { return string(p) }

func chatApp(runner *scriptedRunner) *fiber.App {
	app, api := newTestApp()
	svc := chat.NewService(runner, staticPrompt("system"), zerolog.Nop())
	NewChatHandler(svc, zerolog.Nop()).Register(api)
	return app
}

func postChat(t *testing.T, app *fiber.App, body string, auth string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/chat/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

func TestChatStreamWritesEventsThenDone(t *testing.T) {
	runner := &scriptedRunner{steps: []agent.Step{
		{Kind: agent.StepModel, Message: entity.AssistantMessage("", entity.ToolCall{ID: "c1", Name: "list_events", Args: map[string]any{}})},
		{Kind: agent.StepTools, Results: []entity.Message{entity.ToolMessage("c1", "list_events", "No events found.")}},
		{Kind: agent.StepModel, Message: entity.AssistantMessage("You are free all day.")},
	}}
	app := chatApp(runner)

	status, body := postChat(t, app, `{"input":"what is on today?","history":[{"type":"human","content":"hi"}]}`, bearer(t, "u1"))
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	want := `data: {"type":"tool_start","id":"c1","name":"list_events","args":{}}` + "\n\n" +
		`data: {"type":"tool_end","tool_call_id":"c1","name":"list_events","output":"No events found."}` + "\n\n" +
		`data: {"type":"token","content":"You are free all day."}` + "\n\n" +
		"data: [DONE]\n\n"
	if body != want {
		t.Errorf("unexpected stream\nwant %q\ngot  %q", want, body)
	}
	if len(runner.seen) != 3 || runner.seen[1].Role != entity.RoleUser {
		t.Errorf("expected system, history and input in conversation, got %+v", runner.seen)
	}
}

func TestChatStreamLoopFailureBecomesErrorEvent(t *testing.T) {
	app := chatApp(&scriptedRunner{err: apperr.ModelUnavailable(errors.New("upstream 502"))})

	status, body := postChat(t, app, `{"input":"book me in"}`, bearer(t, "u1"))
	if status != 200 {
		t.Fatalf("expected 200 once streaming started, got %d", status)
	}
	if !strings.Contains(body, `"type":"error"`) || !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("expected error event then done, got %q", body)
	}
	if strings.Contains(body, "upstream 502") {
		t.Errorf("internal cause leaked to client: %q", body)
	}
}

func TestChatStreamRejectsBeforeStreaming(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		auth   bool
		status int
		code   string
	}{
		{"empty input", `{"input":"   "}`, true, 400, apperr.CodeValidationFailed},
		{"malformed body", `{"input":`, true, 400, apperr.CodeValidationFailed},
		{"no token", `{"input":"hello"}`, false, 401, apperr.CodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{}
			auth := ""
			if tt.auth {
				auth = bearer(t, "u1")
			}
			status, body := postChat(t, chatApp(runner), tt.body, auth)
			if status != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, status, body)
			}
			var resp middleware.ErrorResponse
			if err := json.Unmarshal([]byte(body), &resp); err != nil {
				t.Fatalf("expected JSON error body, got %q", body)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, resp.Error.Code)
			}
			if runner.seen != nil {
				t.Errorf("loop must not run for a rejected request")
			}
		})
	}
}

type fakeUpcoming struct {
	bookings []*domain.Booking
	err      error
}

func (f fakeUpcoming) Upcoming(ctx context.Context, identity domain.Identity) ([]*domain.Booking, error) {
	return f.bookings, f.err
}

func TestCalendarExport(t *testing.T) {
	start := time.Date(2024, 6, 10, 4, 30, 0, 0, time.UTC)
	lister := fakeUpcoming{bookings: []*domain.Booking{
		{ID: "rec-1", ExternalID: "evt-1", OwnerID: "u1", Title: "Design review", StartUTC: start, EndUTC: start.Add(time.Hour), Status: domain.BookingConfirmed, Link: "https://calendar.example.com/evt-1"},
		{ID: "rec-2", OwnerID: "u1", Title: "Standup", StartUTC: start.Add(24 * time.Hour), EndUTC: start.Add(24*time.Hour + 30*time.Minute), Status: domain.BookingConfirmed},
	}}
	app, api := newTestApp()
	NewCalendarHandler(lister, "Acme", zerolog.Nop()).Register(api)

	req := httptest.NewRequest("GET", "/api/v1/calendar/export.ics", nil)
	req.Header.Set("Authorization", bearer(t, "u1"))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("unexpected content type %q", ct)
	}

	cal, err := ical.NewDecoder(resp.Body).Decode()
	if err != nil {
		t.Fatalf("decode calendar: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if uid, _ := events[0].Props.Text(ical.PropUID); uid != "evt-1" {
		t.Errorf("expected external id as uid, got %q", uid)
	}
	if uid, _ := events[1].Props.Text(ical.PropUID); uid != "rec-2" {
		t.Errorf("expected record id as fallback uid, got %q", uid)
	}
	if summary, _ := events[0].Props.Text(ical.PropSummary); summary != "Design review" {
		t.Errorf("unexpected summary %q", summary)
	}
	got, err := events[0].DateTimeStart(time.UTC)
	if err != nil || !got.Equal(start) {
		t.Errorf("expected start %v, got %v (%v)", start, got, err)
	}
}

func TestCalendarUpcomingUsesCallerTimezone(t *testing.T) {
	start := time.Date(2024, 6, 10, 4, 30, 0, 0, time.UTC)
	lister := fakeUpcoming{bookings: []*domain.Booking{
		{ExternalID: "evt-1", Title: "Design review", StartUTC: start, EndUTC: start.Add(time.Hour), Status: domain.BookingConfirmed},
	}}
	app, api := newTestApp()
	NewCalendarHandler(lister, "Acme", zerolog.Nop()).Register(api)

	req := httptest.NewRequest("GET", "/api/v1/calendar/upcoming", nil)
	req.Header.Set("Authorization", bearer(t, "u1"))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Events []domain.BookingView `json:"events"`
			Count  int                  `json:"count"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data.Count != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Data.Events[0].Start != "2024-06-10T10:00:00+05:30" {
		t.Errorf("expected start in caller timezone, got %s", body.Data.Events[0].Start)
	}
}

func TestCalendarStoreFailure(t *testing.T) {
	app, api := newTestApp()
	NewCalendarHandler(fakeUpcoming{err: apperr.DatabaseError("list bookings", errors.New("timeout"))}, "Acme", zerolog.Nop()).Register(api)

	req := httptest.NewRequest("GET", "/api/v1/calendar/export.ics", nil)
	req.Header.Set("Authorization", bearer(t, "u1"))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	h := NewHealthHandler(metrics.NewLatencyRegistry(16))
	h.AddCheck("store", PingFunc(func(ctx context.Context) error { return nil }))
	app := fiber.New()
	h.Register(app)

	resp, _ := app.Test(httptest.NewRequest("GET", "/ready", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	h.AddCheck("search_cache", PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }))
	resp, _ = app.Test(httptest.NewRequest("GET", "/ready", nil))
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "not ready" || body.Checks["store"] != "healthy" || !strings.HasPrefix(body.Checks["search_cache"], "unhealthy") {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHealthToolsStats(t *testing.T) {
	latency := metrics.NewLatencyRegistry(16)
	latency.Record("create_event", 20*time.Millisecond, false)
	latency.Record("create_event", 40*time.Millisecond, true)
	h := NewHealthHandler(latency)
	h.AddBreaker("google_calendar", func() string { return "closed" })
	app := fiber.New()
	h.Register(app)

	resp, _ := app.Test(httptest.NewRequest("GET", "/health/tools", nil))
	var body struct {
		Tools map[string]map[string]any `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	stats, ok := body.Tools["create_event"]
	if !ok {
		t.Fatalf("expected create_event stats, got %+v", body.Tools)
	}
	if stats["calls"].(float64) != 2 || stats["failures"].(float64) != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/health", nil))
	var health map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&health)
	if health["status"] != "ok" {
		t.Errorf("unexpected health %+v", health)
	}
	if breakers, ok := health["circuit_breakers"].(map[string]any); !ok || breakers["google_calendar"] != "closed" {
		t.Errorf("expected breaker state, got %+v", health["circuit_breakers"])
	}
}
