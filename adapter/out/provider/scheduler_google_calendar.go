// Package provider implements the external calendar gateway on Google Calendar.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"scheduler_server/core/port/out"
	"scheduler_server/pkg/httputil"
	"scheduler_server/pkg/resilience"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type GoogleCalendarConfig struct {
	CalendarID string
	// CredentialsJSON is a service account key with access to CalendarID.
	CredentialsJSON []byte
	HTTPClient      *http.Client
}

// GoogleCalendarGateway implements out.CalendarGateway against one shared calendar.
type GoogleCalendarGateway struct {
	svc        *calendar.Service
	calendarID string
	breaker    *resilience.Breaker
	log        zerolog.Logger
}

var _ out.CalendarGateway = (*GoogleCalendarGateway)(nil)

func NewGoogleCalendarGateway(ctx context.Context, cfg GoogleCalendarConfig, log zerolog.Logger) (*GoogleCalendarGateway, error) {
	creds, err := google.CredentialsFromJSON(ctx, cfg.CredentialsJSON, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}

	base := cfg.HTTPClient
	if base == nil {
		base = httputil.NewClient(httputil.CalendarClientConfig())
	}
	client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), creds.TokenSource)

	svc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return NewGoogleCalendarGatewayWithService(svc, cfg.CalendarID, log), nil
}

// NewGoogleCalendarGatewayWithService wraps an already configured service.
func NewGoogleCalendarGatewayWithService(svc *calendar.Service, calendarID string, log zerolog.Logger) *GoogleCalendarGateway {
	if calendarID == "" {
		calendarID = "primary"
	}
	log = log.With().Str("component", "google_calendar").Logger()

	cfg := resilience.DefaultBreakerConfig("google-calendar")
	cfg.IsClientError = isClientError
	return &GoogleCalendarGateway{
		svc:        svc,
		calendarID: calendarID,
		breaker:    resilience.NewBreaker(cfg, log),
		log:        log,
	}
}

func (g *GoogleCalendarGateway) CreateEvent(ctx context.Context, event *out.RemoteEvent) (*out.RemoteEvent, error) {
	created, err := resilience.Call(g.breaker, func() (*calendar.Event, error) {
		return g.svc.Events.Insert(g.calendarID, toGoogleEvent(event)).Context(ctx).Do()
	})
	if err != nil {
		return nil, translateError("insert event", err)
	}
	g.log.Debug().Str("event_id", created.Id).Msg("event created")
	return fromGoogleEvent(created)
}

func (g *GoogleCalendarGateway) GetEvent(ctx context.Context, externalID string) (*out.RemoteEvent, error) {
	ev, err := resilience.Call(g.breaker, func() (*calendar.Event, error) {
		return g.svc.Events.Get(g.calendarID, externalID).Context(ctx).Do()
	})
	if err != nil {
		return nil, translateError("get event", err)
	}
	return fromGoogleEvent(ev)
}

// UpdateEvent patches summary, description and times; other remote fields
// are left untouched.
func (g *GoogleCalendarGateway) UpdateEvent(ctx context.Context, externalID string, event *out.RemoteEvent) (*out.RemoteEvent, error) {
	updated, err := resilience.Call(g.breaker, func() (*calendar.Event, error) {
		return g.svc.Events.Patch(g.calendarID, externalID, toGoogleEvent(event)).Context(ctx).Do()
	})
	if err != nil {
		return nil, translateError("patch event", err)
	}
	return fromGoogleEvent(updated)
}

func (g *GoogleCalendarGateway) DeleteEvent(ctx context.Context, externalID string) error {
	err := g.breaker.Execute(func() error {
		return g.svc.Events.Delete(g.calendarID, externalID).Context(ctx).Do()
	})
	return translateError("delete event", err)
}

func (g *GoogleCalendarGateway) BreakerState() string {
	return g.breaker.State()
}

func toGoogleEvent(e *out.RemoteEvent) *calendar.Event {
	return &calendar.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Start:       &calendar.EventDateTime{DateTime: e.Start.Format(time.RFC3339), TimeZone: e.Timezone},
		End:         &calendar.EventDateTime{DateTime: e.End.Format(time.RFC3339), TimeZone: e.Timezone},
	}
}

func fromGoogleEvent(ev *calendar.Event) (*out.RemoteEvent, error) {
	result := &out.RemoteEvent{
		ID:          ev.Id,
		Summary:     ev.Summary,
		Description: ev.Description,
		Link:        ev.HtmlLink,
	}
	if ev.Start == nil || ev.End == nil {
		return result, nil
	}

	loc := time.UTC
	if ev.Start.TimeZone != "" {
		if l, err := time.LoadLocation(ev.Start.TimeZone); err == nil {
			loc = l
			result.Timezone = ev.Start.TimeZone
		}
	}
	start, err := parseEventTime(ev.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("parse start of event %s: %w", ev.Id, err)
	}
	end, err := parseEventTime(ev.End, loc)
	if err != nil {
		return nil, fmt.Errorf("parse end of event %s: %w", ev.Id, err)
	}
	result.Start, result.End = start, end
	return result, nil
}

func parseEventTime(dt *calendar.EventDateTime, loc *time.Location) (time.Time, error) {
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	}
	// All-day events carry a date only.
	return time.ParseInLocation("2006-01-02", dt.Date, loc)
}

func isClientError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusConflict, http.StatusGone, http.StatusPreconditionFailed:
		return true
	}
	return false
}

func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return fmt.Errorf("%s: %w", op, out.ErrRemoteNotFound)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
