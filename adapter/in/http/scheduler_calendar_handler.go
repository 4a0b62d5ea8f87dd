package http

import (
	"bytes"
	"context"
	"net/url"
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/pkg/apperr"

	"github.com/emersion/go-ical"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// UpcomingLister returns the caller's confirmed future bookings.
// *booking.Engine implements it.
type UpcomingLister interface {
	Upcoming(ctx context.Context, identity domain.Identity) ([]*domain.Booking, error)
}

type CalendarHandler struct {
	bookings UpcomingLister
	prodID   string
	now      func() time.Time
	log      zerolog.Logger
}

func NewCalendarHandler(bookings UpcomingLister, companyName string, log zerolog.Logger) *CalendarHandler {
	return &CalendarHandler{
		bookings: bookings,
		prodID:   "-//" + companyName + "//Scheduler//EN",
		now:      time.Now,
		log:      log.With().Str("handler", "calendar").Logger(),
	}
}

func (h *CalendarHandler) Register(router fiber.Router) {
	cal := router.Group("/calendar")
	cal.Get("/upcoming", h.Upcoming)
	cal.Get("/export.ics", h.Export)
}

// Upcoming lists the caller's bookings rendered in their timezone.
func (h *CalendarHandler) Upcoming(c *fiber.Ctx) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}
	loc, err := identity.Location()
	if err != nil {
		loc = time.UTC
	}

	bookings, err := h.bookings.Upcoming(c.UserContext(), identity)
	if err != nil {
		return err
	}
	views := make([]domain.BookingView, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, b.View(loc))
	}
	return SuccessResponse(c, fiber.Map{"events": views, "count": len(views)})
}

// Export serves the caller's bookings as an iCalendar feed.
func (h *CalendarHandler) Export(c *fiber.Ctx) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}

	bookings, err := h.bookings.Upcoming(c.UserContext(), identity)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(BuildCalendar(bookings, h.prodID, h.now())); err != nil {
		h.log.Error().Err(err).Str("user_id", identity.ID).Msg("encode calendar")
		return apperr.InternalWithError(err)
	}

	c.Set(fiber.HeaderContentType, "text/calendar; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="bookings.ics"`)
	return c.Send(buf.Bytes())
}

// BuildCalendar renders bookings as VEVENTs in UTC.
func BuildCalendar(bookings []*domain.Booking, prodID string, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")

	for _, b := range bookings {
		uid := b.ExternalID
		if uid == "" {
			uid = b.ID
		}

		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, uid)
		event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		event.Props.SetDateTime(ical.PropDateTimeStart, b.StartUTC.UTC())
		event.Props.SetDateTime(ical.PropDateTimeEnd, b.EndUTC.UTC())
		event.Props.SetText(ical.PropSummary, b.Title)
		event.Props.SetText(ical.PropStatus, "CONFIRMED")
		if b.Link != "" {
			if u, err := url.Parse(b.Link); err == nil {
				event.Props.SetURI(ical.PropURL, u)
			}
		}
		cal.Children = append(cal.Children, event.Component)
	}
	return cal
}
