package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"
	"scheduler_server/pkg/apperr"
	"scheduler_server/pkg/logger"

	"github.com/google/uuid"
)

const calendarService = "calendar"

// Engine books, moves and cancels meetings across the internal store and the
// remote calendar. The store's uniqueness constraint is the real exclusion;
// the overlap query before insert only gives a faster, clearer rejection.
type Engine struct {
	store   out.CalendarStore
	gateway out.CalendarGateway
	now     func() time.Time
}

func NewEngine(store out.CalendarStore, gateway out.CalendarGateway) *Engine {
	return &Engine{
		store:   store,
		gateway: gateway,
		now:     time.Now,
	}
}

// SetClock replaces the time source (for testing).
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

type CreateRequest struct {
	Summary string
	Start   string
	End     string
}

type UpdateRequest struct {
	EventID    string
	NewStart   *string
	NewSummary *string
}

// Create books [Start, End) in the caller's timezone.
func (e *Engine) Create(ctx context.Context, identity domain.Identity, req CreateRequest) (*domain.Booking, error) {
	loc, err := callerLocation(identity)
	if err != nil {
		return nil, err
	}

	summary := strings.TrimSpace(req.Summary)
	if summary == "" {
		return nil, apperr.MissingField("summary")
	}
	start, err := domain.ParseLocalTime(req.Start, loc)
	if err != nil {
		return nil, apperr.InvalidInput("start_time", err.Error())
	}
	end, err := domain.ParseLocalTime(req.End, loc)
	if err != nil {
		return nil, apperr.InvalidInput("end_time", err.Error())
	}
	window, err := domain.NewTimeWindow(start, end)
	if err != nil {
		return nil, apperr.ValidationFailed("The end time must be after the start time.")
	}

	existing, err := e.store.FindOverlapping(ctx, window, "")
	if err != nil {
		return nil, apperr.DatabaseError("find overlapping bookings", err)
	}
	if existing != nil {
		return nil, apperr.Conflict(nil).WithDetail("window", window.String())
	}

	rec := &domain.Booking{
		ID:               uuid.New().String(),
		OwnerID:          identity.ID,
		Title:            summary,
		StartUTC:         window.Start,
		EndUTC:           window.End,
		OriginalTimezone: loc.String(),
		Status:           domain.BookingPending,
		CreatedAt:        e.now().UTC(),
	}
	id, err := e.store.Insert(ctx, rec)
	if err != nil {
		if errors.Is(err, out.ErrDuplicateSlot) {
			return nil, apperr.Conflict(err)
		}
		return nil, apperr.DatabaseError("insert booking", err)
	}
	rec.ID = id

	// From here on every write must finish even if the caller goes away.
	detached := context.WithoutCancel(ctx)

	remote, err := e.gateway.CreateEvent(ctx, &out.RemoteEvent{
		Summary:     summary,
		Description: fmt.Sprintf("Call booked by %s", identity.Email),
		Start:       start.In(loc),
		End:         end.In(loc),
		Timezone:    loc.String(),
	})
	if err != nil {
		e.discardPending(detached, rec, err)
		return nil, apperr.RemoteUnavailable(calendarService, "the meeting was not booked", err)
	}

	if err := e.store.Confirm(detached, rec.ID, remote.ID, remote.Link); err != nil {
		log := logger.WithContext(ctx).WithField("booking_id", rec.ID).WithField("external_id", remote.ID)
		if derr := e.gateway.DeleteEvent(detached, remote.ID); derr != nil && !errors.Is(derr, out.ErrRemoteNotFound) {
			log.WithError(derr).Error("[Engine.Create] failed to remove remote event after confirm failure")
		}
		e.discardPending(detached, rec, err)
		return nil, apperr.DatabaseError("confirm booking", err)
	}

	rec.ExternalID = remote.ID
	rec.Link = remote.Link
	rec.Status = domain.BookingConfirmed

	logger.WithContext(ctx).WithFields(map[string]any{
		"booking_id":  rec.ID,
		"external_id": rec.ExternalID,
		"start_utc":   rec.StartUTC.Format(time.RFC3339),
	}).Info("[Engine.Create] booking confirmed")
	return rec, nil
}

// discardPending is the compensating delete for a pending record whose remote
// counterpart was never created.
func (e *Engine) discardPending(ctx context.Context, rec *domain.Booking, cause error) {
	if err := e.store.DeleteByID(ctx, rec.ID); err != nil {
		logger.WithContext(ctx).
			WithField("booking_id", rec.ID).
			WithField("cause", cause.Error()).
			WithError(err).
			Error("[Engine] compensating delete failed, pending record left for sweeper")
		return
	}
	logger.WithContext(ctx).
		WithField("booking_id", rec.ID).
		WithError(cause).
		Warn("[Engine] remote calendar rejected booking, pending record removed")
}

// Update moves and/or renames a booking owned by the caller. A start change
// keeps the original duration.
func (e *Engine) Update(ctx context.Context, identity domain.Identity, req UpdateRequest) (*domain.Booking, error) {
	rec, err := e.ownedBooking(ctx, identity, req.EventID)
	if err != nil {
		return nil, err
	}
	if req.NewStart == nil && req.NewSummary == nil {
		return nil, apperr.ValidationFailed("Provide a new start time or a new title to update the event.")
	}
	loc, err := callerLocation(identity)
	if err != nil {
		return nil, err
	}

	updated := *rec
	var patch out.BookingPatch

	if req.NewSummary != nil {
		title := strings.TrimSpace(*req.NewSummary)
		if title == "" {
			return nil, apperr.InvalidInput("new_summary", "must not be empty")
		}
		updated.Title = title
		patch.Title = &title
	}

	if req.NewStart != nil {
		start, err := domain.ParseLocalTime(*req.NewStart, loc)
		if err != nil {
			return nil, apperr.InvalidInput("new_start_time", err.Error())
		}
		window := rec.Window().MoveTo(start)

		clash, err := e.store.FindOverlapping(ctx, window, rec.ID)
		if err != nil {
			return nil, apperr.DatabaseError("find overlapping bookings", err)
		}
		if clash != nil {
			return nil, apperr.Conflict(nil).WithDetail("window", window.String())
		}
		updated.StartUTC, updated.EndUTC = window.Start, window.End
		patch.StartUTC, patch.EndUTC = &window.Start, &window.End
	}

	if err := e.store.UpdateFields(ctx, rec.ExternalID, patch); err != nil {
		if errors.Is(err, out.ErrDuplicateSlot) {
			return nil, apperr.Conflict(err)
		}
		return nil, apperr.DatabaseError("update booking", err)
	}

	detached := context.WithoutCancel(ctx)
	if err := e.patchRemote(detached, rec.ExternalID, &updated, loc); err != nil {
		revert := out.BookingPatch{Title: &rec.Title, StartUTC: &rec.StartUTC, EndUTC: &rec.EndUTC}
		if rerr := e.store.UpdateFields(detached, rec.ExternalID, revert); rerr != nil {
			logger.WithContext(ctx).
				WithField("external_id", rec.ExternalID).
				WithError(rerr).
				Error("[Engine.Update] revert failed, store diverged from remote calendar")
		}
		return nil, apperr.RemoteUnavailable(calendarService, "the change was not saved", err)
	}

	return &updated, nil
}

func (e *Engine) patchRemote(ctx context.Context, externalID string, b *domain.Booking, loc *time.Location) error {
	event, err := e.gateway.GetEvent(ctx, externalID)
	if err != nil {
		return err
	}
	event.Summary = b.Title
	event.Start = b.StartUTC.In(loc)
	event.End = b.EndUTC.In(loc)
	event.Timezone = loc.String()
	_, err = e.gateway.UpdateEvent(ctx, externalID, event)
	return err
}

// Delete cancels a booking owned by the caller. The remote event goes first;
// if that fails the local record is kept.
func (e *Engine) Delete(ctx context.Context, identity domain.Identity, eventID string) (*domain.Booking, error) {
	rec, err := e.ownedBooking(ctx, identity, eventID)
	if err != nil {
		return nil, err
	}

	if err := e.gateway.DeleteEvent(ctx, rec.ExternalID); err != nil && !errors.Is(err, out.ErrRemoteNotFound) {
		return nil, apperr.RemoteUnavailable(calendarService, "the meeting was not cancelled", err)
	}
	if err := e.store.Delete(context.WithoutCancel(ctx), rec.ExternalID); err != nil {
		return nil, apperr.DatabaseError("delete booking", err)
	}
	return rec, nil
}

// List returns the caller's bookings whose start falls in [start, end].
// With neither bound it returns upcoming bookings.
func (e *Engine) List(ctx context.Context, identity domain.Identity, start, end string) ([]domain.BookingView, error) {
	loc, err := callerLocation(identity)
	if err != nil {
		return nil, err
	}

	var from, to *time.Time
	if strings.TrimSpace(start) != "" {
		t, err := domain.ParseLocalTime(start, loc)
		if err != nil {
			return nil, apperr.InvalidInput("start_time", err.Error())
		}
		from = &t
	}
	if strings.TrimSpace(end) != "" {
		t, err := domain.ParseLocalTime(end, loc)
		if err != nil {
			return nil, apperr.InvalidInput("end_time", err.Error())
		}
		to = &t
	}
	if from == nil && to == nil {
		now := e.now()
		from = &now
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, apperr.ValidationFailed("The end of the range must be after its start.")
	}

	bookings, err := e.store.FindByOwnerInRange(ctx, identity.ID, from, to)
	if err != nil {
		return nil, apperr.DatabaseError("list bookings", err)
	}

	views := make([]domain.BookingView, 0, len(bookings))
	for _, b := range bookings {
		if !b.IsConfirmed() {
			continue
		}
		views = append(views, b.View(loc))
	}
	return views, nil
}

// Upcoming returns the caller's confirmed future bookings.
func (e *Engine) Upcoming(ctx context.Context, identity domain.Identity) ([]*domain.Booking, error) {
	now := e.now()
	bookings, err := e.store.FindByOwnerInRange(ctx, identity.ID, &now, nil)
	if err != nil {
		return nil, apperr.DatabaseError("list bookings", err)
	}
	result := bookings[:0]
	for _, b := range bookings {
		if b.IsConfirmed() {
			result = append(result, b)
		}
	}
	return result, nil
}

func (e *Engine) ownedBooking(ctx context.Context, identity domain.Identity, eventID string) (*domain.Booking, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, apperr.MissingField("event_id")
	}
	rec, err := e.store.FindByExternalID(ctx, eventID)
	if err != nil {
		return nil, apperr.DatabaseError("find booking", err)
	}
	if rec == nil {
		return nil, apperr.NotFound("event")
	}
	if !rec.IsOwnedBy(identity.ID) {
		return nil, apperr.Forbidden("")
	}
	return rec, nil
}

func callerLocation(identity domain.Identity) (*time.Location, error) {
	loc, err := identity.Location()
	if err != nil {
		return nil, apperr.ValidationFailed(fmt.Sprintf("Your saved timezone %q is not valid. Please set an IANA timezone such as Asia/Kolkata.", identity.Timezone))
	}
	return loc, nil
}
