// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"errors"
	"time"

	"scheduler_server/core/domain"
)

var (
	// ErrDuplicateSlot is returned by CalendarStore when its uniqueness
	// constraint rejects a write.
	ErrDuplicateSlot = errors.New("time slot already reserved")

	// ErrBookingNotFound is returned by writes addressing a missing booking.
	ErrBookingNotFound = errors.New("booking not found")
)

// BookingPatch holds the fields UpdateFields may change. Nil fields are left as is.
type BookingPatch struct {
	Title    *string
	StartUTC *time.Time
	EndUTC   *time.Time
}

func (p BookingPatch) IsEmpty() bool {
	return p.Title == nil && p.StartUTC == nil && p.EndUTC == nil
}

// CalendarStore is the internal record of bookings. Implementations must
// enforce uniqueness on (StartUTC, EndUTC) and report violations as
// ErrDuplicateSlot. Lookups that find nothing return (nil, nil).
type CalendarStore interface {
	// Insert stores a new booking and returns its id.
	Insert(ctx context.Context, booking *domain.Booking) (string, error)

	// FindOverlapping returns any pending or confirmed booking overlapping
	// window, skipping the record with id excludeID.
	FindOverlapping(ctx context.Context, window domain.TimeWindow, excludeID string) (*domain.Booking, error)

	FindByExternalID(ctx context.Context, externalID string) (*domain.Booking, error)

	// FindByOwnerInRange lists the owner's bookings with start in [start, end],
	// either bound optional, sorted by start.
	FindByOwnerInRange(ctx context.Context, ownerID string, start, end *time.Time) ([]*domain.Booking, error)

	// FindStartingBetween lists every booking with start in [start, end).
	FindStartingBetween(ctx context.Context, start, end time.Time) ([]*domain.Booking, error)

	// Confirm promotes a pending booking once the remote calendar accepted it.
	Confirm(ctx context.Context, id, externalID, link string) error

	UpdateFields(ctx context.Context, externalID string, patch BookingPatch) error

	Delete(ctx context.Context, externalID string) error

	// DeleteByID removes a booking that has no external id yet.
	DeleteByID(ctx context.Context, id string) error

	// DeletePendingBefore removes pending bookings created before cutoff.
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
