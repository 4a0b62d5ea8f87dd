package domain

import (
	"time"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
)

// Booking is one reservation on the shared company calendar.
// ExternalID stays empty until the remote calendar accepts the event.
type Booking struct {
	ID               string        `json:"id"`
	ExternalID       string        `json:"external_id,omitempty"`
	OwnerID          string        `json:"owner_id"`
	Title            string        `json:"title"`
	StartUTC         time.Time     `json:"start_utc"`
	EndUTC           time.Time     `json:"end_utc"`
	OriginalTimezone string        `json:"original_timezone"`
	Status           BookingStatus `json:"status"`
	Link             string        `json:"link,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

func (b *Booking) Window() TimeWindow {
	return TimeWindow{Start: b.StartUTC, End: b.EndUTC}
}

func (b *Booking) IsOwnedBy(ownerID string) bool {
	return b.OwnerID == ownerID
}

func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingConfirmed
}

// BookingView is a booking rendered for a caller in their timezone.
type BookingView struct {
	EventID  string `json:"event_id"`
	Title    string `json:"title"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
	Link     string `json:"link,omitempty"`
}

// View renders b in loc.
func (b *Booking) View(loc *time.Location) BookingView {
	return BookingView{
		EventID:  b.ExternalID,
		Title:    b.Title,
		Start:    b.StartUTC.In(loc).Format(time.RFC3339),
		End:      b.EndUTC.In(loc).Format(time.RFC3339),
		Timezone: loc.String(),
		Link:     b.Link,
	}
}

// Identity is the trusted caller context, built server-side from the
// authenticated profile. It is never read from model output.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Timezone string `json:"timezone,omitempty"`
}

func (i Identity) HasTimezone() bool {
	return i.Timezone != ""
}

// Location resolves the caller's timezone, UTC when unset.
func (i Identity) Location() (*time.Location, error) {
	return ResolveLocation(i.Timezone)
}

// Profile is the stored user record the identity is derived from.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Timezone  string    `json:"timezone,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) Identity() Identity {
	return Identity{ID: p.ID, Email: p.Email, Timezone: p.Timezone}
}
