// Package memstore provides in-process implementations of the storage ports,
// used by the memory store backend and by tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"

	"github.com/google/uuid"
)

type slotKey struct {
	start int64
	end   int64
}

func keyOf(start, end time.Time) slotKey {
	return slotKey{start: start.UnixNano(), end: end.UnixNano()}
}

// BookingStore is a mutex-guarded CalendarStore. Like the Mongo index it
// rejects two bookings with the identical (start, end) pair.
type BookingStore struct {
	mu       sync.RWMutex
	bookings map[string]*domain.Booking
	slots    map[slotKey]string
}

func NewBookingStore() *BookingStore {
	return &BookingStore{
		bookings: make(map[string]*domain.Booking),
		slots:    make(map[slotKey]string),
	}
}

var _ out.CalendarStore = (*BookingStore)(nil)

func clone(b *domain.Booking) *domain.Booking {
	c := *b
	return &c
}

func (s *BookingStore) Insert(ctx context.Context, booking *domain.Booking) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(booking.StartUTC, booking.EndUTC)
	if _, taken := s.slots[key]; taken {
		return "", out.ErrDuplicateSlot
	}

	rec := clone(booking)
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	s.bookings[rec.ID] = rec
	s.slots[key] = rec.ID
	return rec.ID, nil
}

func (s *BookingStore) FindOverlapping(ctx context.Context, window domain.TimeWindow, excludeID string) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, b := range s.bookings {
		if id == excludeID {
			continue
		}
		if b.Window().Overlaps(window) {
			return clone(b), nil
		}
	}
	return nil, nil
}

func (s *BookingStore) FindByExternalID(ctx context.Context, externalID string) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if externalID == "" {
		return nil, nil
	}
	for _, b := range s.bookings {
		if b.ExternalID == externalID {
			return clone(b), nil
		}
	}
	return nil, nil
}

func (s *BookingStore) FindByOwnerInRange(ctx context.Context, ownerID string, start, end *time.Time) ([]*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Booking
	for _, b := range s.bookings {
		if b.OwnerID != ownerID {
			continue
		}
		if start != nil && b.StartUTC.Before(*start) {
			continue
		}
		if end != nil && b.StartUTC.After(*end) {
			continue
		}
		result = append(result, clone(b))
	}
	sortByStart(result)
	return result, nil
}

func (s *BookingStore) FindStartingBetween(ctx context.Context, start, end time.Time) ([]*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Booking
	for _, b := range s.bookings {
		if !b.StartUTC.Before(start) && b.StartUTC.Before(end) {
			result = append(result, clone(b))
		}
	}
	sortByStart(result)
	return result, nil
}

func (s *BookingStore) Confirm(ctx context.Context, id, externalID, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return out.ErrBookingNotFound
	}
	b.ExternalID = externalID
	b.Link = link
	b.Status = domain.BookingConfirmed
	return nil
}

func (s *BookingStore) UpdateFields(ctx context.Context, externalID string, patch out.BookingPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b *domain.Booking
	for _, candidate := range s.bookings {
		if candidate.ExternalID == externalID {
			b = candidate
			break
		}
	}
	if b == nil {
		return out.ErrBookingNotFound
	}

	start, end := b.StartUTC, b.EndUTC
	if patch.StartUTC != nil {
		start = patch.StartUTC.UTC()
	}
	if patch.EndUTC != nil {
		end = patch.EndUTC.UTC()
	}
	oldKey, newKey := keyOf(b.StartUTC, b.EndUTC), keyOf(start, end)
	if newKey != oldKey {
		if _, taken := s.slots[newKey]; taken {
			return out.ErrDuplicateSlot
		}
		delete(s.slots, oldKey)
		s.slots[newKey] = b.ID
	}

	b.StartUTC, b.EndUTC = start, end
	if patch.Title != nil {
		b.Title = *patch.Title
	}
	return nil
}

func (s *BookingStore) Delete(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, b := range s.bookings {
		if b.ExternalID == externalID {
			s.removeLocked(id)
			return nil
		}
	}
	return nil
}

func (s *BookingStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id)
	return nil
}

func (s *BookingStore) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, b := range s.bookings {
		if b.Status == domain.BookingPending && b.CreatedAt.Before(cutoff) {
			s.removeLocked(id)
			n++
		}
	}
	return n, nil
}

// All returns a snapshot of every stored booking, sorted by start.
func (s *BookingStore) All() []*domain.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		result = append(result, clone(b))
	}
	sortByStart(result)
	return result
}

func (s *BookingStore) removeLocked(id string) {
	b, ok := s.bookings[id]
	if !ok {
		return
	}
	delete(s.slots, keyOf(b.StartUTC, b.EndUTC))
	delete(s.bookings, id)
}

func sortByStart(bookings []*domain.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].StartUTC.Before(bookings[j].StartUTC)
	})
}
