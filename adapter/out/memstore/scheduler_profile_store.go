package memstore

import (
	"context"
	"sync"
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"
)

// ProfileStore is an in-process ProfileRepository.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*domain.Profile
}

func NewProfileStore(profiles ...*domain.Profile) *ProfileStore {
	s := &ProfileStore{profiles: make(map[string]*domain.Profile)}
	for _, p := range profiles {
		c := *p
		s.profiles[p.ID] = &c
	}
	return s
}

var _ out.ProfileRepository = (*ProfileStore)(nil)

func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (s *ProfileStore) UpdateTimezone(ctx context.Context, userID, timezone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return out.ErrProfileNotFound
	}
	p.Timezone = timezone
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Put inserts or replaces a profile.
func (s *ProfileStore) Put(p *domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.profiles[p.ID] = &c
}
