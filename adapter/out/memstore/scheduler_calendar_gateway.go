package memstore

import (
	"context"
	"sync"

	"scheduler_server/core/port/out"

	"github.com/google/uuid"
)

// CalendarGateway keeps remote events in process. It stands in for Google
// Calendar when no service account is configured.
type CalendarGateway struct {
	mu     sync.RWMutex
	events map[string]out.RemoteEvent
}

func NewCalendarGateway() *CalendarGateway {
	return &CalendarGateway{events: make(map[string]out.RemoteEvent)}
}

var _ out.CalendarGateway = (*CalendarGateway)(nil)

func (g *CalendarGateway) CreateEvent(ctx context.Context, event *out.RemoteEvent) (*out.RemoteEvent, error) {
	created := *event
	created.ID = uuid.NewString()
	g.mu.Lock()
	g.events[created.ID] = created
	g.mu.Unlock()
	return &created, nil
}

func (g *CalendarGateway) GetEvent(ctx context.Context, externalID string) (*out.RemoteEvent, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ev, ok := g.events[externalID]
	if !ok {
		return nil, out.ErrRemoteNotFound
	}
	return &ev, nil
}

func (g *CalendarGateway) UpdateEvent(ctx context.Context, externalID string, event *out.RemoteEvent) (*out.RemoteEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.events[externalID]; !ok {
		return nil, out.ErrRemoteNotFound
	}
	updated := *event
	updated.ID = externalID
	g.events[externalID] = updated
	return &updated, nil
}

func (g *CalendarGateway) DeleteEvent(ctx context.Context, externalID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.events[externalID]; !ok {
		return out.ErrRemoteNotFound
	}
	delete(g.events, externalID)
	return nil
}

// Len reports how many events are held.
func (g *CalendarGateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.events)
}
