package out

import (
	"context"
	"errors"
	"time"
)

// ErrRemoteNotFound is returned by CalendarGateway when the remote event no longer exists.
var ErrRemoteNotFound = errors.New("remote event not found")

// RemoteEvent is the subset of a remote calendar event the engine reads and writes.
// Start and End carry the wall-clock location named by Timezone.
type RemoteEvent struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
	Link        string
}

// CalendarGateway proxies the external calendar service.
type CalendarGateway interface {
	CreateEvent(ctx context.Context, event *RemoteEvent) (*RemoteEvent, error)
	GetEvent(ctx context.Context, externalID string) (*RemoteEvent, error)
	UpdateEvent(ctx context.Context, externalID string, event *RemoteEvent) (*RemoteEvent, error)
	DeleteEvent(ctx context.Context, externalID string) error
}
