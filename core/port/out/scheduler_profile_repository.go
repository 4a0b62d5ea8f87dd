package out

import (
	"context"
	"errors"

	"scheduler_server/core/domain"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository reads and updates the user records identities are built from.
type ProfileRepository interface {
	// GetProfile returns (nil, nil) when no profile exists.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	UpdateTimezone(ctx context.Context, userID, timezone string) error
}
