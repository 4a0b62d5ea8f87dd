package tools

import (
	"context"
	"errors"
	"fmt"

	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"
	"scheduler_server/pkg/apperr"
)

// UpdateTimezoneTool saves the caller's IANA timezone to their profile.
// The new value takes effect from the next turn's identity.
type UpdateTimezoneTool struct {
	profiles out.ProfileRepository
}

func NewUpdateTimezoneTool(profiles out.ProfileRepository) *UpdateTimezoneTool {
	return &UpdateTimezoneTool{profiles: profiles}
}

func (t *UpdateTimezoneTool) Name() string           { return "update_user_timezone" }
func (t *UpdateTimezoneTool) Category() ToolCategory { return CategoryProfile }

func (t *UpdateTimezoneTool) Description() string {
	return "Saves the user's preferred timezone to their profile. Use it as soon as the user tells you their timezone."
}

func (t *UpdateTimezoneTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "timezone", Type: "string", Description: "IANA timezone name, e.g. America/New_York or Asia/Kolkata", Required: true},
	}
}

func (t *UpdateTimezoneTool) Execute(ctx context.Context, identity domain.Identity, args map[string]any) (*ToolResult, error) {
	tz := stringArg(args, "timezone", "")
	loc, err := domain.ResolveLocation(tz)
	if err != nil || tz == "" {
		return nil, apperr.ValidationFailed("Invalid timezone name. Please provide a valid IANA timezone, like 'America/New_York' or 'Asia/Kolkata'.")
	}

	if err := t.profiles.UpdateTimezone(ctx, identity.ID, loc.String()); err != nil {
		if errors.Is(err, out.ErrProfileNotFound) {
			return nil, apperr.NotFound("profile")
		}
		return nil, apperr.DatabaseError("update timezone", err)
	}
	return &ToolResult{
		Success: true,
		Message: fmt.Sprintf("Timezone updated successfully to %s.", loc.String()),
	}, nil
}
