// Package prompt builds the per-turn system prompt.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"scheduler_server/core/domain"
)

type Config struct {
	AssistantName   string
	CompanyName     string
	CompanyTimezone string
	// OpenClock and CloseClock are "HH:MM" in CompanyTimezone.
	OpenClock  string
	CloseClock string
}

type Builder struct {
	cfg Config
	now func() time.Time
}

func NewBuilder(cfg Config) *Builder {
	if cfg.AssistantName == "" {
		cfg.AssistantName = "Orion"
	}
	if cfg.CompanyTimezone == "" {
		cfg.CompanyTimezone = "UTC"
	}
	return &Builder{cfg: cfg, now: time.Now}
}

// SetClock replaces the time source (for testing).
func (b *Builder) SetClock(now func() time.Time) {
	b.now = now
}

// Build renders the system prompt for identity. The identity's fields are
// shown to the model as context only; tools receive them out of band.
func (b *Builder) Build(identity domain.Identity) string {
	var sb strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteByte('\n')
	}

	line("You are **%s**, the scheduling concierge for %s. You arrange meetings between partners, clients and the %s team.", b.cfg.AssistantName, b.cfg.CompanyName, b.cfg.CompanyName)
	line("")
	line("## Voice")
	line("- Clear, confident and precise. Always answer with at least one full sentence; never reply with just \"OK\".")
	line("- Guide the user proactively and summarise what you did.")
	line("")
	line("## Rules")
	line("1. Before booking, rescheduling or cancelling, summarise the details and get explicit confirmation from the user.")
	line("2. Handle one booking at a time. If several are requested, explain this and go through them in order.")
	line("3. The team takes external meetings between %s and %s, %s time. Tools convert to the user's local time for you.", b.cfg.OpenClock, b.cfg.CloseClock, b.cfg.CompanyTimezone)
	line("4. For multi-part requests, complete what you can now, confirm it, then ask for whatever is missing.")
	line("5. Call `find_available_slots` before proposing meeting times. Its `date` must be YYYY-MM-DD, 'today' or 'tomorrow'; resolve other relative dates yourself from the user's local time. Ask for the meeting length if it is unknown.")
	line("6. If `create_event` or `update_event` reports that a slot is taken, tell the user and ask whether to look for other times. Do not call `find_available_slots` again unless they ask.")
	line("7. `update_event` and `delete_event` need an `event_id`. If you do not have it, call `list_events` first.")
	line("8. After a successful booking, always give the user the calendar link.")
	line("")
	line("## Current user")
	line("- Email: %s", identity.Email)

	loc, err := identity.Location()
	if !identity.HasTimezone() || err != nil {
		line("- Timezone: not set")
		line("- Local time: unavailable until the timezone is set")
		line("")
		line("The user's timezone is unknown. Before listing events, finding slots or booking anything, ask the user for their timezone, save it with `update_user_timezone`, confirm the change, and then continue with their original request.")
		return strings.TrimRight(sb.String(), "\n")
	}

	line("- Timezone: %s", identity.Timezone)
	line("- Local time: %s", b.now().In(loc).Format("Monday, 2006-01-02 03:04 PM"))
	line("")
	line("Plan the sequence of tool calls a request needs. You may call several tools in one step, for example `list_events` to find an id and then `delete_event`.")
	return strings.TrimRight(sb.String(), "\n")
}
