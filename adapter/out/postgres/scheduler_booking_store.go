package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const bookingColumns = `id, event_id, user_id, title, start_utc, end_utc, original_timezone, status, html_link, created_at`

// BookingStore implements out.CalendarStore.
type BookingStore struct {
	db *sqlx.DB
}

func NewBookingStore(db *sqlx.DB) *BookingStore {
	return &BookingStore{db: db}
}

var _ out.CalendarStore = (*BookingStore)(nil)

type bookingRow struct {
	ID               string         `db:"id"`
	EventID          sql.NullString `db:"event_id"`
	UserID           string         `db:"user_id"`
	Title            string         `db:"title"`
	StartUTC         time.Time      `db:"start_utc"`
	EndUTC           time.Time      `db:"end_utc"`
	OriginalTimezone string         `db:"original_timezone"`
	Status           string         `db:"status"`
	HTMLLink         sql.NullString `db:"html_link"`
	CreatedAt        time.Time      `db:"created_at"`
}

func (r *bookingRow) toDomain() *domain.Booking {
	return &domain.Booking{
		ID:               r.ID,
		ExternalID:       r.EventID.String,
		OwnerID:          r.UserID,
		Title:            r.Title,
		StartUTC:         r.StartUTC.UTC(),
		EndUTC:           r.EndUTC.UTC(),
		OriginalTimezone: r.OriginalTimezone,
		Status:           domain.BookingStatus(r.Status),
		Link:             r.HTMLLink.String,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *BookingStore) Insert(ctx context.Context, b *domain.Booking) (string, error) {
	id := b.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO calendar_events (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		id, nullString(b.ExternalID), b.OwnerID, b.Title,
		b.StartUTC.UTC(), b.EndUTC.UTC(), b.OriginalTimezone,
		string(b.Status), nullString(b.Link), createdAt.UTC(),
	)
	if err != nil {
		return "", translateError("insert booking", err)
	}
	return id, nil
}

func (s *BookingStore) FindOverlapping(ctx context.Context, window domain.TimeWindow, excludeID string) (*domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM calendar_events
		WHERE start_utc < $1 AND end_utc > $2
		  AND status IN ('pending', 'confirmed')
		  AND ($3 = '' OR id::text <> $3)
		ORDER BY start_utc
		LIMIT 1`

	return s.getOne(ctx, query, window.End.UTC(), window.Start.UTC(), excludeID)
}

func (s *BookingStore) FindByExternalID(ctx context.Context, externalID string) (*domain.Booking, error) {
	if externalID == "" {
		return nil, nil
	}
	query := `SELECT ` + bookingColumns + ` FROM calendar_events WHERE event_id = $1`
	return s.getOne(ctx, query, externalID)
}

func (s *BookingStore) FindByOwnerInRange(ctx context.Context, ownerID string, start, end *time.Time) ([]*domain.Booking, error) {
	conditions := []string{"user_id = $1"}
	args := []any{ownerID}
	if start != nil {
		args = append(args, start.UTC())
		conditions = append(conditions, fmt.Sprintf("start_utc >= $%d", len(args)))
	}
	if end != nil {
		args = append(args, end.UTC())
		conditions = append(conditions, fmt.Sprintf("start_utc <= $%d", len(args)))
	}

	query := `SELECT ` + bookingColumns + ` FROM calendar_events WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY start_utc`
	return s.selectMany(ctx, query, args...)
}

func (s *BookingStore) FindStartingBetween(ctx context.Context, start, end time.Time) ([]*domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM calendar_events
		WHERE start_utc >= $1 AND start_utc < $2
		ORDER BY start_utc`
	return s.selectMany(ctx, query, start.UTC(), end.UTC())
}

func (s *BookingStore) Confirm(ctx context.Context, id, externalID, link string) error {
	query := `
		UPDATE calendar_events
		SET event_id = $2, html_link = $3, status = 'confirmed'
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id, externalID, nullString(link))
	if err != nil {
		return translateError("confirm booking", err)
	}
	return requireRow(res)
}

func (s *BookingStore) UpdateFields(ctx context.Context, externalID string, patch out.BookingPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	var sets []string
	var args []any
	if patch.Title != nil {
		args = append(args, *patch.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if patch.StartUTC != nil {
		args = append(args, patch.StartUTC.UTC())
		sets = append(sets, fmt.Sprintf("start_utc = $%d", len(args)))
	}
	if patch.EndUTC != nil {
		args = append(args, patch.EndUTC.UTC())
		sets = append(sets, fmt.Sprintf("end_utc = $%d", len(args)))
	}
	args = append(args, externalID)

	query := fmt.Sprintf(`UPDATE calendar_events SET %s WHERE event_id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translateError("update booking", err)
	}
	return requireRow(res)
}

func (s *BookingStore) Delete(ctx context.Context, externalID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE event_id = $1`, externalID); err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return nil
}

func (s *BookingStore) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete booking %s: %w", id, err)
	}
	return nil
}

func (s *BookingStore) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM calendar_events WHERE status = 'pending' AND created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete stale pending bookings: %w", err)
	}
	return res.RowsAffected()
}

func (s *BookingStore) getOne(ctx context.Context, query string, args ...any) (*domain.Booking, error) {
	var row bookingRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return row.toDomain(), nil
}

func (s *BookingStore) selectMany(ctx context.Context, query string, args ...any) ([]*domain.Booking, error) {
	var rows []bookingRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	result := make([]*domain.Booking, len(rows))
	for i := range rows {
		result[i] = rows[i].toDomain()
	}
	return result, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return out.ErrBookingNotFound
	}
	return nil
}
