package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

type ProfileRepository struct {
	db *sqlx.DB
}

func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

var _ out.ProfileRepository = (*ProfileRepository)(nil)

type profileRow struct {
	ID        string         `db:"id"`
	Email     string         `db:"email"`
	Timezone  sql.NullString `db:"timezone"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var row profileRow
	err := r.db.GetContext(ctx, &row, `SELECT id, email, timezone, updated_at FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &domain.Profile{
		ID:        row.ID,
		Email:     row.Email,
		Timezone:  row.Timezone.String,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (r *ProfileRepository) UpdateTimezone(ctx context.Context, userID, timezone string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET timezone = $2, updated_at = now() WHERE id = $1`, userID, timezone)
	if err != nil {
		return fmt.Errorf("update timezone: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return out.ErrProfileNotFound
	}
	return nil
}
