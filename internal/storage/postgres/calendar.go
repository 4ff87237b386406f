package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"calsync/internal/domain"
)

const calendarColumns = `
	id, source_type, external_id, slug, name, is_active, sync_frequency,
	last_sync_at, last_sync_status, total_people, total_events, created_at, updated_at`

type CalendarStore struct {
	db *sqlx.DB
}

func NewCalendarStore(db *sqlx.DB) *CalendarStore {
	return &CalendarStore{db: db}
}

// Create registers a calendar to track. ID, SourceType and SyncFrequency are
// filled in when empty.
func (s *CalendarStore) Create(ctx context.Context, cal *domain.Calendar) error {
	if cal.ID == "" {
		cal.ID = uuid.NewString()
	}
	if cal.SourceType == "" {
		cal.SourceType = domain.SourceLuma
	}
	if cal.SyncFrequency == "" {
		cal.SyncFrequency = "daily"
	}

	query := `
		INSERT INTO external_calendars (id, source_type, external_id, slug, name, is_active, sync_frequency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		cal.ID,
		cal.SourceType,
		cal.ExternalID,
		cal.Slug,
		cal.Name,
		cal.IsActive,
		cal.SyncFrequency,
	).Scan(&cal.CreatedAt, &cal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert calendar: %w", err)
	}
	return nil
}

func (s *CalendarStore) GetByID(ctx context.Context, id string) (*domain.Calendar, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrCalendarNotFound
	}

	var cal domain.Calendar
	query := `SELECT ` + calendarColumns + ` FROM external_calendars WHERE id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &cal, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCalendarNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get calendar: %w", err)
	}
	return &cal, nil
}

func (s *CalendarStore) GetBySlug(ctx context.Context, slug string) (*domain.Calendar, error) {
	var cal domain.Calendar
	query := `SELECT ` + calendarColumns + ` FROM external_calendars WHERE slug = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &cal, query, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCalendarNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get calendar by slug: %w", err)
	}
	return &cal, nil
}

func (s *CalendarStore) ListActive(ctx context.Context) ([]domain.Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM external_calendars WHERE is_active ORDER BY created_at, slug`

	var calendars []domain.Calendar
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &calendars, query); err != nil {
		return nil, fmt.Errorf("list active calendars: %w", err)
	}
	return calendars, nil
}

func (s *CalendarStore) List(ctx context.Context) ([]domain.Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM external_calendars ORDER BY created_at, slug`

	var calendars []domain.Calendar
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &calendars, query); err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	return calendars, nil
}

func (s *CalendarStore) UpdateTotalPeople(ctx context.Context, id string, total int) error {
	return s.exec(ctx, "update total people",
		`UPDATE external_calendars SET total_people = $2, updated_at = NOW() WHERE id = $1`,
		id, total,
	)
}

func (s *CalendarStore) UpdateTotalEvents(ctx context.Context, id string, total int) error {
	return s.exec(ctx, "update total events",
		`UPDATE external_calendars SET total_events = $2, updated_at = NOW() WHERE id = $1`,
		id, total,
	)
}

// UpdateSyncStatus records the outcome of the latest run. last_sync_at only
// moves when syncedAt is set, so it always points at the last success.
func (s *CalendarStore) UpdateSyncStatus(ctx context.Context, id string, status domain.SyncStatus, syncedAt *time.Time) error {
	return s.exec(ctx, "update sync status",
		`UPDATE external_calendars
		SET last_sync_status = $2,
			last_sync_at = COALESCE($3, last_sync_at),
			updated_at = NOW()
		WHERE id = $1`,
		id, string(status), syncedAt,
	)
}

func (s *CalendarStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.exec(ctx, "set calendar active",
		`UPDATE external_calendars SET is_active = $2, updated_at = NOW() WHERE id = $1`,
		id, active,
	)
}

func (s *CalendarStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrCalendarNotFound)
	}
	return nil
}
