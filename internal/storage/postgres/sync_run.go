package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"calsync/internal/domain"
)

const syncRunColumns = `
	id, calendar_id, sync_type, status, started_at, completed_at, duration_ms,
	people_found, people_created, people_updated, events_found, events_created,
	events_updated, error_message, error_details, triggered_by`

// syncRunRow scans the nullable jsonb column, which json.RawMessage cannot
// take directly.
type syncRunRow struct {
	domain.SyncRun
	ErrorDetails []byte `db:"error_details"`
}

func (r syncRunRow) toDomain() domain.SyncRun {
	run := r.SyncRun
	run.ErrorDetails = r.ErrorDetails
	return run
}

type SyncRunStore struct {
	db *sqlx.DB
}

func NewSyncRunStore(db *sqlx.DB) *SyncRunStore {
	return &SyncRunStore{db: db}
}

func (s *SyncRunStore) Create(ctx context.Context, run *domain.SyncRun) error {
	query := `
		INSERT INTO external_sync_runs (id, calendar_id, sync_type, status, started_at, triggered_by)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		run.ID,
		run.CalendarID,
		string(run.SyncType),
		string(run.Status),
		run.StartedAt,
		string(run.TriggeredBy),
	)
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

// Finish moves a running row to its terminal status. A row that is missing
// or already terminal yields domain.ErrNotFound, so a run can only finish
// once.
func (s *SyncRunStore) Finish(ctx context.Context, run *domain.SyncRun) error {
	if run.Status != domain.SyncStatusCompleted && run.Status != domain.SyncStatusFailed {
		return fmt.Errorf("finish sync run: status %q is not terminal", run.Status)
	}

	var details any
	if len(run.ErrorDetails) > 0 {
		details = string(run.ErrorDetails)
	}

	query := `
		UPDATE external_sync_runs SET
			status = $2,
			completed_at = $3,
			duration_ms = $4,
			people_found = $5,
			people_created = $6,
			people_updated = $7,
			events_found = $8,
			events_created = $9,
			events_updated = $10,
			error_message = $11,
			error_details = $12::jsonb
		WHERE id = $1 AND status = 'running'`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		run.ID,
		string(run.Status),
		run.CompletedAt,
		run.DurationMs,
		run.PeopleFound,
		run.PeopleCreated,
		run.PeopleUpdated,
		run.EventsFound,
		run.EventsCreated,
		run.EventsUpdated,
		run.ErrorMessage,
		details,
	)
	if err != nil {
		return fmt.Errorf("finish sync run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish sync run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish sync run %s: %w", run.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *SyncRunStore) GetByID(ctx context.Context, id string) (*domain.SyncRun, error) {
	var row syncRunRow
	query := `SELECT ` + syncRunColumns + ` FROM external_sync_runs WHERE id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync run: %w", err)
	}

	run := row.toDomain()
	return &run, nil
}

// ListRecent returns the newest runs first. An empty calendarID lists runs of
// every calendar.
func (s *SyncRunStore) ListRecent(ctx context.Context, calendarID string, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + syncRunColumns + `
		FROM external_sync_runs
		WHERE ($1 = '' OR calendar_id::text = $1)
		ORDER BY started_at DESC
		LIMIT $2`

	var rows []syncRunRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, calendarID, limit); err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}

	runs := make([]domain.SyncRun, len(rows))
	for i, r := range rows {
		runs[i] = r.toDomain()
	}
	return runs, nil
}
