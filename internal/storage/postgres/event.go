package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"calsync/internal/domain"
)

const eventColumns = `
	id, source_type, external_id, calendar_id, name, description, slug, url, cover_url,
	starts_at, ends_at, timezone, is_virtual, address, city, region, country, latitude,
	longitude, meeting_url, capacity, registration_count, hosts, raw_data, content_hash,
	last_seen_at, created_at, updated_at`

type EventStore struct {
	db *sqlx.DB
}

func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

// Upsert writes event keyed by (source_type, external_id) and reports whether
// a new row was inserted. The calendar that first inserted the event keeps
// ownership of the row.
func (s *EventStore) Upsert(ctx context.Context, event *domain.Event) (bool, error) {
	query := `
		INSERT INTO external_events (
			id, source_type, external_id, calendar_id, name, description, slug, url, cover_url,
			starts_at, ends_at, timezone, is_virtual, address, city, region, country, latitude,
			longitude, meeting_url, capacity, registration_count, hosts, raw_data, content_hash,
			last_seen_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23::jsonb, $24::jsonb, $25, $26
		)
		ON CONFLICT (source_type, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			slug = EXCLUDED.slug,
			url = EXCLUDED.url,
			cover_url = EXCLUDED.cover_url,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			timezone = EXCLUDED.timezone,
			is_virtual = EXCLUDED.is_virtual,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			region = EXCLUDED.region,
			country = EXCLUDED.country,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			meeting_url = EXCLUDED.meeting_url,
			capacity = EXCLUDED.capacity,
			registration_count = EXCLUDED.registration_count,
			hosts = EXCLUDED.hosts,
			raw_data = EXCLUDED.raw_data,
			content_hash = EXCLUDED.content_hash,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted`

	var (
		id       string
		inserted bool
	)
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		uuid.NewString(),
		event.SourceType,
		event.ExternalID,
		event.CalendarID,
		event.Name,
		event.Description,
		event.Slug,
		event.URL,
		event.CoverURL,
		event.StartsAt,
		event.EndsAt,
		event.Timezone,
		event.IsVirtual,
		event.Address,
		event.City,
		event.Region,
		event.Country,
		event.Latitude,
		event.Longitude,
		event.MeetingURL,
		event.Capacity,
		event.RegistrationCount,
		jsonParam(event.Hosts, "[]"),
		jsonParam(event.RawData, "{}"),
		event.ContentHash,
		event.LastSeenAt,
	).Scan(&id, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert event: %w", err)
	}

	event.ID = id
	return inserted, nil
}

func (s *EventStore) GetByExternalID(ctx context.Context, sourceType, externalID string) (*domain.Event, error) {
	var event domain.Event
	query := `SELECT ` + eventColumns + ` FROM external_events WHERE source_type = $1 AND external_id = $2`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &event, query, sourceType, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &event, nil
}

func (s *EventStore) CountByCalendar(ctx context.Context, calendarID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count,
		`SELECT COUNT(*) FROM external_events WHERE calendar_id = $1`, calendarID)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// jsonParam passes raw JSON as text; lib/pq would send a []byte as bytea.
func jsonParam(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}
