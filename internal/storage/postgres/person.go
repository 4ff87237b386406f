package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"calsync/internal/domain"
)

const personColumns = `
	id, source_type, external_id, calendar_id, email, name, first_name, last_name,
	avatar_url, event_approved_count, event_checked_in_count, revenue_usd_cents, tags,
	membership_tier_id, membership_status, last_seen_at, user_id, created_at, updated_at`

// personRow adds the array column that domain.Person does not map.
type personRow struct {
	domain.Person
	Tags pq.StringArray `db:"tags"`
}

func (r personRow) toDomain() domain.Person {
	p := r.Person
	p.Tags = []string(r.Tags)
	return p
}

type PersonStore struct {
	db *sqlx.DB
}

func NewPersonStore(db *sqlx.DB) *PersonStore {
	return &PersonStore{db: db}
}

// Upsert writes person keyed by (calendar_id, external_id) and reports
// whether a new row was inserted. An existing row keeps its id and user_id.
func (s *PersonStore) Upsert(ctx context.Context, person *domain.Person) (bool, error) {
	query := `
		INSERT INTO external_people (
			id, source_type, external_id, calendar_id, email, name, first_name, last_name,
			avatar_url, event_approved_count, event_checked_in_count, revenue_usd_cents, tags,
			membership_tier_id, membership_status, last_seen_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (calendar_id, external_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			avatar_url = EXCLUDED.avatar_url,
			event_approved_count = EXCLUDED.event_approved_count,
			event_checked_in_count = EXCLUDED.event_checked_in_count,
			revenue_usd_cents = EXCLUDED.revenue_usd_cents,
			tags = EXCLUDED.tags,
			membership_tier_id = EXCLUDED.membership_tier_id,
			membership_status = EXCLUDED.membership_status,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted`

	tags := person.Tags
	if tags == nil {
		tags = []string{}
	}

	var (
		id       string
		inserted bool
	)
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		uuid.NewString(),
		person.SourceType,
		person.ExternalID,
		person.CalendarID,
		person.Email,
		person.Name,
		person.FirstName,
		person.LastName,
		person.AvatarURL,
		person.EventApprovedCount,
		person.EventCheckedInCount,
		person.RevenueUSDCents,
		pq.Array(tags),
		person.MembershipTierID,
		person.MembershipStatus,
		person.LastSeenAt,
	).Scan(&id, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert person: %w", err)
	}

	person.ID = id
	return inserted, nil
}

func (s *PersonStore) GetByExternalID(ctx context.Context, calendarID, externalID string) (*domain.Person, error) {
	var row personRow
	query := `SELECT ` + personColumns + ` FROM external_people WHERE calendar_id = $1 AND external_id = $2`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, calendarID, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}

	p := row.toDomain()
	return &p, nil
}

// ListUnlinked returns people with an email and no linked user, across all
// calendars.
func (s *PersonStore) ListUnlinked(ctx context.Context) ([]domain.Person, error) {
	query := `SELECT ` + personColumns + `
		FROM external_people
		WHERE user_id IS NULL AND email <> ''
		ORDER BY created_at`

	var rows []personRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, fmt.Errorf("list unlinked people: %w", err)
	}

	people := make([]domain.Person, len(rows))
	for i, r := range rows {
		people[i] = r.toDomain()
	}
	return people, nil
}

// LinkUser sets user_id on a person that has none. It reports false when the
// person was already linked or does not exist.
func (s *PersonStore) LinkUser(ctx context.Context, personID, userID string) (bool, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE external_people SET user_id = $2, updated_at = NOW() WHERE id = $1 AND user_id IS NULL`,
		personID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("link person to user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link person to user: %w", err)
	}
	return n == 1, nil
}
