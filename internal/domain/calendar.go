package domain

import "time"

// SourceLuma identifies the Luma event platform. It is currently the only
// supported source type.
const SourceLuma = "luma"

type Calendar struct {
	ID             string      `db:"id"`
	SourceType     string      `db:"source_type"`
	ExternalID     string      `db:"external_id"`
	Slug           string      `db:"slug"`
	Name           string      `db:"name"`
	IsActive       bool        `db:"is_active"`
	SyncFrequency  string      `db:"sync_frequency"`
	LastSyncAt     *time.Time  `db:"last_sync_at"`
	LastSyncStatus *SyncStatus `db:"last_sync_status"`
	TotalPeople    int         `db:"total_people"`
	TotalEvents    int         `db:"total_events"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}
