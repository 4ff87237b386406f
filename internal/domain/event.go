package domain

import (
	"encoding/json"
	"time"
)

// Address is the nested geographic object attached to an upstream event.
type Address struct {
	FullAddress *string
	City        *string
	Region      *string
	Country     *string
}

// EventRecord is an event as reported by the event platform, after boundary
// validation. Raw holds the upstream JSON object verbatim.
type EventRecord struct {
	ExternalID        string
	Name              string
	Description       *string
	Slug              *string
	URL               *string
	CoverURL          *string
	StartAt           *time.Time
	EndAt             *time.Time
	Timezone          *string
	MeetingURL        *string
	Address           *Address
	Latitude          *float64
	Longitude         *float64
	GuestLimit        *int
	RegistrationCount *int
	Hosts             json.RawMessage
	Raw               json.RawMessage
}

type Event struct {
	ID                string          `db:"id"`
	SourceType        string          `db:"source_type"`
	ExternalID        string          `db:"external_id"`
	CalendarID        string          `db:"calendar_id"`
	Name              string          `db:"name"`
	Description       *string         `db:"description"`
	Slug              *string         `db:"slug"`
	URL               *string         `db:"url"`
	CoverURL          *string         `db:"cover_url"`
	StartsAt          *time.Time      `db:"starts_at"`
	EndsAt            *time.Time      `db:"ends_at"`
	Timezone          *string         `db:"timezone"`
	IsVirtual         bool            `db:"is_virtual"`
	Address           *string         `db:"address"`
	City              *string         `db:"city"`
	Region            *string         `db:"region"`
	Country           *string         `db:"country"`
	Latitude          *float64        `db:"latitude"`
	Longitude         *float64        `db:"longitude"`
	MeetingURL        *string         `db:"meeting_url"`
	Capacity          *int            `db:"capacity"`
	RegistrationCount *int            `db:"registration_count"`
	Hosts             json.RawMessage `db:"hosts"`
	RawData           json.RawMessage `db:"raw_data"`
	ContentHash       string          `db:"content_hash"`
	LastSeenAt        time.Time       `db:"last_seen_at"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}
