package domain

import "time"

// PersonRecord is an attendee as reported by the event platform, after
// boundary validation. ExternalID and Email are always set.
type PersonRecord struct {
	ExternalID          string
	Email               string
	Name                *string
	FirstName           *string
	LastName            *string
	AvatarURL           *string
	EventApprovedCount  int
	EventCheckedInCount int
	RevenueUSDCents     int64
	Tags                []string
	MembershipTierID    *string
	MembershipStatus    *string
}

// Person is the locally stored copy of a PersonRecord, scoped to one calendar.
type Person struct {
	ID                  string    `db:"id"`
	SourceType          string    `db:"source_type"`
	ExternalID          string    `db:"external_id"`
	CalendarID          string    `db:"calendar_id"`
	Email               string    `db:"email"`
	Name                *string   `db:"name"`
	FirstName           *string   `db:"first_name"`
	LastName            *string   `db:"last_name"`
	AvatarURL           *string   `db:"avatar_url"`
	EventApprovedCount  int       `db:"event_approved_count"`
	EventCheckedInCount int       `db:"event_checked_in_count"`
	RevenueUSDCents     int64     `db:"revenue_usd_cents"`
	Tags                []string  `db:"-"`
	MembershipTierID    *string   `db:"membership_tier_id"`
	MembershipStatus    *string   `db:"membership_status"`
	LastSeenAt          time.Time `db:"last_seen_at"`
	UserID              *string   `db:"user_id"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// NewPerson builds the row for rec as seen in calendar calendarID at seenAt.
// UserID is left nil; it is owned by the identity linker.
func NewPerson(calendarID string, rec PersonRecord, seenAt time.Time) *Person {
	return &Person{
		SourceType:          SourceLuma,
		ExternalID:          rec.ExternalID,
		CalendarID:          calendarID,
		Email:               rec.Email,
		Name:                rec.Name,
		FirstName:           rec.FirstName,
		LastName:            rec.LastName,
		AvatarURL:           rec.AvatarURL,
		EventApprovedCount:  rec.EventApprovedCount,
		EventCheckedInCount: rec.EventCheckedInCount,
		RevenueUSDCents:     rec.RevenueUSDCents,
		Tags:                rec.Tags,
		MembershipTierID:    rec.MembershipTierID,
		MembershipStatus:    rec.MembershipStatus,
		LastSeenAt:          seenAt,
	}
}
