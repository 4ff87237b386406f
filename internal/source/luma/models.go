package luma

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

// pageResponse is the envelope of every paginated list endpoint.
type pageResponse struct {
	Entries    []json.RawMessage `json:"entries"`
	HasMore    bool              `json:"has_more"`
	NextCursor string            `json:"next_cursor"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Person is an entry of /calendar/list-people.
type Person struct {
	APIID               string   `json:"api_id"`
	Email               string   `json:"email"`
	Name                *string  `json:"name"`
	FirstName           *string  `json:"first_name"`
	LastName            *string  `json:"last_name"`
	AvatarURL           *string  `json:"avatar_url"`
	EventApprovedCount  *int     `json:"event_approved_count"`
	EventCheckedInCount *int     `json:"event_checked_in_count"`
	RevenueUSDCents     *int64   `json:"revenue_usd_cents"`
	Tags                []string `json:"tags"`
	MembershipTierID    *string  `json:"membership_tier_id"`
	MembershipStatus    *string  `json:"membership_status"`
}

// eventEntry is an entry of /calendar/list-events.
type eventEntry struct {
	APIID string          `json:"api_id"`
	Event json.RawMessage `json:"event"`
}

type Event struct {
	APIID             string          `json:"api_id"`
	Name              string          `json:"name"`
	Description       *string         `json:"description"`
	Slug              *string         `json:"slug"`
	URL               *string         `json:"url"`
	CoverURL          *string         `json:"cover_url"`
	StartAt           *string         `json:"start_at"`
	EndAt             *string         `json:"end_at"`
	Timezone          *string         `json:"timezone"`
	MeetingURL        *string         `json:"meeting_url"`
	GeoAddress        *GeoAddress     `json:"geo_address_json"`
	GeoLatitude       flexFloat       `json:"geo_latitude"`
	GeoLongitude      flexFloat       `json:"geo_longitude"`
	GuestLimit        *int            `json:"guest_limit"`
	RegistrationCount *int            `json:"registration_count"`
	Hosts             json.RawMessage `json:"hosts"`
}

type GeoAddress struct {
	FullAddress *string `json:"full_address"`
	Address     *string `json:"address"`
	City        *string `json:"city"`
	Region      *string `json:"region"`
	Country     *string `json:"country"`
}

// flexFloat accepts a JSON number or a numeric string; the platform sends
// coordinates as strings. Unparseable values leave Valid false.
type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "" || s == "null" {
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	f.Value, f.Valid = v, true
	return nil
}
