package domain

import (
	"encoding/json"
	"time"
)

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

type SyncType string

const (
	SyncTypeFull        SyncType = "full"
	SyncTypeIncremental SyncType = "incremental"
)

type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// SyncRun is one audit row per sync attempt of one calendar. It is created
// running and moved to a terminal status exactly once.
type SyncRun struct {
	ID            string          `db:"id"`
	CalendarID    string          `db:"calendar_id"`
	SyncType      SyncType        `db:"sync_type"`
	Status        SyncStatus      `db:"status"`
	StartedAt     time.Time       `db:"started_at"`
	CompletedAt   *time.Time      `db:"completed_at"`
	DurationMs    *int64          `db:"duration_ms"`
	PeopleFound   int             `db:"people_found"`
	PeopleCreated int             `db:"people_created"`
	PeopleUpdated int             `db:"people_updated"`
	EventsFound   int             `db:"events_found"`
	EventsCreated int             `db:"events_created"`
	EventsUpdated int             `db:"events_updated"`
	ErrorMessage  *string         `db:"error_message"`
	ErrorDetails  json.RawMessage `db:"error_details"`
	TriggeredBy   Trigger         `db:"triggered_by"`
}

// EntityStats holds the outcome of reconciling one entity type.
type EntityStats struct {
	Found   int
	Created int
	Updated int
}

// SyncStats holds statistics about a calendar sync.
type SyncStats struct {
	People EntityStats
	Events EntityStats
}

// SyncResult is what SyncCalendar reports. Err is set whenever Success is false.
type SyncResult struct {
	Success    bool
	SyncRunID  string
	Stats      SyncStats
	DurationMs int64
	Err        error
}

type CalendarResult struct {
	CalendarSlug string
	Result       *SyncResult
}

// FleetTotals aggregates stats over the calendars that synced successfully.
type FleetTotals struct {
	PeopleFound   int
	PeopleCreated int
	PeopleUpdated int
	EventsFound   int
	EventsCreated int
	EventsUpdated int
	PeopleLinked  int
}

func (t *FleetTotals) Add(s SyncStats) {
	t.PeopleFound += s.People.Found
	t.PeopleCreated += s.People.Created
	t.PeopleUpdated += s.People.Updated
	t.EventsFound += s.Events.Found
	t.EventsCreated += s.Events.Created
	t.EventsUpdated += s.Events.Updated
}

type FleetResult struct {
	Results []CalendarResult
	Totals  FleetTotals
	// LinkErr is set when the identity linker failed after the calendar loop.
	LinkErr  error
	Duration time.Duration
}
