package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"calsync/internal/domain"
	"calsync/testdata/utils"
)

func TestPrintFleet(t *testing.T) {
	fleet := &domain.FleetResult{
		Results: []domain.CalendarResult{
			{CalendarSlug: "lima-devs", Result: &domain.SyncResult{
				Success:    true,
				Stats:      domain.SyncStats{People: domain.EntityStats{Found: 3, Created: 1, Updated: 2}},
				DurationMs: 1200,
			}},
			{CalendarSlug: "cusco-ai", Result: &domain.SyncResult{
				Err: errors.New("fetch people: luma api error: status 401: unauthorized"),
			}},
		},
		Totals:   domain.FleetTotals{PeopleFound: 3, PeopleCreated: 1, PeopleUpdated: 2, PeopleLinked: 1},
		LinkErr:  errors.New("list unlinked people: timeout"),
		Duration: 2 * time.Second,
	}

	var buf bytes.Buffer
	printFleet(&buf, fleet)
	out := buf.String()

	assert.Contains(t, out, "lima-devs")
	assert.Contains(t, out, "3/1/2")
	assert.Contains(t, out, "1.2s")
	assert.Contains(t, out, "status 401")
	assert.Contains(t, out, "calendars: 2, failed: 1")
	assert.Contains(t, out, "people linked: 1")
	assert.Contains(t, out, "linking failed: list unlinked people: timeout")
	assert.Equal(t, 1, countFailed(fleet))
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, "c1", &domain.SyncResult{Err: domain.ErrCalendarNotFound})
	assert.Equal(t, "calendar c1 failed (run -): calendar not found\n", buf.String())

	buf.Reset()
	printResult(&buf, "c1", &domain.SyncResult{
		Success:    true,
		SyncRunID:  "r1",
		DurationMs: 42,
		Stats:      domain.SyncStats{Events: domain.EntityStats{Found: 5, Created: 5}},
	})
	assert.Contains(t, buf.String(), "calendar c1 synced (run r1) in 42ms")
	assert.Contains(t, buf.String(), "events: 5/5/0")
}

func TestPrintRuns(t *testing.T) {
	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	printRuns(&buf, []domain.SyncRun{
		{
			ID:          "r1",
			CalendarID:  "c1",
			Status:      domain.SyncStatusCompleted,
			TriggeredBy: domain.TriggerScheduled,
			StartedAt:   started,
			DurationMs:  utils.Ptr(int64(1500)),
			PeopleFound: 4,
		},
		{
			ID:           "r2",
			CalendarID:   "c1",
			Status:       domain.SyncStatusRunning,
			TriggeredBy:  domain.TriggerManual,
			StartedAt:    started,
			ErrorMessage: utils.Ptr("boom"),
		},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], "2026-03-14T09:00:00Z")
	assert.Contains(t, lines[1], "1.5s")
	assert.Contains(t, lines[1], "4/0/0")
	assert.Contains(t, lines[2], "running")
	assert.Contains(t, lines[2], "boom")
}

func TestPrintCalendars(t *testing.T) {
	status := domain.SyncStatusFailed

	var buf bytes.Buffer
	printCalendars(&buf, []domain.Calendar{
		{Slug: "lima-devs", ID: "c1", ExternalID: "cal-1", IsActive: true, LastSyncStatus: &status, TotalPeople: 7},
	})

	out := buf.String()
	assert.Contains(t, out, "lima-devs")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "true")
}
