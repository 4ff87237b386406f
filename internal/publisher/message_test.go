package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/domain"
	"calsync/testdata/utils"
)

func TestNewSyncRunMessage_Completed(t *testing.T) {
	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	completed := started.Add(3 * time.Second)
	now := time.Date(2026, 3, 14, 4, 0, 4, 0, time.FixedZone("PET", -5*3600))

	cal := &domain.Calendar{ID: "c1", Slug: "lima-devs", ExternalID: "cal-123"}
	run := &domain.SyncRun{
		ID:            "r1",
		Status:        domain.SyncStatusCompleted,
		TriggeredBy:   domain.TriggerScheduled,
		StartedAt:     started,
		CompletedAt:   &completed,
		DurationMs:    utils.Ptr(int64(3000)),
		PeopleFound:   10,
		PeopleCreated: 2,
		PeopleUpdated: 8,
		EventsFound:   3,
		EventsUpdated: 3,
	}

	msg := NewSyncRunMessage(cal, run, now)

	assert.Equal(t, "sync_run.completed", msg.Event)
	assert.Equal(t, CalendarRef{ID: "c1", Slug: "lima-devs", ExternalID: "cal-123"}, msg.Calendar)
	assert.Equal(t, "r1", msg.Run.ID)
	assert.Equal(t, "scheduled", msg.Run.TriggeredBy)
	assert.Equal(t, 10, msg.Run.PeopleFound)
	assert.Equal(t, time.UTC, msg.Timestamp.Location())

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	runJSON := decoded["run"].(map[string]any)
	assert.NotContains(t, runJSON, "error_message")
	assert.NotContains(t, runJSON, "error_details")
	assert.Equal(t, float64(3000), runJSON["duration_ms"])
}

func TestNewSyncRunMessage_Failed(t *testing.T) {
	cal := &domain.Calendar{ID: "c1", Slug: "lima-devs"}
	run := &domain.SyncRun{
		ID:           "r2",
		Status:       domain.SyncStatusFailed,
		TriggeredBy:  domain.TriggerManual,
		ErrorMessage: utils.Ptr("fetch people: boom"),
		ErrorDetails: json.RawMessage(`{"stage":"people"}`),
	}

	msg := NewSyncRunMessage(cal, run, time.Now())

	assert.Equal(t, "sync_run.failed", msg.Event)

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded SyncRunMessage
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "fetch people: boom", *decoded.Run.ErrorMessage)
	assert.JSONEq(t, `{"stage":"people"}`, string(decoded.Run.ErrorDetails))
}
