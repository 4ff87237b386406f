//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"calsync/internal/config"
	"calsync/internal/domain"
	"calsync/internal/service"
	"calsync/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB

	calendars *CalendarStore
	people    *PersonStore
	events    *EventStore
	runs      *SyncRunStore
	users     *UserStore
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_users.up.sql"),
			filepath.Join(migrationsPath, "002_create_external_calendars.up.sql"),
			filepath.Join(migrationsPath, "003_create_external_people.up.sql"),
			filepath.Join(migrationsPath, "004_create_external_events.up.sql"),
			filepath.Join(migrationsPath, "005_create_external_sync_runs.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	s.calendars = NewCalendarStore(db)
	s.people = NewPersonStore(db)
	s.events = NewEventStore(db)
	s.runs = NewSyncRunStore(db)
	s.users = NewUserStore(db)
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM external_sync_runs")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM external_events")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM external_people")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM external_calendars")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM users")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) createCalendar(slug string) *domain.Calendar {
	cal := &domain.Calendar{
		ExternalID: "cal-" + slug,
		Slug:       slug,
		Name:       slug,
		IsActive:   true,
	}
	s.Require().NoError(s.calendars.Create(s.ctx, cal))
	return cal
}

func (s *PostgresIntegrationSuite) createUser(email string) string {
	id := uuid.NewString()
	_, err := s.db.ExecContext(s.ctx, "INSERT INTO users (id, email) VALUES ($1, $2)", id, email)
	s.Require().NoError(err)
	return id
}

func (s *PostgresIntegrationSuite) count(query string, args ...any) int {
	var n int
	s.Require().NoError(s.db.GetContext(s.ctx, &n, query, args...))
	return n
}

func (s *PostgresIntegrationSuite) TestCalendarStore_GetByID() {
	cal := s.createCalendar("lima-devs")

	got, err := s.calendars.GetByID(s.ctx, cal.ID)
	s.Require().NoError(err)
	s.Equal("lima-devs", got.Slug)
	s.Equal(domain.SourceLuma, got.SourceType)
	s.True(got.IsActive)
	s.Nil(got.LastSyncAt)
	s.Nil(got.LastSyncStatus)

	_, err = s.calendars.GetByID(s.ctx, uuid.NewString())
	s.ErrorIs(err, domain.ErrCalendarNotFound)

	_, err = s.calendars.GetByID(s.ctx, "not-a-uuid")
	s.ErrorIs(err, domain.ErrCalendarNotFound)
}

func (s *PostgresIntegrationSuite) TestCalendarStore_ListActive() {
	active := s.createCalendar("active")
	inactive := s.createCalendar("inactive")
	s.Require().NoError(s.calendars.SetActive(s.ctx, inactive.ID, false))

	calendars, err := s.calendars.ListActive(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(calendars, 1)
	s.Equal(active.ID, calendars[0].ID)

	all, err := s.calendars.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *PostgresIntegrationSuite) TestCalendarStore_UpdateSyncStatus() {
	cal := s.createCalendar("lima-devs")
	syncedAt := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.calendars.UpdateSyncStatus(s.ctx, cal.ID, domain.SyncStatusCompleted, &syncedAt))
	s.Require().NoError(s.calendars.UpdateSyncStatus(s.ctx, cal.ID, domain.SyncStatusFailed, nil))

	got, err := s.calendars.GetByID(s.ctx, cal.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.LastSyncStatus)
	s.Equal(domain.SyncStatusFailed, *got.LastSyncStatus)
	s.Require().NotNil(got.LastSyncAt)
	s.WithinDuration(syncedAt, *got.LastSyncAt, time.Millisecond)

	err = s.calendars.UpdateTotalPeople(s.ctx, uuid.NewString(), 3)
	s.ErrorIs(err, domain.ErrCalendarNotFound)
}

func (s *PostgresIntegrationSuite) TestPersonStore_UpsertIsIdempotent() {
	cal := s.createCalendar("lima-devs")
	now := time.Now().UTC().Truncate(time.Microsecond)

	person := domain.NewPerson(cal.ID, domain.PersonRecord{
		ExternalID: "usr-1",
		Email:      "ana@example.com",
		Name:       utils.Ptr("Ana"),
		Tags:       []string{"speaker", "organizer"},
	}, now)

	created, err := s.people.Upsert(s.ctx, person)
	s.Require().NoError(err)
	s.True(created)
	firstID := person.ID

	again := domain.NewPerson(cal.ID, domain.PersonRecord{
		ExternalID: "usr-1",
		Email:      "ana@example.com",
		Name:       utils.Ptr("Ana María"),
	}, now.Add(time.Hour))

	created, err = s.people.Upsert(s.ctx, again)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(firstID, again.ID)

	s.Equal(1, s.count("SELECT COUNT(*) FROM external_people"))

	got, err := s.people.GetByExternalID(s.ctx, cal.ID, "usr-1")
	s.Require().NoError(err)
	s.Equal("Ana María", *got.Name)
	s.Empty(got.Tags)
	s.WithinDuration(now.Add(time.Hour), got.LastSeenAt, time.Millisecond)
}

func (s *PostgresIntegrationSuite) TestPersonStore_ScopedPerCalendar() {
	calA := s.createCalendar("a")
	calB := s.createCalendar("b")
	now := time.Now()

	rec := domain.PersonRecord{ExternalID: "usr-1", Email: "ana@example.com"}

	created, err := s.people.Upsert(s.ctx, domain.NewPerson(calA.ID, rec, now))
	s.Require().NoError(err)
	s.True(created)

	created, err = s.people.Upsert(s.ctx, domain.NewPerson(calB.ID, rec, now))
	s.Require().NoError(err)
	s.True(created)

	s.Equal(2, s.count("SELECT COUNT(*) FROM external_people WHERE external_id = 'usr-1'"))
}

func (s *PostgresIntegrationSuite) TestPersonStore_UpsertKeepsLink() {
	cal := s.createCalendar("lima-devs")
	userID := s.createUser("ana@example.com")
	now := time.Now()

	person := domain.NewPerson(cal.ID, domain.PersonRecord{ExternalID: "usr-1", Email: "ana@example.com"}, now)
	_, err := s.people.Upsert(s.ctx, person)
	s.Require().NoError(err)

	ok, err := s.people.LinkUser(s.ctx, person.ID, userID)
	s.Require().NoError(err)
	s.True(ok)

	_, err = s.people.Upsert(s.ctx, domain.NewPerson(cal.ID, domain.PersonRecord{ExternalID: "usr-1", Email: "ana@example.com"}, now))
	s.Require().NoError(err)

	got, err := s.people.GetByExternalID(s.ctx, cal.ID, "usr-1")
	s.Require().NoError(err)
	s.Require().NotNil(got.UserID)
	s.Equal(userID, *got.UserID)
}

func (s *PostgresIntegrationSuite) TestPersonStore_LinkUserOnlyOnce() {
	cal := s.createCalendar("lima-devs")
	first := s.createUser("ana@example.com")
	second := s.createUser("other@example.com")

	person := domain.NewPerson(cal.ID, domain.PersonRecord{ExternalID: "usr-1", Email: "ana@example.com"}, time.Now())
	_, err := s.people.Upsert(s.ctx, person)
	s.Require().NoError(err)

	unlinked, err := s.people.ListUnlinked(s.ctx)
	s.Require().NoError(err)
	s.Len(unlinked, 1)

	ok, err := s.people.LinkUser(s.ctx, person.ID, first)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.people.LinkUser(s.ctx, person.ID, second)
	s.Require().NoError(err)
	s.False(ok)

	unlinked, err = s.people.ListUnlinked(s.ctx)
	s.Require().NoError(err)
	s.Empty(unlinked)
}

func (s *PostgresIntegrationSuite) TestEventStore_UpsertIsIdempotent() {
	cal := s.createCalendar("lima-devs")
	start := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	now := time.Now().UTC().Truncate(time.Microsecond)

	rec := domain.EventRecord{
		ExternalID: "evt-1",
		Name:       "Go Night",
		StartAt:    &start,
		Address:    &domain.Address{FullAddress: utils.Ptr("Av. Larco 123"), City: utils.Ptr("Lima")},
		Latitude:   utils.Ptr(-12.12),
		Raw:        []byte(`{"api_id":"evt-1","name":"Go Night"}`),
	}

	event := service.BuildEvent(cal.ID, rec, now)
	created, err := s.events.Upsert(s.ctx, event)
	s.Require().NoError(err)
	s.True(created)

	created, err = s.events.Upsert(s.ctx, service.BuildEvent(cal.ID, rec, now.Add(time.Hour)))
	s.Require().NoError(err)
	s.False(created)

	s.Equal(1, s.count("SELECT COUNT(*) FROM external_events"))

	got, err := s.events.GetByExternalID(s.ctx, domain.SourceLuma, "evt-1")
	s.Require().NoError(err)
	s.Equal(event.ContentHash, got.ContentHash)
	s.Nil(got.EndsAt)
	s.Equal("Lima", *got.City)
	s.InDelta(-12.12, *got.Latitude, 1e-9)
	s.JSONEq(`{"api_id":"evt-1","name":"Go Night"}`, string(got.RawData))
	s.JSONEq(`[]`, string(got.Hosts))
	s.WithinDuration(now.Add(time.Hour), got.LastSeenAt, time.Millisecond)
}

func (s *PostgresIntegrationSuite) TestEventStore_SharedAcrossCalendars() {
	calA := s.createCalendar("a")
	calB := s.createCalendar("b")
	now := time.Now()

	rec := domain.EventRecord{ExternalID: "evt-1", Name: "Shared"}

	created, err := s.events.Upsert(s.ctx, service.BuildEvent(calA.ID, rec, now))
	s.Require().NoError(err)
	s.True(created)

	created, err = s.events.Upsert(s.ctx, service.BuildEvent(calB.ID, rec, now))
	s.Require().NoError(err)
	s.False(created)

	got, err := s.events.GetByExternalID(s.ctx, domain.SourceLuma, "evt-1")
	s.Require().NoError(err)
	s.Equal(calA.ID, got.CalendarID)

	n, err := s.events.CountByCalendar(s.ctx, calA.ID)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresIntegrationSuite) TestSyncRunStore_FinishesOnce() {
	cal := s.createCalendar("lima-devs")
	started := time.Now().UTC().Truncate(time.Microsecond)

	run := &domain.SyncRun{
		ID:          uuid.NewString(),
		CalendarID:  cal.ID,
		SyncType:    domain.SyncTypeFull,
		Status:      domain.SyncStatusRunning,
		StartedAt:   started,
		TriggeredBy: domain.TriggerManual,
	}
	s.Require().NoError(s.runs.Create(s.ctx, run))

	completed := started.Add(2 * time.Second)
	run.Status = domain.SyncStatusFailed
	run.CompletedAt = &completed
	run.DurationMs = utils.Ptr(int64(2000))
	run.PeopleFound = 4
	run.ErrorMessage = utils.Ptr("fetch people: boom")
	run.ErrorDetails = []byte(`{"stage":"people","error":"boom"}`)
	s.Require().NoError(s.runs.Finish(s.ctx, run))

	run.Status = domain.SyncStatusCompleted
	err := s.runs.Finish(s.ctx, run)
	s.ErrorIs(err, domain.ErrNotFound)

	got, err := s.runs.GetByID(s.ctx, run.ID)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusFailed, got.Status)
	s.Equal(4, got.PeopleFound)
	s.Equal(int64(2000), *got.DurationMs)
	s.Equal("fetch people: boom", *got.ErrorMessage)
	s.JSONEq(`{"stage":"people","error":"boom"}`, string(got.ErrorDetails))
	s.Equal(domain.TriggerManual, got.TriggeredBy)
}

func (s *PostgresIntegrationSuite) TestSyncRunStore_ListRecent() {
	calA := s.createCalendar("a")
	calB := s.createCalendar("b")
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i, calID := range []string{calA.ID, calB.ID, calA.ID} {
		s.Require().NoError(s.runs.Create(s.ctx, &domain.SyncRun{
			ID:          uuid.NewString(),
			CalendarID:  calID,
			SyncType:    domain.SyncTypeFull,
			Status:      domain.SyncStatusRunning,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			TriggeredBy: domain.TriggerScheduled,
		}))
	}

	runs, err := s.runs.ListRecent(s.ctx, "", 2)
	s.Require().NoError(err)
	s.Require().Len(runs, 2)
	s.Equal(calA.ID, runs[0].CalendarID)
	s.Equal(calB.ID, runs[1].CalendarID)
	s.Nil(runs[0].ErrorDetails)

	runs, err = s.runs.ListRecent(s.ctx, calA.ID, 10)
	s.Require().NoError(err)
	s.Len(runs, 2)
}

func (s *PostgresIntegrationSuite) TestUserStore_FindByEmail() {
	id := s.createUser("ana@example.com")

	user, err := s.users.FindByEmail(s.ctx, "ana@example.com")
	s.Require().NoError(err)
	s.Equal(id, user.ID)

	_, err = s.users.FindByEmail(s.ctx, "ANA@example.com")
	s.ErrorIs(err, domain.ErrUserNotFound)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	cal := s.createCalendar("lima-devs")

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		return s.calendars.UpdateTotalPeople(ctx, cal.ID, 7)
	})
	s.Require().NoError(err)

	got, err := s.calendars.GetByID(s.ctx, cal.ID)
	s.Require().NoError(err)
	s.Equal(7, got.TotalPeople)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	cal := s.createCalendar("lima-devs")
	syncedAt := time.Now()

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := s.calendars.UpdateSyncStatus(ctx, cal.ID, domain.SyncStatusCompleted, &syncedAt); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Error(err)

	got, err := s.calendars.GetByID(s.ctx, cal.ID)
	s.Require().NoError(err)
	s.Nil(got.LastSyncStatus)
	s.Nil(got.LastSyncAt)
}

// fakeSource serves fixed records for every calendar.
type fakeSource struct {
	people []domain.PersonRecord
	events []domain.EventRecord
	err    error
}

func (f *fakeSource) ListAllPeople(context.Context, string) ([]domain.PersonRecord, error) {
	return f.people, f.err
}

func (f *fakeSource) ListAllEvents(context.Context, string) ([]domain.EventRecord, error) {
	return f.events, f.err
}

func (s *PostgresIntegrationSuite) newSyncService(source service.Source) *service.SyncService {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return service.NewSyncService(
		source,
		s.calendars,
		s.people,
		s.events,
		s.runs,
		s.users,
		NewTransactionManager(s.db),
		nil,
		logger,
		config.SyncConfig{CalendarPacing: time.Millisecond},
	)
}

func (s *PostgresIntegrationSuite) TestSyncService_RepeatedSyncIsIdempotent() {
	cal := s.createCalendar("lima-devs")
	userID := s.createUser("ana@example.com")

	source := &fakeSource{
		people: []domain.PersonRecord{
			{ExternalID: "usr-1", Email: "ana@example.com"},
			{ExternalID: "usr-2", Email: "bo@example.com"},
		},
		events: []domain.EventRecord{
			{ExternalID: "evt-1", Name: "Go Night"},
		},
	}
	svc := s.newSyncService(source)

	first := svc.SyncCalendar(s.ctx, cal.ID, domain.TriggerManual)
	s.Require().True(first.Success, "first sync: %v", first.Err)
	s.Equal(domain.EntityStats{Found: 2, Created: 2}, first.Stats.People)

	second := svc.SyncCalendar(s.ctx, cal.ID, domain.TriggerManual)
	s.Require().True(second.Success, "second sync: %v", second.Err)
	s.Equal(domain.EntityStats{Found: 2, Updated: 2}, second.Stats.People)
	s.Equal(domain.EntityStats{Found: 1, Updated: 1}, second.Stats.Events)

	s.Equal(2, s.count("SELECT COUNT(*) FROM external_people"))
	s.Equal(1, s.count("SELECT COUNT(*) FROM external_events"))
	s.Equal(2, s.count("SELECT COUNT(*) FROM external_sync_runs WHERE status = 'completed'"))

	linked, err := svc.LinkExternalPeopleToUsers(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, linked)
	s.Equal(1, s.count("SELECT COUNT(*) FROM external_people WHERE user_id = $1", userID))

	got, err := s.calendars.GetByID(s.ctx, cal.ID)
	s.Require().NoError(err)
	s.Equal(2, got.TotalPeople)
	s.Equal(1, got.TotalEvents)
	s.Equal(domain.SyncStatusCompleted, *got.LastSyncStatus)
}

func (s *PostgresIntegrationSuite) TestSyncService_FailedRunIsRecorded() {
	cal := s.createCalendar("lima-devs")
	svc := s.newSyncService(&fakeSource{err: errors.New("upstream down")})

	result := svc.SyncCalendar(s.ctx, cal.ID, domain.TriggerScheduled)
	s.False(result.Success)

	run, err := s.runs.GetByID(s.ctx, result.SyncRunID)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusFailed, run.Status)
	s.NotNil(run.CompletedAt)
	s.Contains(*run.ErrorMessage, "upstream down")

	var details map[string]any
	s.Require().NoError(json.Unmarshal(run.ErrorDetails, &details))
	s.Equal("people", details["stage"])

	got, err := s.calendars.GetByID(s.ctx, cal.ID)
	s.Require().NoError(err)
	s.Equal(domain.SyncStatusFailed, *got.LastSyncStatus)
	s.Nil(got.LastSyncAt)
	s.Equal(0, s.count("SELECT COUNT(*) FROM external_sync_runs WHERE status = 'running'"))
}
