package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"calsync/internal/config"
	"calsync/internal/domain"
	"calsync/internal/metrics"
)

// finishTimeout bounds the terminal run-log write, which must happen even
// after the caller's context is canceled.
const finishTimeout = 10 * time.Second

type SyncService struct {
	calendars CalendarStore
	runs      SyncRunStore
	txManager TransactionManager
	publisher Publisher
	people    *PeopleReconciler
	events    *EventReconciler
	linker    *Linker
	logger    *slog.Logger
	config    config.SyncConfig
	now       func() time.Time
}

func NewSyncService(
	source Source,
	calendars CalendarStore,
	people PersonStore,
	events EventStore,
	runs SyncRunStore,
	users UserDirectory,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		calendars: calendars,
		runs:      runs,
		txManager: txManager,
		publisher: publisher,
		people:    NewPeopleReconciler(source, people, calendars, logger),
		events:    NewEventReconciler(source, events, calendars, logger),
		linker:    NewLinker(people, users, logger),
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
}

// SyncCalendar runs a full sync of one calendar. Failures never escape as
// errors: they are recorded on the run row and reported in the result.
func (s *SyncService) SyncCalendar(ctx context.Context, calendarID string, trigger domain.Trigger) *domain.SyncResult {
	cal, err := s.calendars.GetByID(ctx, calendarID)
	if err != nil {
		s.logger.Error("cannot sync calendar", "calendar_id", calendarID, "error", err)
		return &domain.SyncResult{Err: fmt.Errorf("get calendar %s: %w", calendarID, err)}
	}

	return s.syncCalendar(ctx, cal, trigger)
}

func (s *SyncService) syncCalendar(ctx context.Context, cal *domain.Calendar, trigger domain.Trigger) *domain.SyncResult {
	logger := s.logger.With("calendar", cal.Slug, "trigger", trigger)
	startTime := s.now()

	run := &domain.SyncRun{
		ID:          uuid.NewString(),
		CalendarID:  cal.ID,
		SyncType:    domain.SyncTypeFull,
		Status:      domain.SyncStatusRunning,
		StartedAt:   startTime,
		TriggeredBy: trigger,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		logger.Error("failed to open sync run", "error", err)
		return &domain.SyncResult{Err: fmt.Errorf("create sync run: %w", err)}
	}

	logger.Info("starting calendar sync", "sync_run_id", run.ID)

	result := &domain.SyncResult{SyncRunID: run.ID}

	stage, err := s.reconcile(ctx, cal, &result.Stats)

	completedAt := s.now()
	result.DurationMs = completedAt.Sub(startTime).Milliseconds()

	run.CompletedAt = &completedAt
	run.DurationMs = &result.DurationMs
	run.PeopleFound = result.Stats.People.Found
	run.PeopleCreated = result.Stats.People.Created
	run.PeopleUpdated = result.Stats.People.Updated
	run.EventsFound = result.Stats.Events.Found
	run.EventsCreated = result.Stats.Events.Created
	run.EventsUpdated = result.Stats.Events.Updated

	var syncedAt *time.Time
	if err != nil {
		msg := err.Error()
		run.Status = domain.SyncStatusFailed
		run.ErrorMessage = &msg
		run.ErrorDetails = errorDetails(stage, err)
		result.Err = err
	} else {
		run.Status = domain.SyncStatusCompleted
		syncedAt = &completedAt
		result.Success = true
	}

	if ferr := s.finish(ctx, cal, run, syncedAt); ferr != nil {
		logger.Error("failed to close sync run", "sync_run_id", run.ID, "error", ferr)
		if result.Err == nil {
			result.Err = fmt.Errorf("finish sync run: %w", ferr)
		}
		result.Success = false
	}

	metrics.SyncRunsTotal.WithLabelValues(string(run.Status), string(trigger)).Inc()
	metrics.SyncRunDuration.WithLabelValues(string(run.Status)).Observe(completedAt.Sub(startTime).Seconds())

	if s.publisher != nil {
		if perr := s.publisher.PublishSyncRun(ctx, cal, run); perr != nil {
			logger.Warn("failed to publish sync run", "sync_run_id", run.ID, "error", perr)
		}
	}

	if err != nil {
		logger.Error("calendar sync failed",
			"sync_run_id", run.ID,
			"stage", stage,
			"duration_ms", result.DurationMs,
			"error", err,
		)
	} else {
		logger.Info("calendar sync completed",
			"sync_run_id", run.ID,
			"people_found", run.PeopleFound,
			"people_created", run.PeopleCreated,
			"people_updated", run.PeopleUpdated,
			"events_found", run.EventsFound,
			"events_created", run.EventsCreated,
			"events_updated", run.EventsUpdated,
			"duration_ms", result.DurationMs,
		)
	}

	return result
}

// reconcile runs people then events and reports the stage that failed.
func (s *SyncService) reconcile(ctx context.Context, cal *domain.Calendar, stats *domain.SyncStats) (stage string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s reconciliation: %v", stage, r)
		}
	}()

	stage = "people"
	stats.People, err = s.people.Reconcile(ctx, cal)
	if err != nil {
		return stage, err
	}

	stage = "events"
	stats.Events, err = s.events.Reconcile(ctx, cal)
	if err != nil {
		return stage, err
	}

	return "", nil
}

// finish writes the terminal run row and the calendar status together.
func (s *SyncService) finish(ctx context.Context, cal *domain.Calendar, run *domain.SyncRun, syncedAt *time.Time) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.runs.Finish(txCtx, run); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		if err := s.calendars.UpdateSyncStatus(txCtx, cal.ID, run.Status, syncedAt); err != nil {
			return fmt.Errorf("update calendar status: %w", err)
		}
		return nil
	})
}

// upstreamError is implemented by event platform errors that carry an HTTP
// status and an error code.
type upstreamError interface {
	error
	UpstreamStatus() int
	UpstreamCode() string
}

func errorDetails(stage string, err error) json.RawMessage {
	details := map[string]any{
		"stage": stage,
		"error": err.Error(),
	}

	var chain []string
	for e := errors.Unwrap(err); e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	if len(chain) > 0 {
		details["causes"] = chain
	}

	var upstream upstreamError
	if errors.As(err, &upstream) {
		details["upstream_status"] = upstream.UpstreamStatus()
		details["upstream_code"] = upstream.UpstreamCode()
	}

	data, mErr := json.Marshal(details)
	if mErr != nil {
		return nil
	}
	return data
}

// SyncAllCalendars syncs every active calendar in turn and then links people
// to users once. A failing calendar does not stop the loop; only its own
// result entry records the failure.
func (s *SyncService) SyncAllCalendars(ctx context.Context, trigger domain.Trigger) (*domain.FleetResult, error) {
	startTime := s.now()

	calendars, err := s.calendars.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active calendars: %w", err)
	}

	s.logger.Info("starting fleet sync", "calendars", len(calendars), "trigger", trigger)

	fleet := &domain.FleetResult{
		Results: make([]domain.CalendarResult, 0, len(calendars)),
	}

	for i := range calendars {
		cal := &calendars[i]

		if i > 0 {
			if err := sleep(ctx, s.config.CalendarPacing); err != nil {
				fleet.Duration = s.now().Sub(startTime)
				return fleet, err
			}
		}

		result := s.syncCalendar(ctx, cal, trigger)
		fleet.Results = append(fleet.Results, domain.CalendarResult{
			CalendarSlug: cal.Slug,
			Result:       result,
		})

		if result.Success {
			fleet.Totals.Add(result.Stats)
		}
	}

	linked, err := s.linker.LinkUnlinkedPeople(ctx)
	if err != nil {
		s.logger.Error("identity linking failed", "error", err)
		fleet.LinkErr = err
	}
	fleet.Totals.PeopleLinked = linked
	fleet.Duration = s.now().Sub(startTime)

	succeeded := 0
	for _, r := range fleet.Results {
		if r.Result.Success {
			succeeded++
		}
	}

	s.logger.Info("fleet sync finished",
		"calendars", len(fleet.Results),
		"succeeded", succeeded,
		"failed", len(fleet.Results)-succeeded,
		"people_found", fleet.Totals.PeopleFound,
		"events_found", fleet.Totals.EventsFound,
		"people_linked", fleet.Totals.PeopleLinked,
		"duration", fleet.Duration,
	)

	return fleet, nil
}

// LinkExternalPeopleToUsers runs the identity linker on its own.
func (s *SyncService) LinkExternalPeopleToUsers(ctx context.Context) (int, error) {
	return s.linker.LinkUnlinkedPeople(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
