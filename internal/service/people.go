package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"calsync/internal/domain"
	"calsync/internal/metrics"
)

// PeopleReconciler brings a calendar's local people in line with the
// platform. Each person is written on its own; a crash mid-run leaves the
// rows written so far intact and the next run picks up the rest.
type PeopleReconciler struct {
	source    Source
	people    PersonStore
	calendars CalendarStore
	logger    *slog.Logger
	now       func() time.Time
}

func NewPeopleReconciler(source Source, people PersonStore, calendars CalendarStore, logger *slog.Logger) *PeopleReconciler {
	return &PeopleReconciler{
		source:    source,
		people:    people,
		calendars: calendars,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *PeopleReconciler) Reconcile(ctx context.Context, cal *domain.Calendar) (domain.EntityStats, error) {
	var stats domain.EntityStats

	records, err := r.source.ListAllPeople(ctx, cal.ExternalID)
	if err != nil {
		return stats, fmt.Errorf("fetch people: %w", err)
	}
	stats.Found = len(records)

	for _, rec := range records {
		person := domain.NewPerson(cal.ID, rec, r.now())

		created, err := r.people.Upsert(ctx, person)
		if err != nil {
			return stats, fmt.Errorf("upsert person %s: %w", rec.ExternalID, err)
		}

		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}

	if err := r.calendars.UpdateTotalPeople(ctx, cal.ID, stats.Found); err != nil {
		return stats, fmt.Errorf("update total people: %w", err)
	}

	metrics.RecordsReconciled.WithLabelValues("person", "created").Add(float64(stats.Created))
	metrics.RecordsReconciled.WithLabelValues("person", "updated").Add(float64(stats.Updated))

	r.logger.Debug("people reconciled",
		"calendar", cal.Slug,
		"found", stats.Found,
		"created", stats.Created,
		"updated", stats.Updated,
	)

	return stats, nil
}
