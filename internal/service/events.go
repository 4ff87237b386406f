package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"calsync/internal/contenthash"
	"calsync/internal/domain"
	"calsync/internal/metrics"
)

// EventReconciler upserts a calendar's events. Events are keyed globally by
// (source_type, external_id), so two calendars listing the same event share
// one row.
type EventReconciler struct {
	source    Source
	events    EventStore
	calendars CalendarStore
	logger    *slog.Logger
	now       func() time.Time
}

func NewEventReconciler(source Source, events EventStore, calendars CalendarStore, logger *slog.Logger) *EventReconciler {
	return &EventReconciler{
		source:    source,
		events:    events,
		calendars: calendars,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *EventReconciler) Reconcile(ctx context.Context, cal *domain.Calendar) (domain.EntityStats, error) {
	var stats domain.EntityStats

	records, err := r.source.ListAllEvents(ctx, cal.ExternalID)
	if err != nil {
		return stats, fmt.Errorf("fetch events: %w", err)
	}
	stats.Found = len(records)

	for _, rec := range records {
		// The hash is always recomputed and the row always written, so
		// last_seen_at stays fresh even when nothing else changed.
		event := BuildEvent(cal.ID, rec, r.now())

		created, err := r.events.Upsert(ctx, event)
		if err != nil {
			return stats, fmt.Errorf("upsert event %s: %w", rec.ExternalID, err)
		}

		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}

	if err := r.calendars.UpdateTotalEvents(ctx, cal.ID, stats.Found); err != nil {
		return stats, fmt.Errorf("update total events: %w", err)
	}

	metrics.RecordsReconciled.WithLabelValues("event", "created").Add(float64(stats.Created))
	metrics.RecordsReconciled.WithLabelValues("event", "updated").Add(float64(stats.Updated))

	r.logger.Debug("events reconciled",
		"calendar", cal.Slug,
		"found", stats.Found,
		"created", stats.Created,
		"updated", stats.Updated,
	)

	return stats, nil
}

// BuildEvent derives the stored row from an upstream record.
func BuildEvent(calendarID string, rec domain.EventRecord, seenAt time.Time) *domain.Event {
	e := &domain.Event{
		SourceType:        domain.SourceLuma,
		ExternalID:        rec.ExternalID,
		CalendarID:        calendarID,
		Name:              rec.Name,
		Description:       rec.Description,
		Slug:              rec.Slug,
		URL:               rec.URL,
		CoverURL:          rec.CoverURL,
		StartsAt:          rec.StartAt,
		EndsAt:            rec.EndAt,
		Timezone:          rec.Timezone,
		IsVirtual:         rec.MeetingURL != nil && *rec.MeetingURL != "",
		Latitude:          rec.Latitude,
		Longitude:         rec.Longitude,
		MeetingURL:        rec.MeetingURL,
		Capacity:          rec.GuestLimit,
		RegistrationCount: rec.RegistrationCount,
		Hosts:             rec.Hosts,
		RawData:           rec.Raw,
		LastSeenAt:        seenAt,
	}

	if rec.Address != nil {
		e.Address = rec.Address.FullAddress
		e.City = rec.Address.City
		e.Region = rec.Address.Region
		e.Country = rec.Address.Country
	}

	e.ContentHash = contenthash.Event(contenthash.Fields{
		Name:        rec.Name,
		Description: rec.Description,
		StartAt:     rec.StartAt,
		EndAt:       rec.EndAt,
		Venue:       e.Address,
	})

	return e
}
