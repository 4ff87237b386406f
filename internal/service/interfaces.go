package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"calsync/internal/domain"
)

// Source is the event platform client. Both listings paginate to exhaustion.
type Source interface {
	ListAllPeople(ctx context.Context, calendarExternalID string) ([]domain.PersonRecord, error)
	ListAllEvents(ctx context.Context, calendarExternalID string) ([]domain.EventRecord, error)
}

type CalendarStore interface {
	GetByID(ctx context.Context, id string) (*domain.Calendar, error)
	ListActive(ctx context.Context) ([]domain.Calendar, error)
	UpdateTotalPeople(ctx context.Context, id string, total int) error
	UpdateTotalEvents(ctx context.Context, id string, total int) error
	// UpdateSyncStatus leaves last_sync_at untouched when syncedAt is nil.
	UpdateSyncStatus(ctx context.Context, id string, status domain.SyncStatus, syncedAt *time.Time) error
}

type PersonStore interface {
	// Upsert writes by (calendar_id, external_id) and reports whether a row
	// was inserted. It never changes user_id of an existing row.
	Upsert(ctx context.Context, person *domain.Person) (bool, error)
	ListUnlinked(ctx context.Context) ([]domain.Person, error)
	// LinkUser sets user_id only if it is still null.
	LinkUser(ctx context.Context, personID, userID string) (bool, error)
}

type EventStore interface {
	// Upsert writes by (source_type, external_id) and reports whether a row
	// was inserted.
	Upsert(ctx context.Context, event *domain.Event) (bool, error)
}

type SyncRunStore interface {
	Create(ctx context.Context, run *domain.SyncRun) error
	// Finish moves a running run to its terminal status.
	Finish(ctx context.Context, run *domain.SyncRun) error
}

type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	PublishSyncRun(ctx context.Context, calendar *domain.Calendar, run *domain.SyncRun) error
	Close() error
}
