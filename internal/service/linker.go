package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"calsync/internal/domain"
	"calsync/internal/metrics"
)

// Linker attaches external people to local users by exact email match. It
// runs across all calendars; people that never match are re-scanned on every
// pass.
type Linker struct {
	people PersonStore
	users  UserDirectory
	logger *slog.Logger
}

func NewLinker(people PersonStore, users UserDirectory, logger *slog.Logger) *Linker {
	return &Linker{
		people: people,
		users:  users,
		logger: logger,
	}
}

// LinkUnlinkedPeople returns how many people were linked. A lookup or write
// failure for one person is logged and skipped.
func (l *Linker) LinkUnlinkedPeople(ctx context.Context) (int, error) {
	unlinked, err := l.people.ListUnlinked(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unlinked people: %w", err)
	}

	linked := 0
	for _, p := range unlinked {
		if p.UserID != nil || p.Email == "" {
			continue
		}

		user, err := l.users.FindByEmail(ctx, p.Email)
		if errors.Is(err, domain.ErrUserNotFound) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return linked, ctx.Err()
			}
			l.logger.Warn("failed to look up user", "person_id", p.ID, "error", err)
			continue
		}

		ok, err := l.people.LinkUser(ctx, p.ID, user.ID)
		if err != nil {
			l.logger.Warn("failed to link person", "person_id", p.ID, "user_id", user.ID, "error", err)
			continue
		}
		if ok {
			linked++
		}
	}

	metrics.PeopleLinked.Add(float64(linked))

	l.logger.Info("linked external people",
		"scanned", len(unlinked),
		"linked", linked,
	)

	return linked, nil
}
