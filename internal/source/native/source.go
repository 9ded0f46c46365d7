// Package native adapts an on-device calendar store to the event source
// contract. The store itself (EventKit on macOS, a D-Bus service on Linux)
// is supplied by the embedding application.
package native

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leits/MeetingBar-sub001/internal/core"
)

// SystemStore is the on-device calendar database. Implementations wrap a
// platform framework; all of them are expected to be safe for concurrent
// use.
type SystemStore interface {
	// RequestAccess prompts the user for calendar permission if it was
	// never granted. It returns an error when access is denied.
	RequestAccess(ctx context.Context) error

	Calendars(ctx context.Context) ([]core.Calendar, error)
	Events(ctx context.Context, calendarIDs []string, from, to time.Time) ([]core.Event, error)

	// Reload asks the store to re-read its backing database.
	Reload()

	// Changed delivers a signal whenever the backing database changes.
	// The channel is never closed.
	Changed() <-chan struct{}
}

// Source implements core.EventSource over a SystemStore. There is no
// credential lifecycle: sign-in is the platform permission prompt and
// sign-out has nothing to revoke.
type Source struct {
	store  SystemStore
	logger *slog.Logger
}

func New(store SystemStore, logger *slog.Logger) *Source {
	return &Source{store: store, logger: logger}
}

// Changed exposes the store's change signal so the orchestrator can
// refresh when the on-device database is edited behind our back.
func (s *Source) Changed() <-chan struct{} { return s.store.Changed() }

func (s *Source) SignIn(ctx context.Context) error {
	if err := s.store.RequestAccess(ctx); err != nil {
		return &core.AuthError{Reason: core.AuthNotSignedIn, Err: fmt.Errorf("calendar access: %w", err)}
	}
	return nil
}

func (s *Source) SignOut(ctx context.Context) {}

func (s *Source) RefreshSources(ctx context.Context) {
	s.store.Reload()
}

func (s *Source) FetchCalendars(ctx context.Context) ([]core.Calendar, error) {
	calendars, err := s.store.Calendars(ctx)
	if err != nil {
		return nil, &core.SourceError{Err: fmt.Errorf("system store calendars: %w", err)}
	}
	return calendars, nil
}

func (s *Source) FetchEvents(ctx context.Context, calendars []core.Calendar, from, to time.Time) ([]core.Event, error) {
	ids := make([]string, 0, len(calendars))
	for _, cal := range calendars {
		ids = append(ids, cal.ID)
	}
	events, err := s.store.Events(ctx, ids, from, to)
	if err != nil {
		return nil, &core.SourceError{Err: fmt.Errorf("system store events: %w", err)}
	}
	return events, nil
}
