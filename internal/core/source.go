package core

import (
	"context"
	"time"
)

// EventSource abstracts over calendar backends. Exactly one implementation
// is active at a time, selected by the configured provider; the
// orchestrator only ever depends on this interface.
//
// None of the operations retry internally. Retry policy belongs to the
// caller: a failed fetch cycle simply keeps the previous snapshot and the
// next trigger starts over.
type EventSource interface {
	// SignIn establishes or refreshes a valid session. Idempotent if the
	// source is already authorized.
	SignIn(ctx context.Context) error

	// SignOut revokes the session (best effort) and wipes local
	// credentials. It never fails the caller, even when revocation does.
	SignOut(ctx context.Context)

	// RefreshSources invalidates any backend-side caches. A no-op is a
	// valid implementation.
	RefreshSources(ctx context.Context)

	// FetchCalendars returns all calendars the account has access to.
	FetchCalendars(ctx context.Context) ([]Calendar, error)

	// FetchEvents returns the events of the given calendars within
	// [from, to), one backend query per calendar.
	FetchEvents(ctx context.Context, calendars []Calendar, from, to time.Time) ([]Event, error)
}
