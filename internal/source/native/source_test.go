package native

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/leits/MeetingBar-sub001/internal/core"
)

type fakeStore struct {
	accessErr error
	calendars []core.Calendar
	events    []core.Event
	eventsErr error

	reloads int
	gotIDs  []string
	gotFrom time.Time
	gotTo   time.Time
	changed chan struct{}
}

func (f *fakeStore) RequestAccess(ctx context.Context) error { return f.accessErr }

func (f *fakeStore) Calendars(ctx context.Context) ([]core.Calendar, error) {
	return f.calendars, nil
}

func (f *fakeStore) Events(ctx context.Context, calendarIDs []string, from, to time.Time) ([]core.Event, error) {
	f.gotIDs = calendarIDs
	f.gotFrom, f.gotTo = from, to
	return f.events, f.eventsErr
}

func (f *fakeStore) Reload()                  { f.reloads++ }
func (f *fakeStore) Changed() <-chan struct{} { return f.changed }

func testSource(store *fakeStore) *Source {
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSignInDeniedAccess(t *testing.T) {
	s := testSource(&fakeStore{accessErr: errors.New("denied by user")})

	err := s.SignIn(context.Background())
	var authErr *core.AuthError
	if !errors.As(err, &authErr) || authErr.Reason != core.AuthNotSignedIn {
		t.Fatalf("SignIn = %v, want AuthError{NotSignedIn}", err)
	}

	if err := testSource(&fakeStore{}).SignIn(context.Background()); err != nil {
		t.Errorf("granted access still failed: %v", err)
	}
}

func TestFetchEventsPassesCalendarIDs(t *testing.T) {
	store := &fakeStore{events: []core.Event{{ID: "e1"}}}
	s := testSource(store)

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	events, err := s.FetchEvents(context.Background(), []core.Calendar{{ID: "a"}, {ID: "b"}}, from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != "e1" {
		t.Fatalf("events = %v", events)
	}
	if len(store.gotIDs) != 2 || store.gotIDs[0] != "a" || store.gotIDs[1] != "b" {
		t.Errorf("calendar ids = %v", store.gotIDs)
	}
	if !store.gotFrom.Equal(from) || !store.gotTo.Equal(to) {
		t.Errorf("range = %v..%v", store.gotFrom, store.gotTo)
	}
}

func TestFetchEventsWrapsStoreFailure(t *testing.T) {
	s := testSource(&fakeStore{eventsErr: errors.New("database locked")})

	_, err := s.FetchEvents(context.Background(), nil, time.Now(), time.Now())
	var srcErr *core.SourceError
	if !errors.As(err, &srcErr) || srcErr.StatusCode != 0 {
		t.Fatalf("err = %v, want SourceError without status code", err)
	}
}

func TestRefreshSourcesReloads(t *testing.T) {
	store := &fakeStore{}
	s := testSource(store)
	s.RefreshSources(context.Background())
	if store.reloads != 1 {
		t.Errorf("reloads = %d, want 1", store.reloads)
	}
}
