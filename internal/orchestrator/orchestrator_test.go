package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/leits/MeetingBar-sub001/internal/core"
	"github.com/leits/MeetingBar-sub001/internal/prefs"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu        sync.Mutex
	calendars []core.Calendar
	events    []core.Event
	calErr    error
	eventsErr error

	calendarFetches atomic.Int64
	eventFetches    atomic.Int64
	signIns         atomic.Int64
	signOuts        atomic.Int64

	gotCalendars []core.Calendar
	gotFrom      time.Time
	gotTo        time.Time

	// When set, FetchCalendars announces itself on started and blocks
	// until release is closed.
	started chan struct{}
	release chan struct{}
}

func (f *fakeSource) SignIn(ctx context.Context) error { f.signIns.Add(1); return nil }
func (f *fakeSource) SignOut(ctx context.Context)      { f.signOuts.Add(1) }
func (f *fakeSource) RefreshSources(ctx context.Context) {}

func (f *fakeSource) FetchCalendars(ctx context.Context) ([]core.Calendar, error) {
	f.calendarFetches.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calendars, f.calErr
}

func (f *fakeSource) FetchEvents(ctx context.Context, calendars []core.Calendar, from, to time.Time) ([]core.Event, error) {
	f.eventFetches.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotCalendars = calendars
	f.gotFrom, f.gotTo = from, to
	return f.events, f.eventsErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPrefs(t *testing.T, settings map[string]interface{}) *prefs.Prefs {
	t.Helper()
	v := viper.New()
	for key, value := range settings {
		v.Set(key, value)
	}
	return prefs.New(v, "", discardLogger())
}

func testOrchestrator(t *testing.T, source *fakeSource, settings map[string]interface{}) *Orchestrator {
	t.Helper()
	o, err := New(testPrefs(t, settings), func(string) (core.EventSource, error) {
		return source, nil
	}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	o.now = func() time.Time { return testNow }
	return o
}

func timed(id string, startOffset, duration time.Duration) core.Event {
	return core.Event{
		ID:            id,
		CalendarID:    "cal-a",
		Title:         id,
		Status:        core.StatusConfirmed,
		Start:         testNow.Add(startOffset),
		End:           testNow.Add(startOffset + duration),
		MeetingLink:   "https://meet.example/" + id,
		Participation: core.ResponseAccepted,
	}
}

func TestCyclePublishesFilteredSortedSnapshot(t *testing.T) {
	later := timed("later", 3*time.Hour, time.Hour)
	sooner := timed("sooner", time.Hour, time.Hour)
	declined := timed("declined", 2*time.Hour, time.Hour)
	declined.Participation = core.ResponseDeclined

	source := &fakeSource{
		calendars: []core.Calendar{{ID: "cal-a", Title: "Work"}, {ID: "cal-b", Title: "Home"}},
		events:    []core.Event{later, sooner, declined},
	}
	o := testOrchestrator(t, source, map[string]interface{}{
		"selected_calendars": []string{"cal-a"},
		"filters":            map[string]interface{}{"declined": "hide"},
	})

	o.cycle(context.Background())

	snap := o.Snapshot()
	if snap == nil {
		t.Fatal("no snapshot published")
	}
	if len(snap.Calendars) != 2 {
		t.Errorf("published %d calendars, want all fetched ones", len(snap.Calendars))
	}
	// Only the selected calendar was queried.
	if len(source.gotCalendars) != 1 || source.gotCalendars[0].ID != "cal-a" {
		t.Errorf("queried calendars = %v", source.gotCalendars)
	}
	// Declined hidden, remainder sorted by start.
	if len(snap.Events) != 2 || snap.Events[0].ID != "sooner" || snap.Events[1].ID != "later" {
		t.Errorf("published events = %v", ids(snap.Events))
	}
	if !snap.FetchedAt.Equal(testNow) {
		t.Errorf("FetchedAt = %v", snap.FetchedAt)
	}
}

func TestCycleWindowFollowsLookahead(t *testing.T) {
	source := &fakeSource{calendars: []core.Calendar{{ID: "cal-a"}}}
	o := testOrchestrator(t, source, map[string]interface{}{
		"selected_calendars": []string{"cal-a"},
		"lookahead":          "today_and_tomorrow",
	})

	o.cycle(context.Background())

	midnight := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !source.gotFrom.Equal(midnight) || !source.gotTo.Equal(midnight.AddDate(0, 0, 2)) {
		t.Errorf("window = %v..%v", source.gotFrom, source.gotTo)
	}
}

func TestCycleWithoutSelectionSkipsEventFetch(t *testing.T) {
	source := &fakeSource{calendars: []core.Calendar{{ID: "cal-a"}}}
	o := testOrchestrator(t, source, nil)

	o.cycle(context.Background())

	if source.eventFetches.Load() != 0 {
		t.Error("events fetched despite empty calendar selection")
	}
	snap := o.Snapshot()
	if snap == nil || len(snap.Calendars) != 1 || len(snap.Events) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCycleFailureRetainsPreviousSnapshot(t *testing.T) {
	source := &fakeSource{
		calendars: []core.Calendar{{ID: "cal-a"}},
		events:    []core.Event{timed("keep", time.Hour, time.Hour)},
	}
	o := testOrchestrator(t, source, map[string]interface{}{
		"selected_calendars": []string{"cal-a"},
	})

	o.cycle(context.Background())
	if o.Snapshot() == nil {
		t.Fatal("first cycle did not publish")
	}

	source.mu.Lock()
	source.eventsErr = errors.New("backend down")
	source.mu.Unlock()
	o.cycle(context.Background())

	snap := o.Snapshot()
	if snap == nil || len(snap.Events) != 1 || snap.Events[0].ID != "keep" {
		t.Errorf("failed cycle clobbered the snapshot: %+v", snap)
	}

	source.mu.Lock()
	source.eventsErr = nil
	source.calErr = errors.New("backend down")
	source.mu.Unlock()
	o.cycle(context.Background())

	if snap := o.Snapshot(); snap == nil || len(snap.Events) != 1 {
		t.Errorf("calendar failure clobbered the snapshot: %+v", snap)
	}
}

func TestRefreshCoalesces(t *testing.T) {
	source := &fakeSource{
		calendars: []core.Calendar{{ID: "cal-a"}},
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	o := testOrchestrator(t, source, map[string]interface{}{
		"refresh_interval": "0s",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	// Initial cycle is in flight; everything requested now must collapse
	// into a single follow-up cycle.
	<-source.started
	for i := 0; i < 5; i++ {
		o.Refresh()
	}
	source.release <- struct{}{}

	// The coalesced cycle runs next.
	<-source.started
	source.release <- struct{}{}

	// Nothing else is pending: the loop sits in select. Give a stray
	// cycle a chance to show up before counting.
	select {
	case <-source.started:
		t.Fatal("extra cycle ran, coalescing failed")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	// Unblock the loop if it raced into another cycle before cancel.
	close(source.release)
	<-done

	if got := source.calendarFetches.Load(); got != 2 {
		t.Errorf("ran %d cycles, want 2 (initial + coalesced)", got)
	}
}

func TestDismissalPruning(t *testing.T) {
	live := timed("live", time.Hour, time.Hour)
	moved := timed("moved", 2*time.Hour, time.Hour)
	source := &fakeSource{
		calendars: []core.Calendar{{ID: "cal-a"}},
		events:    []core.Event{live, moved},
	}
	o := testOrchestrator(t, source, map[string]interface{}{
		"selected_calendars": []string{"cal-a"},
	})

	o.Dismiss(live)
	o.Dismiss(core.Event{ID: "gone", End: testNow.Add(time.Hour)})
	staleEnd := testNow.Add(time.Minute)
	o.mu.Lock()
	o.dismissed["moved"] = core.Dismissal{EventID: "moved", End: staleEnd}
	o.mu.Unlock()

	o.cycle(context.Background())

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.dismissed["gone"]; ok {
		t.Error("dismissal of a vanished event survived pruning")
	}
	if _, ok := o.dismissed["live"]; !ok {
		t.Error("dismissal of a live future event was dropped")
	}
	got, ok := o.dismissed["moved"]
	if !ok {
		t.Fatal("dismissal of a rescheduled event was dropped")
	}
	if !got.End.Equal(moved.End) {
		t.Errorf("dismissal end = %v, want live end %v", got.End, moved.End)
	}
}

func TestNextEventHonorsDismissals(t *testing.T) {
	first := timed("first", time.Hour, time.Hour)
	second := timed("second", 2*time.Hour, time.Hour)
	source := &fakeSource{
		calendars: []core.Calendar{{ID: "cal-a"}},
		events:    []core.Event{first, second},
	}
	o := testOrchestrator(t, source, map[string]interface{}{
		"selected_calendars": []string{"cal-a"},
	})

	o.cycle(context.Background())

	if next := o.NextEvent(); next == nil || next.ID != "first" {
		t.Fatalf("NextEvent = %v, want first", next)
	}

	o.Dismiss(first)
	if next := o.NextEvent(); next == nil || next.ID != "second" {
		t.Errorf("NextEvent after dismissal = %v, want second", next)
	}

	o.Undismiss("first")
	if next := o.NextEvent(); next == nil || next.ID != "first" {
		t.Errorf("NextEvent after undismiss = %v, want first", next)
	}
}

func TestNextEventBeforeFirstCycle(t *testing.T) {
	o := testOrchestrator(t, &fakeSource{}, nil)
	if next := o.NextEvent(); next != nil {
		t.Errorf("NextEvent without snapshot = %v", next)
	}
}

func TestSwitchProvider(t *testing.T) {
	oldSource := &fakeSource{
		calendars: []core.Calendar{{ID: "cal-a"}},
		events:    []core.Event{timed("old", time.Hour, time.Hour)},
	}
	newSource := &fakeSource{}
	sources := map[string]*fakeSource{"google": oldSource, "native": newSource}

	p := testPrefs(t, map[string]interface{}{
		"selected_calendars": []string{"cal-a"},
	})
	o, err := New(p, func(name string) (core.EventSource, error) {
		src, ok := sources[name]
		if !ok {
			return nil, errors.New("unknown provider")
		}
		return src, nil
	}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	o.now = func() time.Time { return testNow }

	o.cycle(context.Background())
	if snap := o.Snapshot(); len(snap.Events) != 1 {
		t.Fatalf("seed snapshot = %+v", snap)
	}

	if err := o.SwitchProvider(context.Background(), "native", true); err != nil {
		t.Fatal(err)
	}

	if got := p.SelectedCalendars(); len(got) != 0 {
		t.Errorf("calendar selection survived the switch: %v", got)
	}
	if got := p.Provider(); got != "native" {
		t.Errorf("provider = %q", got)
	}
	snap := o.Snapshot()
	if snap == nil || len(snap.Calendars) != 0 || len(snap.Events) != 0 {
		t.Errorf("published state not cleared: %+v", snap)
	}
	if oldSource.signOuts.Load() != 1 {
		t.Error("old provider not signed out")
	}
	if newSource.signIns.Load() != 1 {
		t.Error("new provider not signed in")
	}

	// The forced fetch is pending on the kick channel.
	select {
	case <-o.kick:
	default:
		t.Error("switch did not request an immediate cycle")
	}

	if _, err := o.factory("bogus"); err == nil {
		t.Error("factory accepted unknown provider")
	}
	if err := o.SwitchProvider(context.Background(), "bogus", false); err == nil {
		t.Error("SwitchProvider accepted unknown provider")
	}
}

func ids(events []core.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
