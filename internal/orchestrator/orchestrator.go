// Package orchestrator owns the active event source and turns independent
// triggers (preference changes, the refresh timer, on-device store change
// signals, manual requests) into coalesced fetch cycles that publish
// consistent snapshots.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leits/MeetingBar-sub001/internal/core"
	"github.com/leits/MeetingBar-sub001/internal/prefs"
)

// Factory builds the event source for a provider name.
type Factory func(provider string) (core.EventSource, error)

// changeNotifier is implemented by sources backed by an on-device store
// that can signal external edits.
type changeNotifier interface {
	Changed() <-chan struct{}
}

// Orchestrator holds exactly one active event source at a time. A single
// fetch-loop goroutine (Run) consumes the coalescing kick channel and is
// the only writer of the published snapshot; everyone else reads it
// through an atomic pointer.
type Orchestrator struct {
	prefs   *prefs.Prefs
	factory Factory
	logger  *slog.Logger
	now     func() time.Time

	// Capacity 1: while a cycle is running at most one re-run request is
	// remembered, duplicates are dropped.
	kick chan struct{}

	snapshot atomic.Pointer[core.Snapshot]

	mu        sync.Mutex
	source    core.EventSource
	dismissed map[string]core.Dismissal
}

func New(p *prefs.Prefs, factory Factory, logger *slog.Logger) (*Orchestrator, error) {
	source, err := factory(p.Provider())
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", p.Provider(), err)
	}

	o := &Orchestrator{
		prefs:     p,
		factory:   factory,
		logger:    logger,
		now:       time.Now,
		kick:      make(chan struct{}, 1),
		source:    source,
		dismissed: make(map[string]core.Dismissal),
	}
	for _, d := range p.Dismissed() {
		o.dismissed[d.EventID] = d
	}
	p.Watch(o.Refresh)
	return o, nil
}

// Refresh requests a fetch cycle. It never blocks: if a cycle is already
// pending the request is dropped, the pending cycle covers it.
func (o *Orchestrator) Refresh() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

// Snapshot returns the last published state, or nil before the first
// successful cycle.
func (o *Orchestrator) Snapshot() *core.Snapshot {
	return o.snapshot.Load()
}

// Run is the fetch loop. It performs one cycle immediately, then one per
// trigger until ctx is cancelled. It must be called at most once.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := o.prefs.RefreshInterval()
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	o.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.kick:
		case <-tick:
		case <-o.storeChanged():
		}
		o.runCycle(ctx)
	}
}

// RunOnce performs a single fetch cycle without starting the loop. Used
// by one-shot consumers that want a snapshot and then exit.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	return o.cycle(ctx)
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	if err := o.cycle(ctx); err != nil {
		o.logger.Error("fetch cycle failed, keeping previous snapshot", "error", err)
	}
}

// storeChanged returns the active source's change signal, or nil (blocks
// forever in select) when the source has none. Re-evaluated every loop
// iteration so provider switches take effect.
func (o *Orchestrator) storeChanged() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n, ok := o.source.(changeNotifier); ok {
		return n.Changed()
	}
	return nil
}

// cycle runs one fetch: calendars, then events of the selected calendars
// over the lookahead window, then dismissal pruning, filtering and
// publication. Any failure leaves the previous snapshot untouched.
func (o *Orchestrator) cycle(ctx context.Context) error {
	o.mu.Lock()
	source := o.source
	o.mu.Unlock()

	calendars, err := source.FetchCalendars(ctx)
	if err != nil {
		return fmt.Errorf("fetch calendars: %w", err)
	}

	from, to := o.window()
	selected := selectCalendars(calendars, o.prefs.SelectedCalendars())
	var events []core.Event
	if len(selected) > 0 {
		events, err = source.FetchEvents(ctx, selected, from, to)
		if err != nil {
			return fmt.Errorf("fetch events: %w", err)
		}
	}

	o.pruneDismissals(events)

	filtered := core.Filtered(events, o.prefs.Policy())
	core.SortByStart(filtered)

	o.snapshot.Store(&core.Snapshot{
		Calendars: calendars,
		Events:    filtered,
		FetchedAt: o.now(),
	})
	o.logger.Debug("published snapshot", "calendars", len(calendars), "events", len(filtered))
	return nil
}

// window computes the fetch range at cycle start: local midnight to
// midnight plus one or two days depending on the lookahead preference.
func (o *Orchestrator) window() (time.Time, time.Time) {
	now := o.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := 1
	if o.prefs.Lookahead() == core.LookaheadTodayTomorrow {
		days = 2
	}
	return midnight, midnight.AddDate(0, 0, days)
}

// selectCalendars keeps the fetched calendars whose ids the user selected.
func selectCalendars(calendars []core.Calendar, ids []string) []core.Calendar {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var selected []core.Calendar
	for _, cal := range calendars {
		if want[cal.ID] {
			selected = append(selected, cal)
		}
	}
	return selected
}

// pruneDismissals revalidates every dismissal against the fresh result
// set: a record survives only if its event is still present with an end
// time in the future, and it always adopts the live end time.
func (o *Orchestrator) pruneDismissals(events []core.Event) {
	liveEnd := make(map[string]time.Time, len(events))
	for _, e := range events {
		liveEnd[e.ID] = e.End
	}

	now := o.now()
	o.mu.Lock()
	changed := false
	for id, d := range o.dismissed {
		end, present := liveEnd[id]
		if !present || !end.After(now) {
			delete(o.dismissed, id)
			changed = true
			continue
		}
		if !end.Equal(d.End) {
			d.End = end
			o.dismissed[id] = d
			changed = true
		}
	}
	records := o.dismissalsLocked()
	o.mu.Unlock()

	if changed {
		if err := o.prefs.SaveDismissed(records); err != nil {
			o.logger.Warn("could not persist dismissed list", "error", err)
		}
	}
}

func (o *Orchestrator) dismissalsLocked() []core.Dismissal {
	records := make([]core.Dismissal, 0, len(o.dismissed))
	for _, d := range o.dismissed {
		records = append(records, d)
	}
	return records
}

// Dismiss hides the event from next-event selection until its end time
// passes (or the record is pruned).
func (o *Orchestrator) Dismiss(event core.Event) {
	o.mu.Lock()
	o.dismissed[event.ID] = core.Dismissal{EventID: event.ID, End: event.End}
	records := o.dismissalsLocked()
	o.mu.Unlock()

	if err := o.prefs.SaveDismissed(records); err != nil {
		o.logger.Warn("could not persist dismissed list", "error", err)
	}
}

// Undismiss makes the event eligible for selection again.
func (o *Orchestrator) Undismiss(eventID string) {
	o.mu.Lock()
	delete(o.dismissed, eventID)
	records := o.dismissalsLocked()
	o.mu.Unlock()

	if err := o.prefs.SaveDismissed(records); err != nil {
		o.logger.Warn("could not persist dismissed list", "error", err)
	}
}

// Dismissed reports which event ids are currently dismissed.
func (o *Orchestrator) Dismissed() map[string]bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	dismissed := make(map[string]bool, len(o.dismissed))
	for id := range o.dismissed {
		dismissed[id] = true
	}
	return dismissed
}

// NextEvent selects the next relevant event from the published snapshot.
func (o *Orchestrator) NextEvent() *core.Event {
	snap := o.snapshot.Load()
	if snap == nil {
		return nil
	}

	return core.NextEvent(snap.Events, o.now(), o.prefs.Policy(), o.prefs.LinkRequired(), o.Dismissed())
}

// SwitchProvider changes the active backend: the calendar selection and
// the published calendar list are cleared immediately, the old source is
// optionally signed out, and the new one is signed in and fetched right
// away regardless of timer state.
func (o *Orchestrator) SwitchProvider(ctx context.Context, name string, signOutOld bool) error {
	source, err := o.factory(name)
	if err != nil {
		return fmt.Errorf("provider %q: %w", name, err)
	}

	if err := o.prefs.SetSelectedCalendars(nil); err != nil {
		o.logger.Warn("could not clear calendar selection", "error", err)
	}
	o.snapshot.Store(&core.Snapshot{FetchedAt: o.now()})

	o.mu.Lock()
	old := o.source
	o.source = source
	o.mu.Unlock()

	if signOutOld && old != nil {
		old.SignOut(ctx)
	}
	if err := o.prefs.SetProvider(name); err != nil {
		o.logger.Warn("could not persist provider selection", "error", err)
	}

	signInErr := source.SignIn(ctx)
	if signInErr != nil {
		o.logger.Warn("sign-in on new provider failed", "provider", name, "error", signInErr)
	}
	o.Refresh()
	return signInErr
}
